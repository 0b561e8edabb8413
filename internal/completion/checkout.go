package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/escrow"
	"github.com/dreamshop/gateway/internal/events"
	"github.com/dreamshop/gateway/internal/models"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
)

const checkoutMethodTitle = "Stripe Checkout"

// OrderAfterPayment creates the WooCommerce order for a paid Checkout
// Session from the escrowed order data. A session that already produced an
// order returns that order.
func (c *Completer) OrderAfterPayment(ctx context.Context, sessionID string, userID int64, source Source) (*Result, error) {
	cs, err := c.stripe.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !cs.Paid() {
		return nil, ErrNotConfirmed
	}
	if parseID(cs.Metadata[stripepay.MetaUserID]) != userID {
		return nil, ErrOwnershipMismatch
	}

	if existing, err := c.findSessionOrder(ctx, userID, sessionID); err != nil || existing != nil {
		return resultFor(existing), err
	}

	owner, claimed, err := c.claims.Claim(ctx, sessionID, "checkout")
	if err != nil {
		return nil, err
	}
	if !claimed {
		existing, err := c.findSessionOrder(ctx, userID, sessionID)
		if err != nil || existing != nil {
			return resultFor(existing), err
		}
		return nil, ErrInProgress
	}
	defer c.release(ctx, sessionID, owner)

	if existing, err := c.findSessionOrder(ctx, userID, sessionID); err != nil || existing != nil {
		return resultFor(existing), err
	}

	dataID := cs.Metadata[stripepay.MetaOrderDataID]
	raw, err := c.escrow.Get(ctx, dataID)
	if errors.Is(err, escrow.ErrNotFound) {
		c.logger.Error("paid checkout session has no order data",
			zap.String("session_id", sessionID), zap.String("order_data_id", dataID), zap.Int64("user_id", userID))
		return nil, ErrEscrowExpired
	}
	if err != nil {
		return nil, err
	}

	payload, err := c.checkoutOrderPayload(raw, cs, userID, source)
	if err != nil {
		return nil, err
	}
	order, err := c.orders.CreateOrder(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("create order for session %s: %w", sessionID, err)
	}
	if err := c.escrow.Delete(ctx, dataID); err != nil && !errors.Is(err, escrow.ErrNotFound) {
		c.logger.Warn("delete escrow record", zap.String("order_data_id", dataID), zap.Error(err))
	}

	ev := events.NewPaymentEvent(events.KindCheckout, ProviderStripe, sessionID)
	ev.OrderID = order.ID
	ev.UserID = userID
	ev.Source = string(source)
	ev.NewStatus = string(order.Status)
	c.publish(ctx, ev, "order-after-payment")

	return &Result{Order: order}, nil
}

func resultFor(o *models.Order) *Result {
	if o == nil {
		return nil
	}
	return &Result{AlreadyProcessed: true, Order: o}
}

func (c *Completer) findSessionOrder(ctx context.Context, userID int64, sessionID string) (*models.Order, error) {
	orders, err := c.orders.ListOrders(ctx, url.Values{
		"customer": {formatID(userID)},
		"per_page": {"20"},
		"orderby":  {"date"},
		"order":    {"desc"},
	})
	if err != nil {
		return nil, fmt.Errorf("search orders for session %s: %w", sessionID, err)
	}
	for i := range orders {
		if orders[i].HasMeta(models.MetaCheckoutSessionID, sessionID) {
			return &orders[i], nil
		}
	}
	return nil, nil
}

// checkoutOrderPayload merges the escrowed order data with the payment
// fields. The stored customer id is ignored in favour of the session owner.
func (c *Completer) checkoutOrderPayload(raw json.RawMessage, cs *stripepay.CheckoutSession, userID int64, source Source) (map[string]interface{}, error) {
	payload := make(map[string]interface{})
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode escrowed order data: %w", err)
	}
	reference := cs.PaymentIntentID
	if reference == "" {
		reference = cs.ID
	}

	meta, _ := payload["meta_data"].([]interface{})
	for _, m := range []models.MetaData{
		{Key: models.MetaCheckoutSessionID, Value: cs.ID},
		{Key: models.MetaTransactionID, Value: reference},
		{Key: models.MetaPaymentCompleted, Value: models.MetaYes},
		{Key: models.MetaPaidDate, Value: c.now().UTC().Format("2006-01-02 15:04:05")},
	} {
		meta = append(meta, map[string]interface{}{"key": m.Key, "value": m.Value})
	}
	if cs.PaymentIntentID != "" {
		meta = append(meta, map[string]interface{}{"key": models.MetaPaymentIntentID, "value": cs.PaymentIntentID})
	}
	if source == SourceWebhook {
		meta = append(meta, map[string]interface{}{"key": models.MetaWebhookProcessed, "value": models.MetaYes})
	}

	payload["customer_id"] = userID
	payload["payment_method"] = ProviderStripe
	payload["payment_method_title"] = checkoutMethodTitle
	payload["transaction_id"] = reference
	payload["set_paid"] = true
	payload["status"] = string(models.OrderStatusProcessing)
	payload["meta_data"] = meta
	return payload, nil
}
