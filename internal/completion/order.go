package completion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/events"
	"github.com/dreamshop/gateway/internal/models"
	"github.com/dreamshop/gateway/internal/wordpress"
)

type Request struct {
	OrderID      int64
	UserID       int64
	Confirmation Confirmation
	Source       Source
}

// orderState classifies an order against a payment reference.
type orderState int

const (
	stateUnpaid orderState = iota
	// flagged carries the payment fields but the status PUT never landed
	stateFlagged
	stateDone
)

func classify(o *models.Order, reference string) orderState {
	paidBy := o.TransactionID == reference || o.HasMeta(models.MetaTransactionID, reference)
	if !paidBy || !o.HasMeta(models.MetaPaymentCompleted, models.MetaYes) {
		return stateUnpaid
	}
	if o.Status.Payable() {
		return stateFlagged
	}
	return stateDone
}

// CompleteOrder records a confirmed payment on a WooCommerce order. Calling
// it again with the same confirmation returns AlreadyProcessed and writes
// nothing.
func (c *Completer) CompleteOrder(ctx context.Context, req Request) (*Result, error) {
	conf := req.Confirmation
	if !conf.Succeeded || conf.Reference == "" {
		return nil, ErrNotConfirmed
	}
	if conf.OrderID != req.OrderID || conf.UserID != req.UserID {
		return nil, ErrOwnershipMismatch
	}

	order, err := c.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", req.OrderID, err)
	}
	if order.CustomerID != req.UserID {
		return nil, ErrOwnershipMismatch
	}
	if classify(order, conf.Reference) == stateDone {
		return &Result{AlreadyProcessed: true, Order: order}, nil
	}

	owner, claimed, err := c.claims.Claim(ctx, conf.Reference, formatID(req.OrderID))
	if err != nil {
		return nil, err
	}
	if !claimed {
		return c.afterLostClaim(ctx, req.OrderID, conf.Reference)
	}
	defer c.release(ctx, conf.Reference, owner)

	// another caller may have finished between the first read and the claim
	order, err = c.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("reload order %d: %w", req.OrderID, err)
	}
	state := classify(order, conf.Reference)
	switch {
	case state == stateDone:
		return &Result{AlreadyProcessed: true, Order: order}, nil
	case state == stateUnpaid && !order.Status.Payable():
		return nil, ErrNotPayable
	}

	oldStatus := order.Status
	if state == stateUnpaid {
		if _, err := c.orders.UpdateOrder(ctx, req.OrderID, c.paymentFields(conf, req.Source)); err != nil {
			return nil, fmt.Errorf("write payment fields on order %d: %w", req.OrderID, err)
		}
	} else {
		c.logger.Info("resuming half-completed order",
			zap.Int64("order_id", req.OrderID), zap.String("reference", conf.Reference))
	}

	updated, err := c.orders.UpdateOrder(ctx, req.OrderID, wordpress.OrderUpdate{Status: models.OrderStatusProcessing})
	if err != nil {
		c.logger.Error("order flagged as paid but status update failed",
			zap.Int64("order_id", req.OrderID),
			zap.String("reference", conf.Reference),
			zap.String("status", string(oldStatus)),
			zap.Error(err))
		return nil, fmt.Errorf("set order %d processing: %w", req.OrderID, err)
	}

	ev := events.NewPaymentEvent(events.KindOrder, conf.Provider, conf.Reference)
	ev.OrderID = req.OrderID
	ev.UserID = req.UserID
	ev.Source = string(req.Source)
	ev.OldStatus = string(oldStatus)
	ev.NewStatus = string(updated.Status)
	c.publish(ctx, ev, "complete-order")

	return &Result{Order: updated}, nil
}

func (c *Completer) afterLostClaim(ctx context.Context, orderID int64, reference string) (*Result, error) {
	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload order %d: %w", orderID, err)
	}
	if classify(order, reference) == stateDone {
		return &Result{AlreadyProcessed: true, Order: order}, nil
	}
	return nil, ErrInProgress
}

func (c *Completer) paymentFields(conf Confirmation, source Source) wordpress.OrderUpdate {
	meta := []models.MetaData{
		{Key: models.MetaTransactionID, Value: conf.Reference},
		{Key: models.MetaPaymentCompleted, Value: models.MetaYes},
		{Key: models.MetaPaidDate, Value: c.now().UTC().Format("2006-01-02 15:04:05")},
	}
	switch conf.Provider {
	case ProviderStripe:
		meta = append(meta, models.MetaData{Key: models.MetaPaymentIntentID, Value: conf.Reference})
	case ProviderPayPal:
		meta = append(meta, models.MetaData{Key: models.MetaPayPalCaptureID, Value: conf.Reference})
	}
	if source == SourceWebhook {
		meta = append(meta, models.MetaData{Key: models.MetaWebhookProcessed, Value: models.MetaYes})
	}
	return wordpress.OrderUpdate{
		PaymentMethod:      conf.MethodID,
		PaymentMethodTitle: conf.MethodTitle,
		TransactionID:      conf.Reference,
		MetaData:           meta,
	}
}

type PaymentState struct {
	OrderID      int64              `json:"order_id"`
	OrderStatus  models.OrderStatus `json:"order_status"`
	Completed    bool               `json:"completed"`
	IntentStatus string             `json:"payment_intent_status,omitempty"`
}

// PaymentStatus backs client polling after a redirect: nil error means the
// order is flagged, ErrInProgress means Stripe succeeded but the order has
// not caught up, ErrNotConfirmed means the intent has not succeeded.
func (c *Completer) PaymentStatus(ctx context.Context, orderID, userID int64, intentID string) (*PaymentState, error) {
	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order.CustomerID != userID {
		return nil, ErrOwnershipMismatch
	}
	state := &PaymentState{OrderID: orderID, OrderStatus: order.Status}

	if order.HasMeta(models.MetaPaymentCompleted, models.MetaYes) &&
		(intentID == "" || classify(order, intentID) != stateUnpaid) {
		state.Completed = true
		return state, nil
	}
	if intentID == "" {
		return state, ErrNotConfirmed
	}

	pi, err := c.stripe.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	conf := FromPaymentIntent(pi)
	if conf.OrderID != orderID || conf.UserID != userID {
		return nil, ErrOwnershipMismatch
	}
	state.IntentStatus = pi.Status
	if pi.Succeeded() {
		return state, ErrInProgress
	}
	return state, ErrNotConfirmed
}
