package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/apierr"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
)

// HandleStripeEvent runs the completion matching a verified webhook event.
// A nil error means the event needs no redelivery.
func (c *Completer) HandleStripeEvent(ctx context.Context, ev *stripepay.Event) error {
	var err error
	switch ev.Type {
	case stripepay.EventPaymentIntentSucceeded:
		err = c.handleIntentSucceeded(ctx, ev)
	case stripepay.EventCheckoutSessionCompleted:
		err = c.handleSessionCompleted(ctx, ev)
	default:
		c.logger.Debug("ignoring stripe event", zap.String("type", ev.Type), zap.String("event_id", ev.ID))
		return nil
	}
	if err == nil {
		return nil
	}
	// a concurrent completion may still fail and release its claim, so
	// Stripe has to redeliver
	if errors.Is(err, ErrInProgress) {
		return err
	}
	// a redelivery cannot fix a rejected payment
	if apierr.Status(err) < http.StatusInternalServerError {
		c.logger.Warn("stripe event not applied",
			zap.String("type", ev.Type), zap.String("event_id", ev.ID), zap.Error(err))
		return nil
	}
	return err
}

func (c *Completer) handleIntentSucceeded(ctx context.Context, ev *stripepay.Event) error {
	pi, err := ev.PaymentIntent()
	if err != nil {
		return err
	}
	conf := FromPaymentIntent(pi)
	switch pi.Metadata[stripepay.MetaKind] {
	case stripepay.KindScheduledOrder:
		_, err = c.CompleteOrder(ctx, Request{
			OrderID:      conf.OrderID,
			UserID:       conf.UserID,
			Confirmation: conf,
			Source:       SourceWebhook,
		})
	case stripepay.KindResinShipping:
		_, err = c.CompleteResinFee(ctx, conf.FeeToken, conf.UserID, conf, SourceWebhook)
	default:
		// checkout intents complete through checkout.session.completed
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete %s from webhook: %w", pi.ID, err)
	}
	return nil
}

func (c *Completer) handleSessionCompleted(ctx context.Context, ev *stripepay.Event) error {
	cs, err := ev.CheckoutSession()
	if err != nil {
		return err
	}
	if cs.Metadata[stripepay.MetaKind] != stripepay.KindCheckout {
		return nil
	}
	// async methods such as bank transfers complete the session unpaid
	if !cs.Paid() {
		c.logger.Info("checkout session completed unpaid", zap.String("session_id", cs.ID))
		return nil
	}
	if _, err := c.OrderAfterPayment(ctx, cs.ID, parseID(cs.Metadata[stripepay.MetaUserID]), SourceWebhook); err != nil {
		return fmt.Errorf("order after payment %s from webhook: %w", cs.ID, err)
	}
	return nil
}
