package completion

import (
	"context"
	"fmt"

	"github.com/dreamshop/gateway/internal/events"
	"github.com/dreamshop/gateway/internal/models"
)

// CompleteResinFee marks a resin shipping fee paid once per confirmation.
func (c *Completer) CompleteResinFee(ctx context.Context, token string, userID int64, conf Confirmation, source Source) (*Result, error) {
	if !conf.Succeeded || conf.Reference == "" {
		return nil, ErrNotConfirmed
	}
	if conf.FeeToken != token || conf.UserID != userID {
		return nil, ErrOwnershipMismatch
	}

	fee, err := c.fees.GetResinShippingFee(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load resin fee: %w", err)
	}
	if fee.CustomerID != userID {
		return nil, ErrOwnershipMismatch
	}
	if res, err := alreadyPaid(fee, conf.Reference); res != nil || err != nil {
		return res, err
	}

	owner, claimed, err := c.claims.Claim(ctx, conf.Reference, token)
	if err != nil {
		return nil, err
	}
	if !claimed {
		fee, err = c.fees.GetResinShippingFee(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("reload resin fee: %w", err)
		}
		if res, err := alreadyPaid(fee, conf.Reference); res != nil || err != nil {
			return res, err
		}
		return nil, ErrInProgress
	}
	defer c.release(ctx, conf.Reference, owner)

	fee, err = c.fees.GetResinShippingFee(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("reload resin fee: %w", err)
	}
	if res, err := alreadyPaid(fee, conf.Reference); res != nil || err != nil {
		return res, err
	}

	paid, err := c.fees.MarkResinShippingFeePaid(ctx, token, conf.Reference, conf.MethodID)
	if err != nil {
		return nil, fmt.Errorf("mark resin fee paid: %w", err)
	}

	ev := events.NewPaymentEvent(events.KindResinFee, conf.Provider, conf.Reference)
	ev.OrderID = fee.OrderID
	ev.FeeToken = token
	ev.UserID = userID
	ev.Source = string(source)
	ev.OldStatus = string(fee.PaymentStatus)
	ev.NewStatus = string(paid.PaymentStatus)
	c.publish(ctx, ev, "complete-resin-fee")

	return &Result{Fee: paid}, nil
}

// alreadyPaid returns an idempotent result when fee is paid by reference
// and ErrFeeAlreadyPaid when another transaction paid it.
func alreadyPaid(fee *models.ResinShippingFee, reference string) (*Result, error) {
	if fee.PaymentStatus != models.FeeStatusPaid {
		return nil, nil
	}
	if fee.TransactionID == reference {
		return &Result{AlreadyProcessed: true, Fee: fee}, nil
	}
	return nil, ErrFeeAlreadyPaid
}
