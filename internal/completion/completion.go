// Package completion turns a confirmed payment into exactly one mutation of
// the WooCommerce order or resin shipping fee it pays for, whichever of the
// client, a retry or the Stripe webhook gets there first.
package completion

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/apierr"
	"github.com/dreamshop/gateway/internal/audit"
	"github.com/dreamshop/gateway/internal/escrow"
	"github.com/dreamshop/gateway/internal/events"
	"github.com/dreamshop/gateway/internal/models"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
	"github.com/dreamshop/gateway/internal/wordpress"
)

var (
	ErrNotConfirmed      = apierr.BadRequest("payment has not been confirmed")
	ErrOwnershipMismatch = apierr.Forbidden("payment does not belong to this order")
	ErrInProgress        = apierr.Accepted("payment is being processed")
	ErrEscrowExpired     = apierr.Gone("order data expired, please contact support")
	ErrNotPayable        = apierr.BadRequest("order is not awaiting payment")
	ErrFeeAlreadyPaid    = apierr.BadRequest("shipping fee already paid")
)

type Source string

const (
	SourceClient  Source = "client"
	SourceWebhook Source = "webhook"
)

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// Confirmation is a provider's statement that a payment succeeded, with the
// identifiers it was bound to when it was created.
type Confirmation struct {
	Provider    string
	Reference   string
	Succeeded   bool
	OrderID     int64
	UserID      int64
	FeeToken    string
	MethodID    string
	MethodTitle string
}

type Orders interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, query url.Values) ([]models.Order, error)
	CreateOrder(ctx context.Context, payload interface{}) (*models.Order, error)
	UpdateOrder(ctx context.Context, id int64, upd wordpress.OrderUpdate) (*models.Order, error)
}

type ResinFees interface {
	GetResinShippingFee(ctx context.Context, token string) (*models.ResinShippingFee, error)
	MarkResinShippingFeePaid(ctx context.Context, token, transactionID, method string) (*models.ResinShippingFee, error)
}

type Emitter interface {
	Emit(ctx context.Context, ev events.PaymentEvent) error
}

type Auditor interface {
	Log(record audit.AuditLog)
}

type Deps struct {
	Orders  Orders
	Fees    ResinFees
	Stripe  stripepay.Gateway
	Escrow  escrow.Store
	Claims  ClaimStore
	Emitter Emitter
	Audit   Auditor
	Logger  *zap.Logger
}

type Completer struct {
	orders  Orders
	fees    ResinFees
	stripe  stripepay.Gateway
	escrow  escrow.Store
	claims  ClaimStore
	emitter Emitter
	audit   Auditor
	logger  *zap.Logger
	now     func() time.Time
}

func New(d Deps) *Completer {
	if d.Claims == nil {
		d.Claims = NewMemoryClaims(DefaultClaimTTL)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Completer{
		orders:  d.Orders,
		fees:    d.Fees,
		stripe:  d.Stripe,
		escrow:  d.Escrow,
		claims:  d.Claims,
		emitter: d.Emitter,
		audit:   d.Audit,
		logger:  d.Logger,
		now:     time.Now,
	}
}

type Result struct {
	AlreadyProcessed bool                     `json:"already_processed"`
	Order            *models.Order            `json:"order,omitempty"`
	Fee              *models.ResinShippingFee `json:"fee,omitempty"`
}

// publish records a completed payment. Failures are logged only: the
// payment itself is already recorded upstream.
func (c *Completer) publish(ctx context.Context, ev events.PaymentEvent, endpoint string) {
	if c.emitter != nil {
		if err := c.emitter.Emit(ctx, ev); err != nil {
			c.logger.Error("emit payment event",
				zap.String("reference", ev.Reference), zap.Error(err))
		}
	}
	if c.audit != nil {
		orderRef := ev.FeeToken
		if ev.OrderID != 0 {
			orderRef = formatID(ev.OrderID)
		}
		c.audit.Log(audit.AuditLog{
			Timestamp: c.now().UTC(),
			OrderID:   orderRef,
			Reference: ev.Reference,
			OldState:  ev.OldStatus,
			NewState:  ev.NewStatus,
			Endpoint:  endpoint,
			Request:   ev.Provider + "/" + ev.Source,
			Message:   "payment completed",
		})
	}
}

func (c *Completer) release(ctx context.Context, reference, owner string) {
	if err := c.claims.Release(ctx, reference, owner); err != nil {
		c.logger.Error("release payment claim", zap.String("reference", reference), zap.Error(err))
	}
}
