// Package stripepay wraps the Stripe API behind a small Gateway so the
// payment flows can be exercised without the network.
package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	IntentSucceeded = "succeeded"
	SessionPaid     = "paid"

	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventCheckoutSessionCompleted = "checkout.session.completed"
)

// Metadata keys and kinds written on every intent and session the gateway creates.
const (
	MetaKind        = "kind"
	MetaOrderID     = "order_id"
	MetaUserID      = "user_id"
	MetaFeeToken    = "fee_token"
	MetaOrderDataID = "order_data_id"

	KindScheduledOrder = "scheduled_order"
	KindResinShipping  = "resin_shipping"
	KindCheckout       = "checkout"
)

var ErrInvalidSignature = errors.New("stripe webhook signature verification failed")

type PaymentIntent struct {
	ID           string
	Status       string
	Amount       int64
	Currency     string
	ClientSecret string
	Metadata     map[string]string
}

func (p *PaymentIntent) Succeeded() bool { return p.Status == IntentSucceeded }

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

func (s *CheckoutSession) Paid() bool { return s.PaymentStatus == SessionPaid }

type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// PaymentIntent decodes the event object of a payment_intent.* event.
func (e *Event) PaymentIntent() (*PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(e.Object, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	return intentFromStripe(&pi), nil
}

// CheckoutSession decodes the event object of a checkout.session.* event.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(e.Object, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return sessionFromStripe(&cs), nil
}

type IntentParams struct {
	Amount         decimal.Decimal
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type LineItem struct {
	Name       string
	UnitAmount decimal.Decimal
	Quantity   int64
}

type SessionParams struct {
	LineItems          []LineItem
	Currency           string
	CustomerEmail      string
	PaymentMethodTypes []string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
	IdempotencyKey     string
}

type Gateway interface {
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CreatePaymentIntent(ctx context.Context, p IntentParams) (*PaymentIntent, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, p SessionParams) (*CheckoutSession, error)
	ConstructEvent(payload []byte, sigHeader string) (*Event, error)
}

type Client struct {
	api           *client.API
	webhookSecret string
}

func NewClient(secretKey, webhookSecret string) *Client {
	return NewClientWithBackends(secretKey, webhookSecret, nil)
}

// NewClientWithBackends lets tests point the SDK at a local server.
func NewClientWithBackends(secretKey, webhookSecret string, backends *stripe.Backends) *Client {
	return &Client{api: client.New(secretKey, backends), webhookSecret: webhookSecret}
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent %s: %w", id, err)
	}
	return intentFromStripe(pi), nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, p IntentParams) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(p.Amount)),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session %s: %w", id, err)
	}
	return sessionFromStripe(cs), nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	if len(p.PaymentMethodTypes) > 0 {
		params.PaymentMethodTypes = stripe.StringSlice(p.PaymentMethodTypes)
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	for _, li := range p.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.Currency),
				UnitAmount: stripe.Int64(ToMinorUnits(li.UnitAmount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
			},
		})
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	cs, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sessionFromStripe(cs), nil
}

func (c *Client) ConstructEvent(payload []byte, sigHeader string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}

// IdempotencyKey builds the "{purpose}_{entity}_{user}_{unixMillis}" key
// sent with Stripe object creation.
func IdempotencyKey(purpose, entityID string, userID int64, t time.Time) string {
	return purpose + "_" + entityID + "_" + strconv.FormatInt(userID, 10) + "_" +
		strconv.FormatInt(t.UnixMilli(), 10)
}

// ToMinorUnits converts an amount in major units to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func intentFromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}
}

func sessionFromStripe(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            cs.ID,
		URL:           cs.URL,
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		Metadata:      cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out
}
