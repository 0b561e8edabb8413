package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingDeposit   OrderStatus = "pending-deposit"
	OrderStatusScheduledPayment OrderStatus = "scheduled-payment"
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusOnHold           OrderStatus = "on-hold"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusFailed           OrderStatus = "failed"
)

// Payable reports whether an installment order still expects a payment.
func (s OrderStatus) Payable() bool {
	switch s {
	case OrderStatusPendingDeposit, OrderStatusScheduledPayment, OrderStatusPending:
		return true
	}
	return false
}

const (
	MetaDepositParentOrder = "_deposit_parent_order_number"
	MetaTransactionID      = "_transaction_id"
	MetaPaymentIntentID    = "_stripe_payment_intent_id"
	MetaCheckoutSessionID  = "_stripe_checkout_session_id"
	MetaPaymentCompleted   = "_payment_completed"
	MetaWebhookProcessed   = "_webhook_processed"
	MetaPayPalCaptureID    = "_paypal_capture_id"
	MetaPaidDate           = "_paid_date"

	MetaYes = "yes"
)

type MetaData struct {
	ID    int64       `json:"id,omitempty"`
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type LineItem struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id,omitempty"`
	Quantity    int    `json:"quantity"`
	Total       string `json:"total,omitempty"`
}

// Order is a WooCommerce order as returned by /wp-json/wc/v3/orders.
type Order struct {
	ID                 int64       `json:"id"`
	Number             string      `json:"number"`
	Status             OrderStatus `json:"status"`
	Currency           string      `json:"currency"`
	Total              string      `json:"total"`
	CustomerID         int64       `json:"customer_id"`
	PaymentMethod      string      `json:"payment_method"`
	PaymentMethodTitle string      `json:"payment_method_title"`
	TransactionID      string      `json:"transaction_id"`
	DateCreated        string      `json:"date_created"`
	Billing            Address     `json:"billing"`
	Shipping           Address     `json:"shipping"`
	LineItems          []LineItem  `json:"line_items"`
	MetaData           []MetaData  `json:"meta_data"`
}

// Meta returns the string form of the first meta entry with key.
func (o *Order) Meta(key string) (string, bool) {
	for _, m := range o.MetaData {
		if m.Key == key {
			return metaString(m.Value), true
		}
	}
	return "", false
}

func (o *Order) HasMeta(key, value string) bool {
	v, ok := o.Meta(key)
	return ok && v == value
}

func (o *Order) TotalAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(o.Total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse order total %q: %w", o.Total, err)
	}
	return d, nil
}

func metaString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// ScheduledOrder is the storefront view of one deposit installment.
type ScheduledOrder struct {
	ID                int64       `json:"id"`
	Number            string      `json:"number"`
	ParentOrderNumber string      `json:"parent_order_number"`
	Status            OrderStatus `json:"status"`
	Total             string      `json:"total"`
	Currency          string      `json:"currency"`
	DateCreated       string      `json:"date_created"`
	Payable           bool        `json:"payable"`
}

func NewScheduledOrder(o *Order) ScheduledOrder {
	parent, _ := o.Meta(MetaDepositParentOrder)
	return ScheduledOrder{
		ID:                o.ID,
		Number:            o.Number,
		ParentOrderNumber: parent,
		Status:            o.Status,
		Total:             o.Total,
		Currency:          o.Currency,
		DateCreated:       o.DateCreated,
		Payable:           o.Status.Payable(),
	}
}

type FeeStatus string

const (
	FeeStatusPending FeeStatus = "pending"
	FeeStatusPaid    FeeStatus = "paid"
)

// ResinShippingFee is a deferred shipping charge owned by the
// dreamshop-resin-shipping plugin and addressed by an opaque token.
type ResinShippingFee struct {
	Token         string          `json:"token"`
	OrderID       int64           `json:"order_id"`
	CustomerID    int64           `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentStatus FeeStatus       `json:"payment_status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PaidDate      string          `json:"paid_date,omitempty"`
}

// ValidResinToken reports whether token has the 64 hex characters the plugin issues.
func ValidResinToken(token string) bool {
	if len(token) != 64 {
		return false
	}
	for _, c := range strings.ToLower(token) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

type GiftCardBalance struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type GiftCardTransaction struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	OrderID     int64           `json:"order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// UserID accepts both JSON numbers and numeric strings.
type UserID int64

func (u *UserID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("user id %s: %w", string(b), err)
	}
	*u = UserID(n)
	return nil
}

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}
