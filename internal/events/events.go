package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const TypePaymentCompleted = "payment.completed"

const (
	KindOrder    = "order"
	KindResinFee = "resin_fee"
	KindCheckout = "checkout"
)

// PaymentEvent is published once per completed payment.
type PaymentEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind"`
	Provider   string    `json:"provider"`
	Reference  string    `json:"reference"`
	OrderID    int64     `json:"order_id,omitempty"`
	FeeToken   string    `json:"fee_token,omitempty"`
	UserID     int64     `json:"user_id"`
	Source     string    `json:"source"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status,omitempty"`
}

func NewPaymentEvent(kind, provider, reference string) PaymentEvent {
	return PaymentEvent{
		ID:         uuid.NewString(),
		Type:       TypePaymentCompleted,
		OccurredAt: time.Now().UTC(),
		Kind:       kind,
		Provider:   provider,
		Reference:  reference,
	}
}

// Key is the Kafka message key; events for one payment share a partition.
func (e PaymentEvent) Key() string {
	return e.Provider + ":" + e.Reference
}

func (e PaymentEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
