package outbox

import (
	"context"
	"fmt"

	"github.com/dreamshop/gateway/internal/events"
)

// Writer stores payment events in the outbox for the Processor to publish.
type Writer struct {
	repo Repository
}

func NewWriter(repo Repository) *Writer {
	return &Writer{repo: repo}
}

func (w *Writer) Emit(ctx context.Context, ev events.PaymentEvent) error {
	payload, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	return w.repo.CreateTask(ctx, ev.Key(), payload)
}

// Direct publishes immediately. It is used when there is no database to
// hold an outbox.
type Direct struct {
	Publisher events.Publisher
	Topic     string
}

func (d Direct) Emit(_ context.Context, ev events.PaymentEvent) error {
	payload, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	return d.Publisher.Publish(d.Topic, ev.Key(), payload)
}
