package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/audit"
)

// AuditSink receives one audit record per consumed payment event.
type AuditSink interface {
	Log(record audit.AuditLog)
}

type ConsumerGroupHandler struct {
	sink   AuditSink
	logger *zap.Logger
}

func NewConsumerGroupHandler(sink AuditSink, logger *zap.Logger) ConsumerGroupHandler {
	return ConsumerGroupHandler{sink: sink, logger: logger}
}

func (ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.handle(msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

// handle never fails: a malformed message is logged and skipped so it does
// not block the partition.
func (h ConsumerGroupHandler) handle(msg *sarama.ConsumerMessage) {
	var ev PaymentEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.Warn("skipping malformed event",
			zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	orderRef := ev.FeeToken
	if ev.OrderID != 0 {
		orderRef = strconv.FormatInt(ev.OrderID, 10)
	}
	h.sink.Log(audit.AuditLog{
		Timestamp: ev.OccurredAt,
		OrderID:   orderRef,
		Reference: ev.Reference,
		OldState:  ev.OldStatus,
		NewState:  ev.NewStatus,
		Endpoint:  "kafka:" + msg.Topic,
		Request:   ev.Kind + "/" + ev.Source,
		Message:   fmt.Sprintf("%s via %s", ev.Type, ev.Provider),
	})
}

// consumeRetryDelay spaces out Consume calls while the brokers are unreachable.
const consumeRetryDelay = 2 * time.Second

func StartSaramaConsumer(ctx context.Context, brokers []string, groupID string, topics []string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) error {
	config := sarama.NewConfig()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() {
		if err := consumerGroup.Close(); err != nil {
			logger.Error("close consumer group", zap.Error(err))
		}
	}()
	return consume(ctx, consumerGroup, topics, handler, consumeRetryDelay, logger)
}

func consume(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler, retryDelay time.Duration, logger *zap.Logger) error {
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Error("consume error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
