package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/events"
)

// Processor publishes outbox tasks to Kafka and deletes them once sent.
type Processor struct {
	repo         Repository
	producer     events.Publisher
	topic        string
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
	logger       *zap.Logger
}

func NewProcessor(repo Repository, producer events.Publisher, topic string, pollInterval time.Duration, limit int, logger *zap.Logger) *Processor {
	return &Processor{
		repo:         repo,
		producer:     producer,
		topic:        topic,
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
		logger:       logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processPendingTasks(ctx)
		}
	}
}

func (p *Processor) processPendingTasks(ctx context.Context) {
	tasks, err := p.repo.GetPendingTasks(ctx, p.limit, p.maxAttempts)
	if err != nil {
		p.logger.Error("fetch pending outbox tasks", zap.Error(err))
		return
	}
	for _, task := range tasks {
		if err := p.repo.MarkTaskProcessing(ctx, task.ID); err != nil {
			p.logger.Error("mark outbox task processing", zap.Int("task_id", task.ID), zap.Error(err))
			continue
		}

		if err := p.producer.Publish(p.topic, task.EventKey, task.Payload); err != nil {
			p.fail(ctx, task, err)
			continue
		}
		p.logger.Debug("outbox task published", zap.Int("task_id", task.ID))
		if err := p.repo.DeleteTask(ctx, task.ID); err != nil {
			p.logger.Error("delete published outbox task", zap.Int("task_id", task.ID), zap.Error(err))
		}
	}
}

func (p *Processor) fail(ctx context.Context, task *Task, err error) {
	newAttempt := task.AttemptCount + 1
	newStatus := TaskStatusFailed
	if newAttempt >= p.maxAttempts {
		newStatus = TaskStatusNoAttemptsLeft
	}
	nextAttempt := time.Now().Add(p.retryDelay)
	if errUpd := p.repo.UpdateTaskFailure(ctx, task.ID, newAttempt, newStatus, nextAttempt); errUpd != nil {
		p.logger.Error("update failed outbox task", zap.Int("task_id", task.ID), zap.Error(errUpd))
	}
	p.logger.Warn("outbox publish failed",
		zap.Int("task_id", task.ID),
		zap.Int("attempt", newAttempt),
		zap.String("status", string(newStatus)),
		zap.Error(err))
}
