package escrow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor removes expired records so abandoned checkouts do not pile up.
type Janitor struct {
	store    Store
	interval time.Duration
	logger   *zap.Logger
}

func NewJanitor(store Store, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{store: store, interval: interval, logger: logger}
}

func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			j.sweep(ctx, now)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context, now time.Time) {
	n, err := j.store.PurgeExpired(ctx, now)
	if err != nil {
		j.logger.Error("escrow purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("escrow records purged", zap.Int("count", n))
	}
}
