package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type AuditLog struct {
	Timestamp time.Time
	OrderID   string
	Reference string
	OldState  string
	NewState  string
	Endpoint  string
	Request   string
	Message   string
}

type AuditPoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

type AuditLogProcessor interface {
	Process(batch []AuditLog) error
}

type DBProcessor struct {
	db *sql.DB
}

func NewDBProcessor(db *sql.DB) *DBProcessor {
	return &DBProcessor{db: db}
}

func (p *DBProcessor) Process(batch []AuditLog) error {
	if len(batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO audit_logs (timestamp, order_id, reference, old_state, new_state, endpoint, request, message) VALUES `)

	params := make([]interface{}, 0, len(batch)*8)
	paramIndex := 1
	for i, rec := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)", paramIndex, paramIndex+1, paramIndex+2, paramIndex+3, paramIndex+4, paramIndex+5, paramIndex+6, paramIndex+7))
		paramIndex += 8
		params = append(params, rec.Timestamp, rec.OrderID, rec.Reference, rec.OldState, rec.NewState, rec.Endpoint, rec.Request, rec.Message)
	}
	if _, err := p.db.Exec(sb.String(), params...); err != nil {
		return fmt.Errorf("insert audit batch: %w", err)
	}
	return nil
}

// LogProcessor writes audit records to zap, optionally keeping only records
// whose message contains Filter.
type LogProcessor struct {
	Logger *zap.Logger
	Filter string
}

func (p *LogProcessor) Process(batch []AuditLog) error {
	for _, rec := range batch {
		if p.Filter != "" &&
			!strings.Contains(strings.ToLower(rec.Message), strings.ToLower(p.Filter)) {
			continue
		}
		p.Logger.Info("audit",
			zap.Time("at", rec.Timestamp),
			zap.String("order_id", rec.OrderID),
			zap.String("reference", rec.Reference),
			zap.String("old_state", rec.OldState),
			zap.String("new_state", rec.NewState),
			zap.String("endpoint", rec.Endpoint),
			zap.String("request", rec.Request),
			zap.String("message", rec.Message))
	}
	return nil
}

type AuditWorkerPool struct {
	inputCh    chan AuditLog
	processors []AuditLogProcessor
	batchSize  int
	timeout    time.Duration
	logger     *zap.Logger

	wg sync.WaitGroup
}

func NewAuditWorkerPool(cfg AuditPoolConfig, logger *zap.Logger, processors ...AuditLogProcessor) *AuditWorkerPool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &AuditWorkerPool{
		inputCh:    make(chan AuditLog, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

func (p *AuditWorkerPool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

func (p *AuditWorkerPool) worker(ctx context.Context) {
	var batch []AuditLog
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			// drain what is already queued
			for {
				select {
				case rec := <-p.inputCh:
					batch = append(batch, rec)
				default:
					if len(batch) > 0 {
						p.processBatch(batch)
					}
					return
				}
			}
		case rec := <-p.inputCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				timer.Stop()
				p.processBatch(batch)
				batch = nil
				timer.Reset(p.timeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

func (p *AuditWorkerPool) processBatch(batch []AuditLog) {
	for _, proc := range p.processors {
		if err := proc.Process(batch); err != nil {
			p.logger.Error("audit batch failed", zap.Int("size", len(batch)), zap.Error(err))
		}
	}
}

// Log enqueues record without blocking; it is dropped when the queue is full.
func (p *AuditWorkerPool) Log(record AuditLog) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	select {
	case p.inputCh <- record:
	default:
		p.logger.Warn("audit log channel full, dropping record", zap.String("message", record.Message))
	}
}

func (p *AuditWorkerPool) Shutdown(cancelFunc context.CancelFunc) {
	cancelFunc()
	p.wg.Wait()
}
