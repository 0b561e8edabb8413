package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskStatusCreated        TaskStatus = "CREATED"
	TaskStatusProcessing     TaskStatus = "PROCESSING"
	TaskStatusFailed         TaskStatus = "FAILED"
	TaskStatusNoAttemptsLeft TaskStatus = "NO_ATTEMPTS_LEFT"
)

type Task struct {
	ID            int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    sql.NullTime
	EventKey      string
	Payload       []byte
	Status        TaskStatus
	AttemptCount  int
	NextAttemptAt sql.NullTime
}

type Repository interface {
	CreateTask(ctx context.Context, key string, payload []byte) error
	GetPendingTasks(ctx context.Context, limit, maxAttempts int) ([]*Task, error)
	MarkTaskProcessing(ctx context.Context, taskID int) error
	DeleteTask(ctx context.Context, taskID int) error
	UpdateTaskFailure(ctx context.Context, taskID int, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateTask(ctx context.Context, key string, payload []byte) error {
	query := `
		INSERT INTO outbox_tasks (created_at, updated_at, event_key, payload, status, attempt_count)
		VALUES (NOW(), NOW(), $1, $2, $3, 0)
	`
	if _, err := r.db.ExecContext(ctx, query, key, payload, TaskStatusCreated); err != nil {
		return fmt.Errorf("insert outbox task: %w", err)
	}
	return nil
}

// GetPendingTasks also returns tasks stuck in PROCESSING past their retry
// time, which happens when the process dies between mark and publish.
func (r *PostgresRepository) GetPendingTasks(ctx context.Context, limit, maxAttempts int) ([]*Task, error) {
	query := `
		SELECT id, created_at, updated_at, finished_at, event_key, payload, status, attempt_count, next_attempt_at
		FROM outbox_tasks
		WHERE ((status IN ($1, $2) AND (next_attempt_at IS NULL OR next_attempt_at <= NOW()))
		    OR (status = $3 AND updated_at <= NOW() - INTERVAL '5 minutes'))
		  AND attempt_count < $4
		ORDER BY created_at
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query, TaskStatusCreated, TaskStatusFailed, TaskStatusProcessing, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(&t.ID, &t.CreatedAt,
			&t.UpdatedAt, &t.FinishedAt,
			&t.EventKey, &t.Payload, &t.Status,
			&t.AttemptCount, &t.NextAttemptAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *PostgresRepository) MarkTaskProcessing(ctx context.Context, taskID int) error {
	query := `
		UPDATE outbox_tasks SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, TaskStatusProcessing, taskID)
	return err
}

func (r *PostgresRepository) DeleteTask(ctx context.Context, taskID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM outbox_tasks WHERE id = $1`, taskID)
	return err
}

func (r *PostgresRepository) UpdateTaskFailure(ctx context.Context, taskID int, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error {
	query := `
		UPDATE outbox_tasks
		SET status = $1, attempt_count = $2, updated_at = NOW(), next_attempt_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, newStatus, attemptCount, nextAttemptAt, taskID)
	return err
}
