package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps records in the order_escrow table.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: normalizeTTL(ttl)}
}

func (s *PostgresStore) Put(ctx context.Context, payload json.RawMessage) (string, error) {
	if err := checkPayload(payload); err != nil {
		return "", err
	}
	id := NewID()
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_escrow (id, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		id, []byte(payload), now, now.Add(s.ttl))
	if err != nil {
		return "", fmt.Errorf("insert escrow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrDuplicateID
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM order_escrow
		WHERE id = $1 AND expires_at > NOW()`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select escrow: %w", err)
	}
	return json.RawMessage(payload), nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM order_escrow WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete escrow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM order_escrow WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge escrow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
