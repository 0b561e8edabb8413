// Package escrow holds checkout order data server-side while a Stripe
// Checkout Session is open. Only the short record id travels in the
// session metadata.
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MinTTL is the Stripe Checkout Session lifetime. Records must outlive it.
	MinTTL     = 24 * time.Hour
	DefaultTTL = 48 * time.Hour
)

var (
	ErrNotFound       = errors.New("escrow record not found")
	ErrInvalidPayload = errors.New("escrow payload is not valid JSON")
	ErrDuplicateID    = errors.New("escrow id already in use")
)

type Store interface {
	Put(ctx context.Context, payload json.RawMessage) (string, error)
	Get(ctx context.Context, id string) (json.RawMessage, error)
	Delete(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type record struct {
	payload   json.RawMessage
	createdAt time.Time
	expiresAt time.Time
}

func (r record) expired(now time.Time) bool {
	return !now.Before(r.expiresAt)
}

// NewID returns a 32 character hex id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}

func checkPayload(payload json.RawMessage) error {
	if len(payload) == 0 || !json.Valid(payload) {
		return ErrInvalidPayload
	}
	return nil
}

func copyPayload(p json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(p))
	copy(out, p)
	return out
}
