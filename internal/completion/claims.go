package completion

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultClaimTTL bounds how long a crashed completion can block a retry.
const DefaultClaimTTL = 2 * time.Minute

// ClaimStore grants at most one caller at a time the right to mutate
// upstream state for a payment reference. Claim returns an owner token;
// Release only removes the claim while that token still holds it, so a
// caller whose claim went stale cannot free a newer holder's claim.
type ClaimStore interface {
	Claim(ctx context.Context, reference, orderRef string) (owner string, ok bool, err error)
	Release(ctx context.Context, reference, owner string) error
}

type memoryClaim struct {
	owner string
	at    time.Time
}

type MemoryClaims struct {
	mu     sync.Mutex
	claims map[string]memoryClaim
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryClaims(ttl time.Duration) *MemoryClaims {
	return &MemoryClaims{claims: make(map[string]memoryClaim), ttl: ttl, now: time.Now}
}

func (m *MemoryClaims) Claim(_ context.Context, reference, _ string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if held, ok := m.claims[reference]; ok && now.Sub(held.at) < m.ttl {
		return "", false, nil
	}
	owner := uuid.NewString()
	m.claims[reference] = memoryClaim{owner: owner, at: now}
	return owner, true, nil
}

func (m *MemoryClaims) Release(_ context.Context, reference, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.claims[reference]; ok && held.owner == owner {
		delete(m.claims, reference)
	}
	return nil
}

// PostgresClaims keeps claims in payment_claims so that several gateway
// instances share them.
type PostgresClaims struct {
	db  *sql.DB
	ttl time.Duration
}

func NewPostgresClaims(db *sql.DB, ttl time.Duration) *PostgresClaims {
	return &PostgresClaims{db: db, ttl: ttl}
}

func (p *PostgresClaims) Claim(ctx context.Context, reference, orderRef string) (string, bool, error) {
	owner := uuid.NewString()
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_claims (reference, order_ref, owner, claimed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (reference) DO UPDATE
		SET order_ref = EXCLUDED.order_ref, owner = EXCLUDED.owner, claimed_at = NOW()
		WHERE payment_claims.claimed_at < NOW() - make_interval(secs => $4)`,
		reference, orderRef, owner, p.ttl.Seconds())
	if err != nil {
		return "", false, fmt.Errorf("claim payment %s: %w", reference, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if n != 1 {
		return "", false, nil
	}
	return owner, true, nil
}

func (p *PostgresClaims) Release(ctx context.Context, reference, owner string) error {
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM payment_claims WHERE reference = $1 AND owner = $2`, reference, owner); err != nil {
		return fmt.Errorf("release payment %s: %w", reference, err)
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
