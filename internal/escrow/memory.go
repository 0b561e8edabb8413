package escrow

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]record
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]record),
		ttl:     normalizeTTL(ttl),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, payload json.RawMessage) (string, error) {
	if err := checkPayload(payload); err != nil {
		return "", err
	}
	now := s.now()
	id := NewID()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; exists {
		return "", ErrDuplicateID
	}
	s.records[id] = record{
		payload:   copyPayload(payload),
		createdAt: now,
		expiresAt: now.Add(s.ttl),
	}
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.expired(s.now()) {
		return nil, ErrNotFound
	}
	return copyPayload(rec.payload), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if rec.expired(now) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
