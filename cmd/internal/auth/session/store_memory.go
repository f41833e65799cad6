package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a Store for tests and DB-less dev runs.
// It honors the same compare-and-set rotation semantics as PostgresStore,
// serialized under one mutex.
type InMemoryStore struct {
	mu     sync.Mutex
	byHash map[string]Record
}

// NewInMemoryStore constructs an empty in-memory credential store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byHash: make(map[string]Record)}
}

// Insert creates a new credential record.
func (s *InMemoryStore) Insert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[rec.TokenHash] = rec
	return nil
}

// FindByHash loads a credential record by hash.
func (s *InMemoryStore) FindByHash(_ context.Context, hash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hash]
	if !ok {
		return Record{}, ErrUnknownToken
	}
	return rec, nil
}

// Rotate revokes the old record and inserts its replacement atomically.
func (s *InMemoryStore) Rotate(_ context.Context, now time.Time, oldHash string, next Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[oldHash]
	if !ok {
		return ErrUnknownToken
	}
	if rec.RevokedAt != nil {
		return ErrTokenReused
	}

	revoked := now
	replacedBy := next.TokenHash
	rec.RevokedAt = &revoked
	rec.ReplacedByHash = &replacedBy
	s.byHash[oldHash] = rec

	s.byHash[next.TokenHash] = next
	return nil
}

// Revoke marks a single credential revoked (idempotent).
func (s *InMemoryStore) Revoke(_ context.Context, now time.Time, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hash]
	if !ok || rec.RevokedAt != nil {
		return nil
	}
	revoked := now
	rec.RevokedAt = &revoked
	s.byHash[hash] = rec
	return nil
}

// RevokeAllForUser revokes every credential owned by a user (idempotent).
func (s *InMemoryStore) RevokeAllForUser(_ context.Context, now time.Time, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, rec := range s.byHash {
		if rec.UserID != userID || rec.RevokedAt != nil {
			continue
		}
		revoked := now
		rec.RevokedAt = &revoked
		s.byHash[hash] = rec
	}
	return nil
}
