package session

import (
	"context"
	"time"
)

// Record is the durable state of one long-lived refresh credential.
// IMPORTANT: TokenHash is the only credential-derived field stored server-side;
// the raw credential value never reaches the store.
type Record struct {
	ID        string
	UserID    string
	TokenHash string

	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time

	// Rotation chain: when rotated, the old record is revoked and points at the
	// hash of its replacement.
	ReplacedByHash *string
}

// Store abstracts persistence for refresh credential records.
//
// Implementations must provide rotation safety: Rotate's revocation step is a
// conditional compare-and-set keyed on the hash and the revoked flag, so that
// two concurrent rotations of the same credential produce exactly one winner
// even across process replicas.
type Store interface {
	// Insert creates a new credential record.
	Insert(ctx context.Context, rec Record) error

	// FindByHash loads a record by credential hash.
	// Returns ErrUnknownToken when no record matches.
	FindByHash(ctx context.Context, hash string) (Record, error)

	// Rotate atomically revokes the record identified by oldHash and creates
	// next. The old record is marked revoked and linked to next's hash before
	// next is durably created, so a fault between the steps fails closed (old
	// credential unusable, no new credential issued). The revocation is
	// conditional on the record not already being revoked; losing that race
	// returns ErrTokenReused and next is not created.
	Rotate(ctx context.Context, now time.Time, oldHash string, next Record) error

	// Revoke marks the record with the given hash revoked. Idempotent: unknown
	// or already-revoked hashes are not an error.
	Revoke(ctx context.Context, now time.Time, hash string) error

	// RevokeAllForUser revokes every record owned by userID (chain revocation
	// on reuse detection, logout-everywhere). Idempotent.
	RevokeAllForUser(ctx context.Context, now time.Time, userID string) error
}
