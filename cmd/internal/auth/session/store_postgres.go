package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (sparkwave.credentials).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed credential store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Insert creates a new credential record.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sparkwave.credentials (
			id, user_id, token_hash,
			created_at, expires_at, revoked_at, replaced_by_hash
		) VALUES ($1, $2, $3, $4, $5, NULL, NULL)
	`, rec.ID, rec.UserID, rec.TokenHash, rec.CreatedAt, rec.ExpiresAt)
	return err
}

// FindByHash loads a credential record by hash.
func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (Record, error) {
	var rec Record

	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, replaced_by_hash
		FROM sparkwave.credentials
		WHERE token_hash = $1
	`, hash).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rec.RevokedAt,
		&rec.ReplacedByHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrUnknownToken
	}
	if err != nil {
		return Record{}, err
	}

	return rec, nil
}

// Rotate revokes the old record and inserts its replacement in one transaction.
//
// The revocation is a conditional update on revoked_at IS NULL. The database,
// not application-level locking, arbitrates concurrent rotations: of two
// racing calls presenting the same hash, exactly one update wins; the loser
// observes zero affected rows and reports ErrTokenReused. A second process
// replica observes the same invariant.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, oldHash string, next Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Revoke-and-link first: a fault after this statement but before the
	// insert leaves the old credential dead and no new one issued (fail closed).
	tag, err := tx.Exec(ctx, `
		UPDATE sparkwave.credentials
		SET revoked_at = $2, replaced_by_hash = $3
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, oldHash, now, next.TokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenReused
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sparkwave.credentials (
			id, user_id, token_hash,
			created_at, expires_at, revoked_at, replaced_by_hash
		) VALUES ($1, $2, $3, $4, $5, NULL, NULL)
	`, next.ID, next.UserID, next.TokenHash, next.CreatedAt, next.ExpiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Revoke marks a single credential revoked (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, hash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sparkwave.credentials
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1
	`, hash, now)
	return err
}

// RevokeAllForUser revokes every credential owned by a user (idempotent).
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, now time.Time, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sparkwave.credentials
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE user_id = $1
	`, userID, now)
	return err
}
