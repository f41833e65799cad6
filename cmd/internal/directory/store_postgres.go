package directory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sparkwave/cmd/internal/ids"
)

// Well-known assistant identity seeded on first use.
const (
	assistantUsername    = "sparkwave_ai"
	assistantDisplayName = "Spark Wave AI Assistant"
	assistantAvatar      = "🤖"
	assistantBio         = "🤖 AI Assistant - Ask me anything!"
)

// PostgresStore implements Store against sparkwave.users.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed directory store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("directory: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// FindLoginByEmail resolves login material by normalized email.
func (s *PostgresStore) FindLoginByEmail(ctx context.Context, email string) (Login, error) {
	var (
		login Login
		p     = &login.Profile
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, username, display_name, avatar, bio, created_at, password_hash
		FROM sparkwave.users
		WHERE email_norm = $1
	`, NormalizeEmail(email)).Scan(
		&p.ID, &p.Username, &p.DisplayName, &p.Avatar, &p.Bio, &p.CreatedAt,
		&login.PasswordHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Login{}, ErrNotFound
	}
	if err != nil {
		return Login{}, err
	}

	return login, nil
}

// GetProfile loads the public profile subset for a user ID.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile

	err := s.pool.QueryRow(ctx, `
		SELECT id, username, display_name, avatar, bio, created_at
		FROM sparkwave.users
		WHERE id = $1
	`, userID).Scan(&p.ID, &p.Username, &p.DisplayName, &p.Avatar, &p.Bio, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}

	return p, nil
}

// Exists reports whether a user ID is present in the directory.
func (s *PostgresStore) Exists(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM sparkwave.users WHERE id = $1`, userID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureAssistant returns the assistant identity, creating it on first use.
// The assistant row carries no usable password hash: nobody logs in as it.
func (s *PostgresStore) EnsureAssistant(ctx context.Context, now time.Time) (Profile, error) {
	var p Profile

	err := s.pool.QueryRow(ctx, `
		SELECT id, username, display_name, avatar, bio, created_at
		FROM sparkwave.users
		WHERE username_norm = $1
	`, assistantUsername).Scan(&p.ID, &p.Username, &p.DisplayName, &p.Avatar, &p.Bio, &p.CreatedAt)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Profile{}, err
	}

	// Concurrent first use: ON CONFLICT keeps the existing row and this insert
	// becomes a no-op, so re-read afterwards.
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO sparkwave.users (
			id, username, username_norm, display_name, avatar, bio,
			password_hash, is_assistant, created_at
		) VALUES ($1, $2, $2, $3, $4, $5, '', TRUE, $6)
		ON CONFLICT (username_norm) DO NOTHING
	`, id, assistantUsername, assistantDisplayName, assistantAvatar, assistantBio, now); err != nil {
		return Profile{}, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT id, username, display_name, avatar, bio, created_at
		FROM sparkwave.users
		WHERE username_norm = $1
	`, assistantUsername).Scan(&p.ID, &p.Username, &p.DisplayName, &p.Avatar, &p.Bio, &p.CreatedAt)
	if err != nil {
		return Profile{}, err
	}

	return p, nil
}
