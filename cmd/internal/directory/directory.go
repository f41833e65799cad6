// Package directory is the boundary to the user directory. The session and
// realtime core never owns full user records; it borrows the public profile
// subset and the stored password hash through this package.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors (stable for errors.Is).
var (
	ErrNotFound = errors.New("user not found")
)

// Profile is the public subset of a user record that the core is allowed to
// compose into outbound payloads.
type Profile struct {
	ID          string
	Username    string
	DisplayName string
	Avatar      string
	Bio         string
	CreatedAt   time.Time
}

// Login carries what the session manager needs to authenticate a user.
// PasswordHash is a PHC-encoded argon2id hash; the core never sees plaintext
// beyond the verify call.
type Login struct {
	Profile      Profile
	PasswordHash string
}

// Store is the read-side boundary the core consumes.
type Store interface {
	// FindLoginByEmail resolves login material by normalized email.
	// Returns ErrNotFound when no user matches.
	FindLoginByEmail(ctx context.Context, email string) (Login, error)

	// GetProfile loads the public profile subset for a user ID.
	// Returns ErrNotFound when no user matches.
	GetProfile(ctx context.Context, userID string) (Profile, error)

	// Exists reports whether a user ID is present in the directory.
	Exists(ctx context.Context, userID string) (bool, error)

	// EnsureAssistant returns the well-known automated-assistant identity,
	// creating it on first use.
	EnsureAssistant(ctx context.Context, now time.Time) (Profile, error)
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
