package session

import "errors"

var (
	// ErrInvalidCredentials is returned on failed login. It is deliberately
	// generic: callers must not learn whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a credential fails verification
	// (bad signature, malformed payload, or expiry in the past).
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownToken is returned when a verified refresh credential does not
	// match any stored record. Terminal; the caller must re-login.
	ErrUnknownToken = errors.New("unknown token")

	// ErrTokenReused is returned when a revoked refresh credential is presented
	// again. Security-relevant: operators alert on it, and by default the whole
	// rotation chain for the owner is revoked.
	ErrTokenReused = errors.New("refresh token reuse detected")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
