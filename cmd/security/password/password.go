// Package password implements Argon2id password hashing with PHC-style
// encoding. The session core consumes it only through the Verify side; Hash
// exists for provisioning (seeding the assistant account, fixtures, tooling).
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams defines Argon2id hashing parameters.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns parameters balancing security and latency for an
// interactive login path.
func DefaultParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Anti-DoS ceilings applied while decoding untrusted PHC strings during Verify.
const (
	maxVerifyMemoryKiB   = 1 << 21 // 2 GiB
	maxVerifyIterations  = 16
	maxVerifyParallelism = 16

	minPasswordLen = 8
	maxPasswordLen = 256
)

// Hash returns a PHC-style Argon2id hash string for the given password.
func Hash(passwordPlain string, p Argon2idParams) (string, error) {
	if len(passwordPlain) < minPasswordLen {
		return "", ErrPasswordTooShort
	}
	if len(passwordPlain) > maxPasswordLen {
		return "", ErrPasswordTooLong
	}
	if p.Parallelism == 0 {
		p.Parallelism = 1
	}
	if p.Iterations == 0 {
		p.Iterations = 1
	}
	if p.MemoryKiB < 8*1024 {
		p.MemoryKiB = 8 * 1024
	}
	if p.SaltLength < 8 {
		p.SaltLength = 16
	}
	if p.KeyLength < 16 {
		p.KeyLength = 32
	}

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(passwordPlain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.MemoryKiB, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks a password against a PHC-encoded Argon2id hash.
// Decoding is strict, and parameters wildly above the configured ceilings are
// refused rather than executed.
func Verify(passwordPlain, encodedPHC string) (bool, error) {
	if len(passwordPlain) == 0 || len(passwordPlain) > maxPasswordLen {
		return false, nil
	}

	params, salt, key, err := decodePHC(encodedPHC)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(passwordPlain), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

func decodePHC(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var p Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if p.MemoryKiB == 0 || p.MemoryKiB > maxVerifyMemoryKiB ||
		p.Iterations == 0 || p.Iterations > maxVerifyIterations ||
		p.Parallelism == 0 || p.Parallelism > maxVerifyParallelism {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return p, salt, key, nil
}
