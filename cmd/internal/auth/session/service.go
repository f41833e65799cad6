package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sparkwave/cmd/internal/directory"
	"sparkwave/cmd/internal/ids"
	"sparkwave/cmd/internal/metrics"
	"sparkwave/cmd/security/password"
	"sparkwave/cmd/security/token"
)

// UserDirectory is the slice of the directory the session manager needs.
type UserDirectory interface {
	FindLoginByEmail(ctx context.Context, email string) (directory.Login, error)
}

// Issued is a freshly minted credential pair.
type Issued struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service implements the session lifecycle: login, refresh rotation with
// reuse detection, logout, and access verification.
//
// It holds no database handle of its own; rotation atomicity lives in
// Store.Rotate, so the service behaves identically over Postgres and the
// in-memory store.
type Service struct {
	cfg     Config
	log     *slog.Logger
	tokens  TokenManager
	store   Store
	dir     UserDirectory
	metrics *metrics.Collector

	// dummyHash is verified against when the email is unknown, so a failed
	// lookup costs the same as a failed password.
	dummyHash string

	now func() time.Time
}

// NewService wires a session Service. metrics may be nil.
func NewService(cfg Config, log *slog.Logger, tm TokenManager, store Store, dir UserDirectory, mc *metrics.Collector) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if tm == nil || store == nil || dir == nil {
		return nil, errors.New("session: missing dependency")
	}

	dummy, err := password.Hash("sparkwave-timing-equalizer", password.DefaultParams())
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		log:       log,
		tokens:    tm,
		store:     store,
		dir:       dir,
		metrics:   mc,
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

// Login authenticates email+password and issues a fresh credential pair.
// Failures are uniformly ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, passwordPlain string) (directory.Profile, Issued, error) {
	now := s.now()

	login, err := s.dir.FindLoginByEmail(ctx, email)
	if err != nil {
		if directory.IsNotFound(err) {
			// Burn the same argon2 work as a real verify.
			_, _ = password.Verify(passwordPlain, s.dummyHash)
			s.metrics.RecordLogin(false)
			return directory.Profile{}, Issued{}, ErrInvalidCredentials
		}
		return directory.Profile{}, Issued{}, err
	}

	ok, err := password.Verify(passwordPlain, login.PasswordHash)
	if err != nil || !ok {
		s.metrics.RecordLogin(false)
		return directory.Profile{}, Issued{}, ErrInvalidCredentials
	}

	issued, err := s.issuePair(ctx, login.Profile.ID, now)
	if err != nil {
		return directory.Profile{}, Issued{}, err
	}

	s.metrics.RecordLogin(true)
	s.log.InfoContext(ctx, "login", slog.String("user_id", login.Profile.ID))
	return login.Profile, issued, nil
}

// Refresh rotates a refresh credential: the presented credential is retired
// and a new pair is issued. Presenting an already-retired credential is
// treated as reuse.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (Issued, error) {
	now := s.now()

	claims, err := s.tokens.VerifyRefresh(rawRefresh, now)
	if err != nil {
		return Issued{}, ErrInvalidToken
	}

	hash := token.HashCredentialHex(rawRefresh)

	rec, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		return Issued{}, err
	}
	if rec.RevokedAt != nil {
		return Issued{}, s.onReuse(ctx, rec)
	}
	if now.After(rec.ExpiresAt) {
		return Issued{}, ErrInvalidToken
	}

	refreshTok, refreshExp, err := s.tokens.IssueRefresh(claims.UserID, uuid.NewString(), now)
	if err != nil {
		return Issued{}, err
	}
	nextID, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, err
	}
	next := Record{
		ID:        nextID,
		UserID:    rec.UserID,
		TokenHash: token.HashCredentialHex(refreshTok),
		CreatedAt: now,
		ExpiresAt: refreshExp,
	}

	if err := s.store.Rotate(ctx, now, hash, next); err != nil {
		if errors.Is(err, ErrTokenReused) {
			// Lost the compare-and-set: someone else already rotated this hash.
			return Issued{}, s.onReuse(ctx, rec)
		}
		return Issued{}, err
	}

	accessTok, accessExp, err := s.tokens.IssueAccess(claims.UserID, now)
	if err != nil {
		return Issued{}, err
	}

	s.metrics.RecordRotation()
	return Issued{
		AccessToken:      accessTok,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshTok,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// onReuse handles a detected replay of a retired refresh credential: audit
// log, metric, and (by policy) revocation of the owner's whole chain.
func (s *Service) onReuse(ctx context.Context, rec Record) error {
	s.metrics.RecordReuseDetected()
	s.log.WarnContext(ctx, "refresh reuse detected",
		slog.String("user_id", rec.UserID),
		slog.String("credential_id", rec.ID),
		slog.Bool("revoke_chain", s.cfg.RevokeChainOnReuse),
	)

	if s.cfg.RevokeChainOnReuse {
		if err := s.store.RevokeAllForUser(ctx, s.now(), rec.UserID); err != nil {
			s.log.ErrorContext(ctx, "chain revocation failed",
				slog.String("user_id", rec.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
	return ErrTokenReused
}

// Logout retires the presented refresh credential. Idempotent: unknown,
// malformed, or already-retired credentials are not an error.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}
	// No signature check here: logout must work even for credentials we would
	// no longer accept, and the hash lookup cannot match foreign input anyway.
	return s.store.Revoke(ctx, s.now(), token.HashCredentialHex(rawRefresh))
}

// VerifyAccess validates a short-lived access token and returns its claims.
func (s *Service) VerifyAccess(raw string) (AccessClaims, error) {
	return s.tokens.VerifyAccess(raw, s.now())
}

// PublicKeyHex exposes the verification key for external verifiers.
func (s *Service) PublicKeyHex() string {
	return s.tokens.PublicKeyHex()
}

func (s *Service) issuePair(ctx context.Context, userID string, now time.Time) (Issued, error) {
	accessTok, accessExp, err := s.tokens.IssueAccess(userID, now)
	if err != nil {
		return Issued{}, err
	}
	refreshTok, refreshExp, err := s.tokens.IssueRefresh(userID, uuid.NewString(), now)
	if err != nil {
		return Issued{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, err
	}
	rec := Record{
		ID:        id,
		UserID:    userID,
		TokenHash: token.HashCredentialHex(refreshTok),
		CreatedAt: now,
		ExpiresAt: refreshExp,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return Issued{}, err
	}

	return Issued{
		AccessToken:      accessTok,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshTok,
		RefreshExpiresAt: refreshExp,
	}, nil
}
