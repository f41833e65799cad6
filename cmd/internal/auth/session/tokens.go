package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Token purposes embedded in the "typ" claim. An access token must never be
// accepted where a refresh credential is expected, and vice versa.
const (
	purposeAccess  = "access"
	purposeRefresh = "refresh"
)

// AccessClaims is the minimal identity envelope propagated across HTTP/WS.
type AccessClaims struct {
	UserID    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// RefreshClaims identifies the owner and rotation of a refresh credential.
// RotationID is a fresh random value per issuance; it exists only to make each
// raw credential value (and hence its stored hash) unique per rotation.
type RefreshClaims struct {
	UserID     string
	RotationID string
	ExpiresAt  time.Time
}

// TokenManager issues and verifies the credential pair.
type TokenManager interface {
	IssueAccess(userID string, now time.Time) (token string, exp time.Time, err error)
	IssueRefresh(userID, rotationID string, now time.Time) (token string, exp time.Time, err error)
	VerifyAccess(token string, now time.Time) (AccessClaims, error)
	VerifyRefresh(token string, now time.Time) (RefreshClaims, error)
	PublicKeyHex() string
}

type pasetoV4PublicManager struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clockSkew  time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds a TokenManager based on PASETO v4.public.
//
// It uses an Ed25519 asymmetric keypair and enforces issuer and expiration
// rules. Clock skew is applied during verification via ValidAt to tolerate
// minor clock differences.
func NewPasetoV4PublicManager(cfg Config) (TokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoSecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4PublicManager{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clockSkew:  cfg.ClockSkew,
		secret:     secret,
		public:     secret.Public(),
	}, nil
}

func (m *pasetoV4PublicManager) PublicKeyHex() string {
	return m.public.ExportHex()
}

func (m *pasetoV4PublicManager) IssueAccess(userID string, now time.Time) (string, time.Time, error) {
	return m.issue(userID, "", purposeAccess, now, m.accessTTL)
}

func (m *pasetoV4PublicManager) IssueRefresh(userID, rotationID string, now time.Time) (string, time.Time, error) {
	return m.issue(userID, rotationID, purposeRefresh, now, m.refreshTTL)
}

func (m *pasetoV4PublicManager) issue(userID, rotationID, purpose string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)

	// Minimal, explicit claims.
	_ = tok.Set("uid", userID)
	_ = tok.Set("typ", purpose)
	if rotationID != "" {
		_ = tok.Set("rid", rotationID)
	}

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	parsed, err := m.parse(token, now)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	if typ, err := parsed.GetString("typ"); err != nil || typ != purposeAccess {
		return AccessClaims{}, ErrInvalidToken
	}
	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	iss, _ := parsed.GetIssuer()
	exp, _ := parsed.GetExpiration()
	iat, _ := parsed.GetIssuedAt()

	return AccessClaims{
		UserID:    uid,
		ExpiresAt: exp,
		IssuedAt:  iat,
		Issuer:    iss,
	}, nil
}

func (m *pasetoV4PublicManager) VerifyRefresh(token string, now time.Time) (RefreshClaims, error) {
	parsed, err := m.parse(token, now)
	if err != nil {
		return RefreshClaims{}, ErrInvalidToken
	}

	if typ, err := parsed.GetString("typ"); err != nil || typ != purposeRefresh {
		return RefreshClaims{}, ErrInvalidToken
	}
	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	rid, err := parsed.GetString("rid")
	if err != nil || rid == "" {
		return RefreshClaims{}, ErrInvalidToken
	}

	exp, _ := parsed.GetExpiration()

	return RefreshClaims{
		UserID:     uid,
		RotationID: rid,
		ExpiresAt:  exp,
	}, nil
}

func (m *pasetoV4PublicManager) parse(token string, now time.Time) (*paseto.Token, error) {
	// Clock-skew tolerance:
	// Validate slightly in the future to avoid failing "nbf" when clocks differ.
	// This also makes expiration checks slightly stricter, which is typically desirable.
	validNow := now.Add(m.clockSkew)

	// Build a fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	return p.ParseV4Public(m.public, token, nil)
}
