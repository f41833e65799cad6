package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"sparkwave/cmd/internal/directory"
	"sparkwave/cmd/security/password"
	"sparkwave/cmd/security/token"
)

type fakeDirectory struct {
	byEmail map[string]directory.Login
}

func (f *fakeDirectory) FindLoginByEmail(_ context.Context, email string) (directory.Login, error) {
	login, ok := f.byEmail[directory.NormalizeEmail(email)]
	if !ok {
		return directory.Login{}, directory.ErrNotFound
	}
	return login, nil
}

const (
	testEmail    = "ada@example.com"
	testPassword = "correct horse battery staple"
	testUserID   = "01J0000000000000000000USER"
)

func testParams() password.Argon2idParams {
	return password.Argon2idParams{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestService(t *testing.T) (*Service, *InMemoryStore) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PasetoSecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()

	tm, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	hash, err := password.Hash(testPassword, testParams())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	dir := &fakeDirectory{byEmail: map[string]directory.Login{
		testEmail: {
			Profile:      directory.Profile{ID: testUserID, Username: "ada"},
			PasswordHash: hash,
		},
	}}

	store := NewInMemoryStore()
	svc, err := NewService(cfg, nil, tm, store, dir, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, store
}

func TestLoginIssuesPair(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	profile, issued, err := svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if profile.ID != testUserID {
		t.Fatalf("profile.ID = %q, want %q", profile.ID, testUserID)
	}
	if issued.AccessToken == "" || issued.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if !issued.AccessExpiresAt.Before(issued.RefreshExpiresAt) {
		t.Fatal("access token should expire before refresh credential")
	}

	claims, err := svc.VerifyAccess(issued.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.UserID != testUserID {
		t.Fatalf("claims.UserID = %q", claims.UserID)
	}

	// Hash-only storage: the raw credential must not appear anywhere in the
	// stored record.
	rec, err := store.FindByHash(ctx, token.HashCredentialHex(issued.RefreshToken))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if strings.Contains(rec.TokenHash, issued.RefreshToken) || rec.TokenHash == issued.RefreshToken {
		t.Fatal("raw refresh credential leaked into store")
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Login(ctx, "nobody@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, testEmail, "wrong password!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, issued, err := svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rotated, err := svc.Refresh(ctx, issued.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == issued.RefreshToken {
		t.Fatal("rotation must mint a new refresh credential")
	}
	if _, err := svc.VerifyAccess(rotated.AccessToken); err != nil {
		t.Fatalf("rotated access token invalid: %v", err)
	}

	// The new credential works.
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("second rotation: %v", err)
	}
}

func TestRefreshReuseRevokesChain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, issued, err := svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rotated, err := svc.Refresh(ctx, issued.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Replaying the retired credential is reuse.
	if _, err := svc.Refresh(ctx, issued.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("replay: got %v, want ErrTokenReused", err)
	}

	// Chain revocation: the successor minted by the legitimate rotation is
	// dead too, and presenting it counts as reuse of a revoked credential.
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("successor after reuse: got %v, want ErrTokenReused", err)
	}
}

func TestRefreshReuseWithoutChainRevocation(t *testing.T) {
	svc, _ := newTestService(t)
	svc.cfg.RevokeChainOnReuse = false
	ctx := context.Background()

	_, issued, err := svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rotated, err := svc.Refresh(ctx, issued.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := svc.Refresh(ctx, issued.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("replay: got %v, want ErrTokenReused", err)
	}
	// Policy off: the legitimate successor survives.
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("successor should still rotate: %v", err)
	}
}

func TestConcurrentRefreshExactlyOneWinner(t *testing.T) {
	svc, _ := newTestService(t)
	svc.cfg.RevokeChainOnReuse = false
	ctx := context.Background()

	_, issued, err := svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		reuses  int
		unknown int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, issued.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrTokenReused):
				reuses++
			default:
				unknown++
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1 (reuses=%d, other=%d)", wins, reuses, unknown)
	}
	if reuses != n-1 {
		t.Fatalf("reuses = %d, want %d", reuses, n-1)
	}
}

func TestRefreshUnknownCredential(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// A validly signed credential that was never stored (e.g. the store was
	// wiped). Terminal: caller must re-login.
	raw, _, err := svc.tokens.IssueRefresh(testUserID, "rotation-x", svc.now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Refresh(ctx, raw); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("got %v, want ErrUnknownToken", err)
	}
}

func TestRefreshExpiredRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, issued, err := svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	svc.now = func() time.Time { return issued.RefreshExpiresAt.Add(time.Hour) }
	if _, err := svc.Refresh(ctx, issued.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, issued, err := svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, issued.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(ctx, issued.RefreshToken); err != nil {
		t.Fatalf("repeated logout: %v", err)
	}
	if err := svc.Logout(ctx, "never-a-real-credential"); err != nil {
		t.Fatalf("logout of unknown credential: %v", err)
	}
	if err := svc.Logout(ctx, ""); err != nil {
		t.Fatalf("logout with empty credential: %v", err)
	}

	// A logged-out credential presented to Refresh is a replay of a revoked
	// credential, i.e. reuse.
	if _, err := svc.Refresh(ctx, issued.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("got %v, want ErrTokenReused", err)
	}
}
