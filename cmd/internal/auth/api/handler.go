// Package api exposes the session lifecycle over HTTP: login, refresh,
// logout, and the authenticated profile endpoint.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sparkwave/cmd/internal/auth/session"
	"sparkwave/cmd/internal/directory"
)

// Handler wires HTTP auth endpoints to the session service and directory.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service
	dir      directory.Store

	// pool is used only for audit rows; nil disables auditing.
	pool *pgxpool.Pool

	loginThrottle *ipThrottle
}

// NewHandler constructs an auth Handler. pool may be nil (audit off).
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, dir directory.Store, pool *pgxpool.Pool) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil || dir == nil {
		return nil, errors.New("auth api: missing dependency")
	}

	return &Handler{
		log:           log,
		cfg:           cfg,
		sessions:      sessions,
		dir:           dir,
		pool:          pool,
		loginThrottle: newIPThrottle(cfg.LoginIPMax, cfg.LoginIPWindow),
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := directory.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	ipKey := ""
	if ip != nil {
		ipKey = ip.String()
	}
	if !h.loginThrottle.Allow(ipKey, now) {
		h.auditLoginRateLimited(ctx, ip, ua, email)
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	profile, issued, err := h.sessions.Login(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.auditLoginFailed(ctx, ip, ua, email)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLoginSuccess(ctx, profile.ID, ip, ua)

	respSession := toSessionResponse(issued)
	if h.cfg.WebRefreshCookieEnabled {
		if _, err := h.setWebSessionCookies(w, issued.RefreshToken, issued.RefreshExpiresAt); err != nil {
			h.log.Error("auth.login.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		respSession.RefreshToken = ""
	}

	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(profile),
		Session: respSession,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if cookieToken, ok := h.refreshTokenFromCookie(r); ok {
		fromCookie = true
		if refreshToken == "" {
			refreshToken = cookieToken
		}
	}
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	issued, err := h.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenReused):
			h.auditRefreshReuse(ctx, ip, ua)
			h.clearWebSessionCookies(w)
			writeError(w, http.StatusUnauthorized, "refresh_reuse_detected", "refresh token reuse detected")
		case errors.Is(err, session.ErrUnknownToken), errors.Is(err, session.ErrInvalidToken):
			h.clearWebSessionCookies(w)
			writeError(w, http.StatusUnauthorized, "invalid_refresh", "refresh credential not accepted")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRefreshSuccess(ctx, ip, ua)

	respSession := toSessionResponse(issued)
	if fromCookie || h.cfg.WebRefreshCookieEnabled {
		if _, err := h.setWebSessionCookies(w, issued.RefreshToken, issued.RefreshExpiresAt); err != nil {
			h.log.Error("auth.refresh.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		respSession.RefreshToken = ""
	}

	writeJSON(w, http.StatusOK, refreshResponse{Session: respSession})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		if cookieToken, ok := h.refreshTokenFromCookie(r); ok {
			refreshToken = cookieToken
		}
	}

	// Logout is idempotent: unknown or absent credentials still succeed.
	if err := h.sessions.Logout(r.Context(), refreshToken); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLogout(r.Context(), clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	p, err := h.dir.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		if directory.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(p)})
}

// requireAuth validates the bearer access token.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	raw := ""
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		raw = strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}

	claims, err := h.sessions.VerifyAccess(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return session.AccessClaims{}, false
	}
	return claims, true
}
