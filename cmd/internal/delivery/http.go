package delivery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sparkwave/cmd/internal/auth/session"
	"sparkwave/cmd/internal/directory"
)

const defaultConversationLimit = 50

// AccessVerifier validates an access token and yields its claims.
type AccessVerifier interface {
	VerifyAccess(raw string) (session.AccessClaims, error)
}

// Handler exposes the message and notification history over HTTP. Live
// delivery happens over the websocket; this surface serves fetch, send,
// and read-tracking for clients that are catching up.
type Handler struct {
	log    *slog.Logger
	router *Router
	auth   AccessVerifier
}

// NewHandler constructs a delivery HTTP handler.
func NewHandler(log *slog.Logger, router *Router, auth AccessVerifier) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if router == nil || auth == nil {
		return nil, errors.New("delivery http: missing dependency")
	}
	return &Handler{log: log, router: router, auth: auth}, nil
}

// Register wires delivery routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/messages", h.handleMessages)
	mux.HandleFunc("/messages/chats", h.handleChats)
	mux.HandleFunc("/messages/read", h.handleMarkRead)
	mux.HandleFunc("/messages/unread_count", h.handleUnreadCount)
	mux.HandleFunc("/notifications", h.handleNotifications)
	mux.HandleFunc("/notifications/read", h.handleNotificationsRead)
}

type sendRequest struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

type markReadRequest struct {
	With string `json:"with"`
}

type messageResponse struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Text        string     `json:"text"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type notificationResponse struct {
	ID         string     `json:"id"`
	ActorID    string     `json:"actor_id"`
	Kind       string     `json:"kind"`
	PayloadRef string     `json:"payload_ref,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

func toMessageResponse(m Message) messageResponse {
	return messageResponse{
		ID:          m.ID,
		SenderID:    m.Sender,
		RecipientID: m.Recipient,
		Text:        m.Text,
		CreatedAt:   m.CreatedAt,
		ReadAt:      m.ReadAt,
	}
}

type chatResponse struct {
	PeerID      string          `json:"peer_id"`
	LastMessage messageResponse `json:"last_message"`
	Unread      int             `json:"unread"`
}

func toChatResponse(c ChatSummary) chatResponse {
	return chatResponse{
		PeerID:      c.Peer,
		LastMessage: toMessageResponse(c.LastMessage),
		Unread:      c.Unread,
	}
}

func toNotificationResponse(n NotificationEvent) notificationResponse {
	return notificationResponse{
		ID:         n.ID,
		ActorID:    n.Actor,
		Kind:       n.Kind,
		PayloadRef: n.PayloadRef,
		CreatedAt:  n.CreatedAt,
		ReadAt:     n.ReadAt,
	}
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleConversation(w, r)
	case http.MethodPost:
		h.handleSend(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := httpDecodeJSON(w, r, &req); err != nil {
		httpWriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	recipient := strings.TrimSpace(req.RecipientID)
	if recipient == "" {
		httpWriteError(w, http.StatusBadRequest, "invalid_request", "recipient_id is required")
		return
	}

	msg, err := h.router.DeliverMessage(r.Context(), claims.UserID, recipient, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyMessage):
			httpWriteError(w, http.StatusBadRequest, "empty_message", "message text is empty")
		case errors.Is(err, ErrMessageTooLong):
			httpWriteError(w, http.StatusBadRequest, "message_too_long", "message text exceeds limit")
		case errors.Is(err, ErrUnknownRecipient):
			httpWriteError(w, http.StatusNotFound, "unknown_recipient", "recipient does not exist")
		case errors.Is(err, ErrContentRejected):
			httpWriteError(w, http.StatusUnprocessableEntity, "toxic_content", "message rejected by content policy")
		default:
			h.log.Error("delivery.send.fail", "err", err)
			httpWriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpWriteJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	other := strings.TrimSpace(r.URL.Query().Get("with"))
	if other == "" {
		httpWriteError(w, http.StatusBadRequest, "invalid_request", "with is required")
		return
	}
	limit := queryLimit(r, defaultConversationLimit)

	msgs, err := h.router.Conversation(r.Context(), claims.UserID, other, limit)
	if err != nil {
		h.log.Error("delivery.conversation.fail", "err", err)
		httpWriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	httpWriteJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *Handler) handleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	chats, err := h.router.Chats(r.Context(), claims.UserID, queryLimit(r, defaultConversationLimit))
	if err != nil {
		h.log.Error("delivery.chats.fail", "err", err)
		httpWriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, toChatResponse(c))
	}
	httpWriteJSON(w, http.StatusOK, map[string]any{"chats": out})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req markReadRequest
	if err := httpDecodeJSON(w, r, &req); err != nil {
		httpWriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	other := strings.TrimSpace(req.With)
	if other == "" {
		httpWriteError(w, http.StatusBadRequest, "invalid_request", "with is required")
		return
	}

	if err := h.router.MarkConversationRead(r.Context(), claims.UserID, other); err != nil {
		h.log.Error("delivery.mark_read.fail", "err", err)
		httpWriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	n, err := h.router.UnreadCount(r.Context(), claims.UserID)
	if err != nil {
		h.log.Error("delivery.unread_count.fail", "err", err)
		httpWriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpWriteJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	limit := queryLimit(r, defaultConversationLimit)
	notes, err := h.router.Notifications(r.Context(), claims.UserID, limit)
	if err != nil {
		h.log.Error("delivery.notifications.fail", "err", err)
		httpWriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := make([]notificationResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNotificationResponse(n))
	}
	httpWriteJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (h *Handler) handleNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	if err := h.router.MarkNotificationsRead(r.Context(), claims.UserID); err != nil {
		h.log.Error("delivery.notifications_read.fail", "err", err)
		httpWriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	raw := ""
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		raw = strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	if raw == "" {
		httpWriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.auth.VerifyAccess(raw)
	if err != nil {
		httpWriteError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return session.AccessClaims{}, false
	}
	if _, err := h.router.dir.GetProfile(r.Context(), claims.UserID); err != nil {
		if directory.IsNotFound(err) {
			httpWriteError(w, http.StatusUnauthorized, "unauthorized", "user not found")
			return session.AccessClaims{}, false
		}
		h.log.Error("delivery.auth.lookup.fail", "err", err)
		httpWriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return session.AccessClaims{}, false
	}
	return claims, true
}

func queryLimit(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > 200 {
		return 200
	}
	return n
}

func httpWriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpWriteError(w http.ResponseWriter, status int, code, msg string) {
	httpWriteJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}

func httpDecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected extra data")
	}
	return nil
}
