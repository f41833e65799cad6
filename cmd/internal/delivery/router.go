// Package delivery routes direct messages and notification events: durable
// write first, live push second. A recipient that misses the push still finds
// the message in the store; a recipient that gets the push can trust it was
// recorded.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	v1 "sparkwave/shared/contracts/realtime/v1"

	"sparkwave/cmd/internal/directory"
	"sparkwave/cmd/internal/ids"
	"sparkwave/cmd/internal/metrics"
	"sparkwave/cmd/internal/safety"
)

// Pusher delivers an envelope to a user's live connection, if any.
// Implementations report false when the user is offline or their send queue
// is full; the router never treats that as an error.
type Pusher interface {
	TryPush(userID string, env v1.Envelope) bool
}

// noopPusher is used until the realtime gateway attaches.
type noopPusher struct{}

func (noopPusher) TryPush(string, v1.Envelope) bool { return false }

const assistantReplyTimeout = 20 * time.Second

// Router is the durability-before-push delivery core.
type Router struct {
	log   *slog.Logger
	msgs  MessageStore
	notes NotificationStore
	dir   directory.Store

	pusher  Pusher
	checker safety.Checker // nil: moderation off
	gen     safety.Generator

	metrics *metrics.Collector
	now     func() time.Time

	// assistantMu guards assistantID: resolution can run concurrently from
	// DeliverMessage calls and assistant-reply goroutines, and may be retried
	// after a transient directory failure.
	assistantMu sync.Mutex
	assistantID string
}

// NewRouter wires a delivery Router. checker, gen, and mc may be nil.
func NewRouter(log *slog.Logger, msgs MessageStore, notes NotificationStore, dir directory.Store, checker safety.Checker, gen safety.Generator, mc *metrics.Collector) (*Router, error) {
	if log == nil {
		log = slog.Default()
	}
	if msgs == nil || notes == nil || dir == nil {
		return nil, errors.New("delivery: missing dependency")
	}
	return &Router{
		log:     log,
		msgs:    msgs,
		notes:   notes,
		dir:     dir,
		pusher:  noopPusher{},
		checker: checker,
		gen:     gen,
		metrics: mc,
		now:     time.Now,
	}, nil
}

// AttachPusher connects the live-push side. Call before serving traffic.
func (r *Router) AttachPusher(p Pusher) {
	if p != nil {
		r.pusher = p
	}
}

// AssistantID resolves (and caches) the assistant identity.
func (r *Router) AssistantID(ctx context.Context) (string, error) {
	r.assistantMu.Lock()
	defer r.assistantMu.Unlock()

	if r.assistantID != "" {
		return r.assistantID, nil
	}
	p, err := r.dir.EnsureAssistant(ctx, r.now())
	if err != nil {
		return "", err
	}
	r.assistantID = p.ID
	return p.ID, nil
}

// DeliverMessage records a direct message and then pushes it.
//
// Order is fixed: content gate, durable write, notification write, push. The
// content gate fails open: a moderation outage logs a warning and lets the
// message through, but a positive toxic verdict rejects it before anything is
// stored. The sender is never notified about their own message.
func (r *Router) DeliverMessage(ctx context.Context, sender, recipient, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if len(text) > MaxMessageLen {
		return Message{}, ErrMessageTooLong
	}

	ok, err := r.dir.Exists(ctx, recipient)
	if err != nil {
		return Message{}, err
	}
	if !ok {
		return Message{}, ErrUnknownRecipient
	}

	if r.checker != nil {
		v, err := r.checker.Check(ctx, text)
		switch {
		case err != nil:
			// Fail open: moderation being down must not block messaging.
			r.log.WarnContext(ctx, "content check unavailable, allowing message",
				slog.String("sender", sender),
				slog.String("error", err.Error()),
			)
		case v.Toxic:
			r.metrics.RecordMessageRejected()
			r.log.InfoContext(ctx, "message rejected",
				slog.String("sender", sender),
				slog.Float64("score", v.Score),
			)
			return Message{}, ErrContentRejected
		}
	}

	m, err := r.persistAndPush(ctx, sender, recipient, text)
	if err != nil {
		return Message{}, err
	}

	if aid, aerr := r.AssistantID(ctx); aerr == nil && recipient == aid {
		r.scheduleAssistantReply(sender, text)
	}

	return m, nil
}

// persistAndPush is the shared durable path for user and assistant messages.
func (r *Router) persistAndPush(ctx context.Context, sender, recipient, text string) (Message, error) {
	now := r.now()

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		CreatedAt: now,
	}
	if err := r.msgs.Append(ctx, m); err != nil {
		return Message{}, err
	}
	r.metrics.RecordMessageDelivered()

	if recipient != sender {
		if err := r.notifyMessage(ctx, m); err != nil {
			// The message itself is durable; a lost notification row is a
			// degraded-but-correct outcome.
			r.log.ErrorContext(ctx, "notification write failed",
				slog.String("message_id", m.ID),
				slog.String("error", err.Error()),
			)
		}

		if env, err := v1.NewEnvelope(v1.TypeMessageNew, m.ID, m.CreatedAt, v1.MessageNewPayload{
			MessageID: m.ID,
			Sender:    m.Sender,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		}); err == nil {
			r.pusher.TryPush(recipient, env)
		}
	}

	return m, nil
}

func (r *Router) notifyMessage(ctx context.Context, m Message) error {
	nid, err := ids.NewULID(m.CreatedAt)
	if err != nil {
		return err
	}
	n := NotificationEvent{
		ID:         nid,
		Recipient:  m.Recipient,
		Actor:      m.Sender,
		Kind:       "message",
		PayloadRef: m.ID,
		CreatedAt:  m.CreatedAt,
	}
	if err := r.notes.Append(ctx, n); err != nil {
		return err
	}
	r.metrics.RecordNotification()

	if env, err := v1.NewEnvelope(v1.TypeNotificationNew, n.ID, n.CreatedAt, v1.NotificationNewPayload{
		NotificationID: n.ID,
		Actor:          n.Actor,
		Kind:           n.Kind,
		PayloadRef:     n.PayloadRef,
		CreatedAt:      n.CreatedAt,
	}); err == nil {
		r.pusher.TryPush(n.Recipient, env)
	}
	return nil
}

// Notify records a notification event from the outer app (like, comment,
// follow) and pushes it. Self-notifications are dropped without error.
func (r *Router) Notify(ctx context.Context, recipient, actor, kind, payloadRef string) (NotificationEvent, error) {
	if recipient == actor {
		return NotificationEvent{}, nil
	}

	ok, err := r.dir.Exists(ctx, recipient)
	if err != nil {
		return NotificationEvent{}, err
	}
	if !ok {
		return NotificationEvent{}, ErrUnknownRecipient
	}

	now := r.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return NotificationEvent{}, err
	}
	n := NotificationEvent{
		ID:         id,
		Recipient:  recipient,
		Actor:      actor,
		Kind:       kind,
		PayloadRef: payloadRef,
		CreatedAt:  now,
	}
	if err := r.notes.Append(ctx, n); err != nil {
		return NotificationEvent{}, err
	}
	r.metrics.RecordNotification()

	if env, err := v1.NewEnvelope(v1.TypeNotificationNew, n.ID, n.CreatedAt, v1.NotificationNewPayload{
		NotificationID: n.ID,
		Actor:          n.Actor,
		Kind:           n.Kind,
		PayloadRef:     n.PayloadRef,
		CreatedAt:      n.CreatedAt,
	}); err == nil {
		r.pusher.TryPush(n.Recipient, env)
	}

	return n, nil
}

// AssistantReply generates and delivers the assistant's answer to a user
// message. Generation failures fall back to a canned line; the reply always
// goes through the same durable path as a user message, skipping the content
// gate (the assistant is trusted).
func (r *Router) AssistantReply(ctx context.Context, toUser, prompt string) (Message, error) {
	aid, err := r.AssistantID(ctx)
	if err != nil {
		return Message{}, err
	}

	reply := safety.FallbackReply
	if r.gen != nil {
		if got, err := r.gen.Reply(ctx, prompt); err == nil {
			reply = got
		} else {
			r.log.WarnContext(ctx, "assistant generation failed, using fallback",
				slog.String("error", err.Error()),
			)
		}
	}

	return r.persistAndPush(ctx, aid, toUser, reply)
}

func (r *Router) scheduleAssistantReply(toUser, prompt string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), assistantReplyTimeout)
		defer cancel()

		if _, err := r.AssistantReply(ctx, toUser, prompt); err != nil {
			r.log.Error("assistant reply failed",
				slog.String("to", toUser),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Conversation returns recent messages between two users, oldest first.
func (r *Router) Conversation(ctx context.Context, a, b string, limit int) ([]Message, error) {
	return r.msgs.Conversation(ctx, a, b, limit)
}

// MarkConversationRead marks messages from other to user as read.
func (r *Router) MarkConversationRead(ctx context.Context, user, other string) error {
	return r.msgs.MarkRead(ctx, r.now(), user, other)
}

// UnreadCount returns the number of unread messages addressed to user.
func (r *Router) UnreadCount(ctx context.Context, user string) (int, error) {
	return r.msgs.UnreadCount(ctx, user)
}

// Chats returns the user's recent conversations, newest activity first.
func (r *Router) Chats(ctx context.Context, user string, limit int) ([]ChatSummary, error) {
	return r.msgs.RecentChats(ctx, user, limit)
}

// Notifications returns recent notification events for user, newest first.
func (r *Router) Notifications(ctx context.Context, user string, limit int) ([]NotificationEvent, error) {
	return r.notes.ListForUser(ctx, user, limit)
}

// MarkNotificationsRead marks all of user's notification events read.
func (r *Router) MarkNotificationsRead(ctx context.Context, user string) error {
	return r.notes.MarkAllRead(ctx, r.now(), user)
}
