package delivery

import (
	"context"
	"time"
)

// MaxMessageLen caps message text length in bytes.
const MaxMessageLen = 2000

// Message is one durably recorded direct message.
type Message struct {
	ID        string
	Sender    string
	Recipient string
	Text      string
	CreatedAt time.Time
	ReadAt    *time.Time
}

// NotificationEvent is one durably recorded notification.
type NotificationEvent struct {
	ID         string
	Recipient  string
	Actor      string
	Kind       string // "message", "like", "comment", "follow"
	PayloadRef string // opaque reference into the owning domain (message ID, post ID)
	CreatedAt  time.Time
	ReadAt     *time.Time
}

// ChatSummary is one entry in a user's recent-conversation list: the peer,
// the newest message exchanged with them, and how many of their messages
// remain unread.
type ChatSummary struct {
	Peer        string
	LastMessage Message
	Unread      int
}

// MessageStore persists direct messages. Durability here gates every push:
// the router never pushes a message it could not store.
type MessageStore interface {
	// Append stores one message.
	Append(ctx context.Context, m Message) error

	// Conversation returns up to limit messages exchanged between a and b,
	// oldest first.
	Conversation(ctx context.Context, a, b string, limit int) ([]Message, error)

	// MarkRead marks all messages sent by other to user as read.
	MarkRead(ctx context.Context, now time.Time, user, other string) error

	// UnreadCount returns the number of unread messages addressed to user.
	UnreadCount(ctx context.Context, user string) (int, error)

	// RecentChats returns up to limit conversations involving user, ordered
	// by the newest message in each, newest conversation first.
	RecentChats(ctx context.Context, user string, limit int) ([]ChatSummary, error)
}

// NotificationStore persists notification events.
type NotificationStore interface {
	// Append stores one notification event.
	Append(ctx context.Context, n NotificationEvent) error

	// ListForUser returns up to limit events for user, newest first.
	ListForUser(ctx context.Context, user string, limit int) ([]NotificationEvent, error)

	// MarkAllRead marks every event for user as read.
	MarkAllRead(ctx context.Context, now time.Time, user string) error
}
