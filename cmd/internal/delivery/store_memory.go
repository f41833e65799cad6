package delivery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryMessageStore is a MessageStore for tests and DB-less dev runs.
type InMemoryMessageStore struct {
	mu   sync.Mutex
	msgs []Message
}

// NewInMemoryMessageStore constructs an empty in-memory message store.
func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{}
}

func (s *InMemoryMessageStore) Append(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *InMemoryMessageStore) Conversation(_ context.Context, a, b string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, m := range s.msgs {
		if (m.Sender == a && m.Recipient == b) || (m.Sender == b && m.Recipient == a) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryMessageStore) MarkRead(_ context.Context, now time.Time, user, other string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.msgs {
		m := &s.msgs[i]
		if m.Recipient == user && m.Sender == other && m.ReadAt == nil {
			t := now
			m.ReadAt = &t
		}
	}
	return nil
}

func (s *InMemoryMessageStore) UnreadCount(_ context.Context, user string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, m := range s.msgs {
		if m.Recipient == user && m.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryMessageStore) RecentChats(_ context.Context, user string, limit int) ([]ChatSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byPeer := make(map[string]*ChatSummary)
	for _, m := range s.msgs {
		var peer string
		switch user {
		case m.Sender:
			peer = m.Recipient
		case m.Recipient:
			peer = m.Sender
		default:
			continue
		}

		c, ok := byPeer[peer]
		if !ok {
			c = &ChatSummary{Peer: peer}
			byPeer[peer] = c
		}
		if c.LastMessage.ID == "" || m.CreatedAt.After(c.LastMessage.CreatedAt) {
			c.LastMessage = m
		}
		if m.Recipient == user && m.ReadAt == nil {
			c.Unread++
		}
	}

	out := make([]ChatSummary, 0, len(byPeer))
	for _, c := range byPeer {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a copy of every stored message, in append order.
func (s *InMemoryMessageStore) All() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// InMemoryNotificationStore is a NotificationStore for tests and DB-less runs.
type InMemoryNotificationStore struct {
	mu     sync.Mutex
	events []NotificationEvent
}

// NewInMemoryNotificationStore constructs an empty in-memory store.
func NewInMemoryNotificationStore() *InMemoryNotificationStore {
	return &InMemoryNotificationStore{}
}

func (s *InMemoryNotificationStore) Append(_ context.Context, n NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n)
	return nil
}

func (s *InMemoryNotificationStore) ListForUser(_ context.Context, user string, limit int) ([]NotificationEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []NotificationEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].Recipient == user {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *InMemoryNotificationStore) MarkAllRead(_ context.Context, now time.Time, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].Recipient == user && s.events[i].ReadAt == nil {
			t := now
			s.events[i].ReadAt = &t
		}
	}
	return nil
}

// All returns a copy of every stored event, in append order.
func (s *InMemoryNotificationStore) All() []NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NotificationEvent, len(s.events))
	copy(out, s.events)
	return out
}
