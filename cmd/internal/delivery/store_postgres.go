package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMessageStore implements MessageStore on sparkwave.messages.
type PostgresMessageStore struct {
	pool *pgxpool.Pool
}

// NewPostgresMessageStore builds a Postgres-backed message store.
func NewPostgresMessageStore(pool *pgxpool.Pool) *PostgresMessageStore {
	return &PostgresMessageStore{pool: pool}
}

func (s *PostgresMessageStore) Append(ctx context.Context, m Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sparkwave.messages (id, sender_id, recipient_id, body, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
	`, m.ID, m.Sender, m.Recipient, m.Text, m.CreatedAt)
	return err
}

func (s *PostgresMessageStore) Conversation(ctx context.Context, a, b string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, recipient_id, body, created_at, read_at
		FROM (
			SELECT id, sender_id, recipient_id, body, created_at, read_at
			FROM sparkwave.messages
			WHERE (sender_id = $1 AND recipient_id = $2)
			   OR (sender_id = $2 AND recipient_id = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) latest
		ORDER BY created_at ASC, id ASC
	`, a, b, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Text, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresMessageStore) MarkRead(ctx context.Context, now time.Time, user, other string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sparkwave.messages
		SET read_at = COALESCE(read_at, $3)
		WHERE recipient_id = $1 AND sender_id = $2
	`, user, other, now)
	return err
}

func (s *PostgresMessageStore) UnreadCount(ctx context.Context, user string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sparkwave.messages
		WHERE recipient_id = $1 AND read_at IS NULL
	`, user).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// RecentChats collapses the user's messages into one row per peer: the
// newest message (rn = 1 over a per-peer window) plus that peer's unread
// count, computed in the same scan.
func (s *PostgresMessageStore) RecentChats(ctx context.Context, user string, limit int) ([]ChatSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT peer, id, sender_id, recipient_id, body, created_at, read_at, unread
		FROM (
			SELECT
				CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS peer,
				id, sender_id, recipient_id, body, created_at, read_at,
				ROW_NUMBER() OVER w AS rn,
				COUNT(*) FILTER (WHERE recipient_id = $1 AND read_at IS NULL) OVER p AS unread
			FROM sparkwave.messages
			WHERE sender_id = $1 OR recipient_id = $1
			WINDOW
				p AS (PARTITION BY CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END),
				w AS (p ORDER BY created_at DESC, id DESC)
		) chats
		WHERE rn = 1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, user, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatSummary
	for rows.Next() {
		var c ChatSummary
		m := &c.LastMessage
		if err := rows.Scan(&c.Peer, &m.ID, &m.Sender, &m.Recipient, &m.Text, &m.CreatedAt, &m.ReadAt, &c.Unread); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PostgresNotificationStore implements NotificationStore on
// sparkwave.notifications.
type PostgresNotificationStore struct {
	pool *pgxpool.Pool
}

// NewPostgresNotificationStore builds a Postgres-backed notification store.
func NewPostgresNotificationStore(pool *pgxpool.Pool) *PostgresNotificationStore {
	return &PostgresNotificationStore{pool: pool}
}

func (s *PostgresNotificationStore) Append(ctx context.Context, n NotificationEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sparkwave.notifications (id, recipient_id, actor_id, kind, payload_ref, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)
	`, n.ID, n.Recipient, n.Actor, n.Kind, n.PayloadRef, n.CreatedAt)
	return err
}

func (s *PostgresNotificationStore) ListForUser(ctx context.Context, user string, limit int) ([]NotificationEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, recipient_id, actor_id, kind, payload_ref, created_at, read_at
		FROM sparkwave.notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, user, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationEvent
	for rows.Next() {
		var n NotificationEvent
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Actor, &n.Kind, &n.PayloadRef, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresNotificationStore) MarkAllRead(ctx context.Context, now time.Time, user string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sparkwave.notifications
		SET read_at = COALESCE(read_at, $2)
		WHERE recipient_id = $1
	`, user, now)
	return err
}
