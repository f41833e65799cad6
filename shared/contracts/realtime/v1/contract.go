// Package v1 defines the Spark Wave realtime wire protocol.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeMessageSend requests delivery of a direct message (client -> server).
	TypeMessageSend = "message_send"
	// TypeMessageSent acknowledges a durably recorded message (server -> sender).
	TypeMessageSent = "message_sent"
	// TypeMessageNew pushes a newly recorded message (server -> recipient).
	TypeMessageNew = "message_new"

	// TypeTyping signals the sender started typing (client -> server).
	TypeTyping = "typing"
	// TypeTypingStop signals the sender stopped typing (client -> server).
	TypeTypingStop = "typing_stop"
	// TypeUserTyping relays a typing signal (server -> recipient).
	TypeUserTyping = "user_typing"
	// TypeUserTypingStop relays a stop-typing signal (server -> recipient).
	TypeUserTypingStop = "user_typing_stop"

	// TypeUserOnline announces a user came online (server -> all other peers).
	TypeUserOnline = "user_online"
	// TypeUserOffline announces a user went offline (server -> all other peers).
	TypeUserOffline = "user_offline"

	// TypeNotificationNew pushes a persisted notification (server -> recipient).
	TypeNotificationNew = "notification_new"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeMessageSend,
		TypeMessageSent,
		TypeMessageNew,
		TypeTyping,
		TypeTypingStop,
		TypeUserTyping,
		TypeUserTypingStop,
		TypeUserOnline,
		TypeUserOffline,
		TypeNotificationNew,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// NewEnvelope wraps payload into a versioned envelope.
func NewEnvelope(typ, id string, ts time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts, Payload: raw}, nil
}

// ---- Payloads ----

// MessageSendPayload requests sending a direct message to a recipient.
type MessageSendPayload struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// MessageSentPayload confirms that a message was durably recorded.
type MessageSentPayload struct {
	MessageID string    `json:"message_id"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageNewPayload carries a newly recorded message to its recipient.
type MessageNewPayload struct {
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TypingPayload addresses a typing or stop-typing signal.
type TypingPayload struct {
	Recipient string `json:"recipient"`
}

// UserTypingPayload relays a typing or stop-typing signal to the recipient.
type UserTypingPayload struct {
	Sender string `json:"sender"`
}

// PresencePayload announces a presence transition for a user.
type PresencePayload struct {
	UserID string `json:"user_id"`
}

// NotificationNewPayload pushes a persisted notification event.
type NotificationNewPayload struct {
	NotificationID string    `json:"notification_id"`
	Actor          string    `json:"actor"`
	Kind           string    `json:"kind"`
	PayloadRef     string    `json:"payload_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
