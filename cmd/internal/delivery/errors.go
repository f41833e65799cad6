package delivery

import "errors"

var (
	// ErrEmptyMessage is returned for whitespace-only or over-long message text.
	ErrEmptyMessage = errors.New("empty message")

	// ErrMessageTooLong is returned when text exceeds MaxMessageLen.
	ErrMessageTooLong = errors.New("message too long")

	// ErrUnknownRecipient is returned when the recipient is not in the directory.
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrContentRejected is returned when the content-safety gate rejects the
	// text. Nothing is persisted and nothing is pushed.
	ErrContentRejected = errors.New("content rejected: toxic_content")
)
