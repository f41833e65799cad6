// Package safety screens outbound message text and generates assistant
// replies through a hosted inference API.
//
// Callers own the failure policy. The delivery router treats a Checker error
// as "allow" so that an inference outage never blocks messaging, and falls
// back to a canned assistant reply when the Generator fails.
package safety

import "context"

// Verdict is the outcome of a toxicity check.
type Verdict struct {
	// Toxic is true when the toxic score exceeds the configured threshold.
	Toxic bool

	// Score is the model's toxic-label score in [0, 1].
	Score float64

	// Confidence is the highest score across all labels.
	Confidence float64
}

// Checker screens message text before delivery.
type Checker interface {
	Check(ctx context.Context, text string) (Verdict, error)
}

// Generator produces assistant replies.
type Generator interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Canned assistant lines used when generation fails or returns nothing.
const (
	EmptyReply    = "I'm here to help! How can I assist you today?"
	FallbackReply = "Sorry, I'm having trouble responding right now. Please try again later."
)
