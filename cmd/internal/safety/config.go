package safety

import (
	"os"
	"strconv"
	"time"
)

// Config defines the inference-API wiring for moderation and assistant replies.
type Config struct {
	// BaseURL of the hosted inference API.
	BaseURL string

	// APIKey is the bearer token. Empty means the inference client is not
	// configured; the app then runs with moderation off and canned replies.
	APIKey string

	// ToxicityModel is the classification model used by Check.
	ToxicityModel string

	// ReplyModel is the generation model used by Reply.
	ReplyModel string

	// ToxicityThreshold is the toxic-score cutoff above which a message is
	// rejected.
	ToxicityThreshold float64

	// Timeout bounds each inference call.
	Timeout time.Duration
}

// DefaultConfig returns the inference defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api-inference.huggingface.co",
		ToxicityModel:     "unitary/toxic-bert",
		ReplyModel:        "microsoft/DialoGPT-medium",
		ToxicityThreshold: 0.7,
		Timeout:           10 * time.Second,
	}
}

// LoadConfigFromEnv loads inference configuration from SW_AI_* variables.
// All are optional; without SW_AI_API_KEY the client stays unconfigured.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SW_AI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	cfg.APIKey = os.Getenv("SW_AI_API_KEY")
	if v := os.Getenv("SW_AI_TOXICITY_MODEL"); v != "" {
		cfg.ToxicityModel = v
	}
	if v := os.Getenv("SW_AI_REPLY_MODEL"); v != "" {
		cfg.ReplyModel = v
	}
	if v := os.Getenv("SW_AI_TOXICITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.ToxicityThreshold = f
		}
	}
	if v := os.Getenv("SW_AI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	return cfg
}
