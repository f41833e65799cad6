package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const toxicLabel = "TOXIC"

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("inference client not configured")

// InferenceClient implements Checker and Generator over a hosted
// inference API (Hugging Face wire format).
type InferenceClient struct {
	cfg  Config
	http *http.Client
}

// NewInferenceClient builds a client from cfg. Returns ErrNotConfigured when
// no API key is present so the caller can wire a disabled mode instead.
func NewInferenceClient(cfg Config) (*InferenceClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &InferenceClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Check classifies text and compares the toxic score to the threshold.
func (c *InferenceClient) Check(ctx context.Context, text string) (Verdict, error) {
	body, err := c.post(ctx, c.cfg.ToxicityModel, map[string]any{"inputs": text})
	if err != nil {
		return Verdict{}, err
	}

	// The API nests classification results one level per input.
	var nested [][]classification
	if err := json.Unmarshal(body, &nested); err != nil || len(nested) == 0 {
		var flat []classification
		if err := json.Unmarshal(body, &flat); err != nil {
			return Verdict{}, fmt.Errorf("safety: decode classification: %w", err)
		}
		nested = [][]classification{flat}
	}

	var v Verdict
	for _, r := range nested[0] {
		if strings.EqualFold(r.Label, toxicLabel) {
			v.Score = r.Score
		}
		if r.Score > v.Confidence {
			v.Confidence = r.Score
		}
	}
	v.Toxic = v.Score > c.cfg.ToxicityThreshold
	return v, nil
}

// Reply generates an assistant reply for prompt. Empty generations map to
// EmptyReply; transport and API errors surface to the caller.
func (c *InferenceClient) Reply(ctx context.Context, prompt string) (string, error) {
	body, err := c.post(ctx, c.cfg.ReplyModel, map[string]any{
		"inputs": prompt,
		"parameters": map[string]any{
			"max_new_tokens":   100,
			"temperature":      0.7,
			"do_sample":        true,
			"return_full_text": false,
		},
	})
	if err != nil {
		return "", err
	}

	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("safety: decode generation: %w", err)
	}
	if len(out) == 0 || strings.TrimSpace(out[0].GeneratedText) == "" {
		return EmptyReply, nil
	}
	return strings.TrimSpace(out[0].GeneratedText), nil
}

func (c *InferenceClient) post(ctx context.Context, model string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("safety: inference API status %d", resp.StatusCode)
	}
	return body, nil
}
