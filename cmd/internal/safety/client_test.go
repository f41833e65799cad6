package safety

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *InferenceClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"

	c, err := NewInferenceClient(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestCheckToxic(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/unitary/toxic-bert") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		_, _ = w.Write([]byte(`[[{"label":"TOXIC","score":0.93},{"label":"obscene","score":0.41}]]`))
	})

	v, err := c.Check(context.Background(), "some text")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !v.Toxic {
		t.Fatal("expected toxic verdict")
	}
	if v.Score != 0.93 || v.Confidence != 0.93 {
		t.Fatalf("score=%v confidence=%v", v.Score, v.Confidence)
	}
}

func TestCheckBelowThreshold(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[[{"label":"TOXIC","score":0.12},{"label":"insult","score":0.30}]]`))
	})

	v, err := c.Check(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if v.Toxic {
		t.Fatal("verdict should not be toxic")
	}
	if v.Confidence != 0.30 {
		t.Fatalf("confidence = %v", v.Confidence)
	}
}

func TestCheckAPIErrorSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	if _, err := c.Check(context.Background(), "text"); err == nil {
		t.Fatal("expected error; failure policy belongs to the caller")
	}
}

func TestReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/microsoft/DialoGPT-medium") {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"generated_text":"  Hi! What can I do for you?  "}]`))
	})

	got, err := c.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got != "Hi! What can I do for you?" {
		t.Fatalf("reply = %q", got)
	}
}

func TestReplyEmptyGeneration(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"generated_text":""}]`))
	})

	got, err := c.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got != EmptyReply {
		t.Fatalf("reply = %q, want canned empty reply", got)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewInferenceClient(cfg); err != ErrNotConfigured {
		t.Fatalf("got %v, want ErrNotConfigured", err)
	}
}
