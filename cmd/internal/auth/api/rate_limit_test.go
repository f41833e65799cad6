package api

import (
	"net/http"
	"testing"
	"time"
)

func TestIPThrottleAllowsUpToBurst(t *testing.T) {
	tr := newIPThrottle(5, time.Minute)
	now := time.Now()

	for i := 0; i < 5; i++ {
		if !tr.Allow("10.0.0.1", now) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if tr.Allow("10.0.0.1", now) {
		t.Fatal("attempt past burst should be blocked")
	}

	// Other IPs are unaffected.
	if !tr.Allow("10.0.0.2", now) {
		t.Fatal("different IP should be allowed")
	}
}

func TestIPThrottleRefillsOverTime(t *testing.T) {
	tr := newIPThrottle(5, time.Minute)
	now := time.Now()

	for i := 0; i < 5; i++ {
		tr.Allow("10.0.0.1", now)
	}
	if tr.Allow("10.0.0.1", now) {
		t.Fatal("should be blocked")
	}
	// One token refills per window/max.
	if !tr.Allow("10.0.0.1", now.Add(13*time.Second)) {
		t.Fatal("should refill after window/max elapsed")
	}
}

func TestClientIPHonorsTrustProxy(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(r, false); got == nil || got.String() != "192.0.2.10" {
		t.Fatalf("untrusted proxy: got %v", got)
	}
	if got := clientIP(r, true); got == nil || got.String() != "203.0.113.7" {
		t.Fatalf("trusted proxy: got %v", got)
	}
}
