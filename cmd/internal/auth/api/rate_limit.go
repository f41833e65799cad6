package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipThrottle limits login attempts per client IP with a token bucket per IP.
// Entries idle past the window are dropped on sweep to bound memory.
type ipThrottle struct {
	mu     sync.Mutex
	byIP   map[string]*ipBucket
	limit  rate.Limit
	burst  int
	window time.Duration

	lastSweep time.Time
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newIPThrottle(max int, window time.Duration) *ipThrottle {
	if max <= 0 {
		max = 20
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &ipThrottle{
		byIP:   make(map[string]*ipBucket),
		limit:  rate.Every(window / time.Duration(max)),
		burst:  max,
		window: window,
	}
}

// Allow reports whether one more attempt from ip is permitted now.
func (t *ipThrottle) Allow(ip string, now time.Time) bool {
	if ip == "" {
		ip = "unknown"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) > t.window {
		for k, b := range t.byIP {
			if now.Sub(b.seen) > 2*t.window {
				delete(t.byIP, k)
			}
		}
		t.lastSweep = now
	}

	b, ok := t.byIP[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.byIP[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// clientIP extracts the peer IP, honoring X-Forwarded-For only when the
// deployment explicitly trusts its proxy.
func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if ip := net.ParseIP(first); ip != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(strings.TrimSpace(r.RemoteAddr))
	}
	return net.ParseIP(host)
}
