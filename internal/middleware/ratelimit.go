package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter caps requests per caller address within a rolling window.
// A breach answers 429 with a body distinguishable from other failures.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	budget int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(budget int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   map[string][]time.Time{},
		budget: budget,
		window: window,
		now:    func() time.Time { return time.Now() },
	}
}

// Allow records a hit for addr and reports whether it fits the budget.
func (l *RateLimiter) Allow(addr string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.hits[addr][:0]
	for _, t := range l.hits[addr] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.budget {
		l.hits[addr] = kept
		return false
	}
	l.hits[addr] = append(kept, now)
	return true
}

// SetNow overrides the clock, for tests.
func (l *RateLimiter) SetNow(now func() time.Time) { l.now = now }

// Middleware enforces the limit keyed by remote address.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(callerAddr(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
