package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowWithinBudget(t *testing.T) {
	l := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("hit %d should fit the budget", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatalf("fourth hit must breach the budget")
	}
	// A different caller has its own budget.
	if !l.Allow("10.0.0.2") {
		t.Fatalf("budgets must be per caller")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.SetNow(func() time.Time { return clock })

	if !l.Allow("caller") || !l.Allow("caller") {
		t.Fatalf("budget should admit two hits")
	}
	if l.Allow("caller") {
		t.Fatalf("budget exhausted")
	}

	clock = clock.Add(61 * time.Second)
	if !l.Allow("caller") {
		t.Fatalf("aged-out hits must free the budget")
	}
}

func TestRateLimitMiddlewareResponse(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/generate/questions", nil)
	req.RemoteAddr = "192.0.2.1:4711"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request must pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("breach must answer 429, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "rate_limited" {
		t.Fatalf("breach body must be distinguishable, got %v", body)
	}

	// The port must not split one caller into many budgets.
	req2 := httptest.NewRequest(http.MethodPost, "/api/generate/questions", nil)
	req2.RemoteAddr = "192.0.2.1:9999"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req2)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same host on another port must share the budget, got %d", rec.Code)
	}
}
