package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/internal/ratelimit"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ratelimit.NewMemory(2, time.Minute)
	l.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "ip")
		if err != nil || !d.Allowed {
			t.Fatalf("hit %d should pass: %+v %v", i, d, err)
		}
	}
	d, _ := l.Allow(ctx, "ip")
	if d.Allowed || d.RetryAfter != time.Minute {
		t.Fatalf("third hit should be limited: %+v", d)
	}
	if d, _ := l.Allow(ctx, "other"); !d.Allowed {
		t.Fatalf("keys should be independent")
	}
	now = now.Add(time.Minute)
	if d, _ := l.Allow(ctx, "ip"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("new window should reset: %+v", d)
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	l := ratelimit.NewMemory(1, time.Hour)
	h := ratelimit.Middleware(l, "unlock", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v0/gate/unlock", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "3600" {
		t.Fatalf("expected 429 with Retry-After, got %d %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}
