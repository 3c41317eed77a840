package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"checkout": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("checkout")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/orders", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on throttled response")
	}
}

func TestRateLimiterSeparatesGroups(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"checkout": {RatePerSecond: 1, Burst: 1},
		"verify":   {RatePerSecond: 1, Burst: 1},
	}, nil)
	checkout := limiter.Middleware("checkout")(okHandler())
	verify := limiter.Middleware("verify")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/orders", nil)
	req.Header.Set("X-Real-IP", "203.0.113.7")
	res := httptest.NewRecorder()
	checkout.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected checkout request to succeed, got %d", res.Code)
	}

	verifyReq := httptest.NewRequest(http.MethodPost, "/api/checkout/verify", nil)
	verifyReq.Header.Set("X-Real-IP", "203.0.113.7")
	verifyRes := httptest.NewRecorder()
	verify.ServeHTTP(verifyRes, verifyReq)
	if verifyRes.Code != http.StatusOK {
		t.Fatalf("expected verify bucket to be independent, got %d", verifyRes.Code)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"checkout": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("checkout")(okHandler())

	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout/orders", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected first request from %s to succeed, got %d", ip, res.Code)
		}
	}
}

func TestRateLimiterUnknownGroupPassesThrough(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("missing")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected pass-through, got %d", i, res.Code)
		}
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"checkout": {RatePerSecond: 1, Burst: 1},
	}, nil)
	now := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("checkout|a", RateLimit{RatePerSecond: 1, Burst: 1}) {
		t.Fatalf("expected first allow")
	}
	now = now.Add(10 * time.Minute)
	limiter.allow("checkout|b", RateLimit{RatePerSecond: 1, Burst: 1})
	if _, ok := limiter.visitors["checkout|a"]; ok {
		t.Fatalf("expected idle visitor to be evicted")
	}
}

func TestRateLimiterSweepsAtMostOncePerInterval(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	limit := RateLimit{RatePerSecond: 1, Burst: 1}
	start := time.Unix(1700000000, 0)
	now := start
	limiter.now = func() time.Time { return now }

	limiter.allow("checkout|a", limit)
	now = start.Add(6 * time.Minute)
	limiter.lastSweep = now.Add(-30 * time.Second)
	limiter.allow("checkout|b", limit)
	if _, ok := limiter.visitors["checkout|a"]; !ok {
		t.Fatalf("expected no sweep before the interval elapsed")
	}

	now = now.Add(time.Minute)
	limiter.allow("checkout|c", limit)
	if _, ok := limiter.visitors["checkout|a"]; ok {
		t.Fatalf("expected idle visitor to be evicted once the interval elapsed")
	}
	if len(limiter.visitors) != 2 {
		t.Fatalf("expected b and c to remain, got %d visitors", len(limiter.visitors))
	}
}
