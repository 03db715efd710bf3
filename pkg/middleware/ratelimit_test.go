package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rateLimitChain(cfg RateLimitConfig) http.Handler {
	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	return RequestLogger(base)(RateLimit(cfg, base)(ok))
}

func requestAs(user, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	if user != "" {
		req.Header.Set(ActorHeader, user)
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	return req
}

func TestRateLimit_PerActorBurst(t *testing.T) {
	h := rateLimitChain(RateLimitConfig{RPS: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestAs("user-1", ""))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs("user-1", ""))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Contains(t, rr.Body.String(), "RATE_LIMITED")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs("user-2", ""))
	assert.Equal(t, http.StatusNoContent, rr.Code, "other actors keep their own bucket")
}

func TestRateLimit_AnonymousKeyedByIP(t *testing.T) {
	h := rateLimitChain(RateLimitConfig{RPS: 0.001, Burst: 1})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs("", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs("", "10.0.0.1:5678"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs("", "10.0.0.2:1234"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	h := rateLimitChain(RateLimitConfig{})

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestAs("user-1", ""))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	}
}

func TestLimiterStore_EvictsStaleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newLimiterStore(RateLimitConfig{RPS: 1, Burst: 1, TTL: time.Minute})
	s.nowFunc = func() time.Time { return now }

	s.get("a")
	s.get("b")
	assert.Equal(t, 2, s.len())

	now = now.Add(2 * time.Minute)
	s.get("c")
	assert.Equal(t, 1, s.len())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.9:80", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.9:80", want: "198.51.100.4"},
		{name: "garbage forwarded falls back", headers: map[string]string{"X-Forwarded-For": "nope"}, remote: "10.0.0.9:80", want: "10.0.0.9"},
		{name: "remote addr without port", remote: "10.0.0.9", want: "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
