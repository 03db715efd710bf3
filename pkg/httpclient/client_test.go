package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func fastRetries(maxRetries int) Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      maxRetries,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    2 * time.Millisecond,
		MaxConnsPerHost: 4,
	}
}

// sequenceServer answers with statuses in order, repeating the last one.
func sequenceServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		w.WriteHeader(statuses[min(n, len(statuses))-1])
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func get(t *testing.T, c Doer, ctx context.Context, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	return c.Do(ctx, req)
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, Config{
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
	}, DefaultConfig())
}

func TestClient_RetryPolicy(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		statuses   []int
		wantStatus int
		wantHits   int32
	}{
		{"success first try", 2, []int{200}, 200, 1},
		{"recovers from 503", 3, []int{503, 502, 200}, 200, 3},
		{"gives up after retries", 2, []int{503}, 503, 3},
		{"501 is final", 3, []int{501, 200}, 501, 1},
		{"4xx is final", 3, []int{409, 200}, 409, 1},
		{"retries disabled", 0, []int{500, 200}, 500, 1},
		{"429 is retried", 2, []int{429, 200}, 200, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := sequenceServer(t, tt.statuses...)

			resp, err := get(t, New(fastRetries(tt.maxRetries)), context.Background(), srv.URL)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestClient_ReplaysReservationBody(t *testing.T) {
	const payload = `{"order_id":7,"lines":[{"product_id":"p-1","quantity":3}]}`
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, payload, string(body))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(payload))
	require.NoError(t, err)
	resp, err := New(fastRetries(2)).Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_StreamBodyIsNotRetried(t *testing.T) {
	srv, hits := sequenceServer(t, http.StatusServiceUnavailable, http.StatusOK)

	req, err := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader("x")))
	require.NoError(t, err)
	req.GetBody = nil
	resp, err := New(fastRetries(3)).Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_ContextEndsBackoff(t *testing.T) {
	srv, hits := sequenceServer(t, http.StatusServiceUnavailable)
	cfg := fastRetries(10)
	cfg.RetryWaitMin, cfg.RetryWaitMax = time.Second, time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := get(t, New(cfg), ctx, srv.URL)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_TransportErrorReportsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := get(t, New(fastRetries(1)), context.Background(), url)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	assert.False(t, isRetryableError(io.ErrUnexpectedEOF))
	// DeadlineExceeded satisfies net.Error.
	assert.True(t, isRetryableError(context.DeadlineExceeded))
}

func TestBackoff_CapsAtRetryWaitMax(t *testing.T) {
	c := New(Config{RetryWaitMin: 100 * time.Millisecond, RetryWaitMax: 300 * time.Millisecond})

	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 300 * time.Millisecond, 8: 300 * time.Millisecond} {
		d := c.backoff(attempt)
		assert.GreaterOrEqual(t, d, base*3/4, "attempt %d", attempt)
		assert.LessOrEqual(t, d, base*5/4, "attempt %d", attempt)
	}
}

func TestAddJitter(t *testing.T) {
	assert.Zero(t, addJitter(0))
	assert.Zero(t, addJitter(-time.Second))

	const base = time.Second
	lo, hi := base, base
	for range 200 {
		d := addJitter(base)
		require.GreaterOrEqual(t, d, base*3/4)
		require.LessOrEqual(t, d, base*5/4)
		lo, hi = min(lo, d), max(hi, d)
	}
	assert.Greater(t, hi-lo, 50*time.Millisecond)
}

func TestClient_RetryAfterCappedAtWaitMax(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := fastRetries(1)
	cfg.RetryWaitMax = 20 * time.Millisecond
	start := time.Now()
	resp, err := get(t, New(cfg), context.Background(), srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRetryAfter(t *testing.T) {
	c := New(Config{RetryWaitMin: 10 * time.Millisecond, RetryWaitMax: 5 * time.Second})

	assert.Equal(t, 2*time.Second, c.retryAfter("2", 1))
	assert.Equal(t, 5*time.Second, c.retryAfter("3600", 1))
	assert.Zero(t, c.retryAfter("0", 1))

	fallback := c.retryAfter("Wed, 21 Oct 2026 07:28:00 GMT", 1)
	assert.GreaterOrEqual(t, fallback, 7500*time.Microsecond)
	assert.LessOrEqual(t, fallback, 12500*time.Microsecond)
}

func TestClient_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var traceparent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent.Store(r.Header.Get("traceparent"))
	}))
	t.Cleanup(srv.Close)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	resp, err := get(t, New(fastRetries(0)), ctx, srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", traceparent.Load())
}
