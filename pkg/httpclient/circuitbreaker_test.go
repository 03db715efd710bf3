package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDoer answers with status codes or errors from a function of the
// call number.
type scriptedDoer struct {
	calls  atomic.Int32
	answer func(call int) (int, error)
}

func (d *scriptedDoer) Do(_ context.Context, _ *http.Request) (*http.Response, error) {
	n := int(d.calls.Add(1))
	status, err := d.answer(n)
	if err != nil {
		return nil, err
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("upstream says " + http.StatusText(status)))}, nil
}

func always(status int) *scriptedDoer {
	return &scriptedDoer{answer: func(int) (int, error) { return status, nil }}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func breakerFor(t *testing.T, d Doer, name string, timeout time.Duration) *CircuitBreakerClient {
	t.Helper()
	return NewCircuitBreakerClient(d, CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      timeout,
		FailureRatio: 0.5,
		MinRequests:  3,
	}, quietLogger())
}

func call(cb *CircuitBreakerClient, ctx context.Context) (*http.Response, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://inventory.local/api/v1/inventory/availability", nil)
	return cb.Do(ctx, req)
}

func TestCircuitBreaker_PassesSuccessAndClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			cb := breakerFor(t, always(status), "cb-pass-"+http.StatusText(status), time.Minute)

			for range 5 {
				resp, err := call(cb, context.Background())
				require.NoError(t, err)
				assert.Equal(t, status, resp.StatusCode)
				_ = resp.Body.Close()
			}
			assert.Equal(t, gobreaker.StateClosed, cb.State())
			assert.NoError(t, cb.Check(context.Background()))
			assert.Equal(t, "cb-pass-"+http.StatusText(status), cb.Name())
		})
	}
}

func TestCircuitBreaker_ServerErrorsTripAndReject(t *testing.T) {
	const name = "cb-trip"
	d := always(http.StatusBadGateway)
	cb := breakerFor(t, d, name, time.Minute)
	rejected := testutil.ToFloat64(circuitBreakerRejections.WithLabelValues(name))

	for range 3 {
		_, err := call(cb, context.Background())
		var se *ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.Status)
		assert.Equal(t, name+": server error 502: upstream says Bad Gateway", se.Error())
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())
	assert.ErrorIs(t, cb.Check(context.Background()), ErrCircuitOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues(name)))

	_, err := call(cb, context.Background())
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), name)
	assert.Equal(t, int32(3), d.calls.Load(), "open breaker must not reach downstream")
	assert.Equal(t, rejected+1, testutil.ToFloat64(circuitBreakerRejections.WithLabelValues(name)))
}

func TestCircuitBreaker_TransportErrorsCount(t *testing.T) {
	d := &scriptedDoer{answer: func(int) (int, error) { return 0, errors.New("connection refused") }}
	cb := breakerFor(t, d, "cb-transport", time.Minute)

	for range 3 {
		_, _ = call(cb, context.Background())
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestCircuitBreaker_CallerCancellationDoesNotTrip(t *testing.T) {
	d := &scriptedDoer{answer: func(int) (int, error) { return 0, context.Canceled }}
	cb := breakerFor(t, d, "cb-cancel", time.Minute)

	for range 5 {
		_, err := call(cb, context.Background())
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	d := &scriptedDoer{answer: func(n int) (int, error) {
		if n <= 3 {
			return http.StatusServiceUnavailable, nil
		}
		return http.StatusOK, nil
	}}
	cb := breakerFor(t, d, "cb-recover", 50*time.Millisecond)

	for range 3 {
		_, _ = call(cb, context.Background())
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	require.Eventually(t, func() bool { return cb.State() == gobreaker.StateHalfOpen }, time.Second, 10*time.Millisecond)

	resp, err := call(cb, context.Background())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeQuota(t *testing.T) {
	release := make(chan struct{})
	d := &scriptedDoer{answer: func(n int) (int, error) {
		if n <= 3 {
			return http.StatusInternalServerError, nil
		}
		<-release
		return http.StatusOK, nil
	}}
	cb := breakerFor(t, d, "cb-quota", 20*time.Millisecond)
	for range 3 {
		_, _ = call(cb, context.Background())
	}
	require.Eventually(t, func() bool { return cb.State() == gobreaker.StateHalfOpen }, time.Second, 5*time.Millisecond)

	probeDone := make(chan error, 1)
	go func() {
		resp, err := call(cb, context.Background())
		if resp != nil {
			_ = resp.Body.Close()
		}
		probeDone <- err
	}()
	require.Eventually(t, func() bool { return d.calls.Load() == 4 }, time.Second, 5*time.Millisecond)

	_, err := call(cb, context.Background())
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "half-open")

	close(release)
	require.NoError(t, <-probeDone)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("accounting")

	assert.Equal(t, "accounting", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, uint32(5), cfg.MinRequests)
	assert.InDelta(t, 0.5, cfg.FailureRatio, 1e-9)
}
