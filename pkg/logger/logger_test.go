package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func spanContext(t *testing.T, traceHex, spanHex string) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex(traceHex)
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex(spanHex)
	require.NoError(t, err)
	return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

func TestWithContext_Fields(t *testing.T) {
	const (
		traceHex = "4bf92f3577b34da6a3ce929d0e0e4736"
		spanHex  = "00f067aa0ba902b7"
	)
	tests := []struct {
		name string
		ctx  func(t *testing.T) context.Context
		want map[string]string
	}{
		{
			name: "empty context",
			ctx:  func(*testing.T) context.Context { return context.Background() },
			want: map[string]string{},
		},
		{
			name: "correlation id",
			ctx: func(*testing.T) context.Context {
				return WithCorrelationID(context.Background(), "req-123")
			},
			want: map[string]string{"correlation_id": "req-123"},
		},
		{
			name: "actor",
			ctx: func(*testing.T) context.Context {
				return WithUserID(context.Background(), "buyer@acme.ro")
			},
			want: map[string]string{"user_id": "buyer@acme.ro"},
		},
		{
			name: "span",
			ctx:  func(t *testing.T) context.Context { return spanContext(t, traceHex, spanHex) },
			want: map[string]string{"trace_id": traceHex, "span_id": spanHex},
		},
		{
			name: "everything",
			ctx: func(t *testing.T) context.Context {
				ctx := spanContext(t, traceHex, spanHex)
				return WithUserID(WithCorrelationID(ctx, "corr-all"), "user-all")
			},
			want: map[string]string{"correlation_id": "corr-all", "user_id": "user-all", "trace_id": traceHex, "span_id": spanHex},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			WithContext(tt.ctx(t), NewWithWriter("order-engine", "info", &buf)).Info("order confirmed")

			line := lastLine(t, &buf)
			for _, key := range []string{"correlation_id", "user_id", "trace_id", "span_id"} {
				if want, ok := tt.want[key]; ok {
					assert.Equal(t, want, line[key], key)
				} else {
					assert.NotContains(t, line, key)
				}
			}
			assert.Equal(t, "order-engine", line["service"])
		})
	}
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	l := NewWithWriter("order-engine", "info", &bytes.Buffer{})
	assert.Same(t, l, WithContext(context.Background(), l))
}

func TestFromContext(t *testing.T) {
	l := NewWithWriter("order-engine", "info", &bytes.Buffer{})

	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestContextValues_DefaultEmpty(t *testing.T) {
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
	assert.Empty(t, UserIDFromContext(context.Background()))
}

func TestAlert(t *testing.T) {
	var buf bytes.Buffer
	Alert(context.Background(), NewWithWriter("order-engine", "info", &buf),
		"stock release failed after cancellation", slog.Int64("order_id", 42))

	line := lastLine(t, &buf)
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, true, line["alert"])
	assert.Equal(t, float64(42), line["order_id"])
	assert.Equal(t, "stock release failed after cancellation", line["msg"])
}

func TestNewWithWriter_Levels(t *testing.T) {
	tests := []struct {
		level           string
		debug, info     bool
		withSourceField bool
	}{
		{level: "debug", debug: true, info: true, withSourceField: true},
		{level: "info", info: true},
		{level: "warn"},
		{level: "WARN"},
		{level: "error"},
		{level: "", info: true},
		{level: "bogus", info: true},
	}
	for _, tt := range tests {
		t.Run("level="+tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithWriter("order-engine", tt.level, &buf)

			l.Debug("d")
			assert.Equal(t, tt.debug, buf.Len() > 0, "debug")
			if tt.debug {
				assert.Equal(t, tt.withSourceField, bytes.Contains(buf.Bytes(), []byte(`"source"`)))
			}

			buf.Reset()
			l.Info("i")
			assert.Equal(t, tt.info, buf.Len() > 0, "info")
		})
	}
}
