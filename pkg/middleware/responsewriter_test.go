package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type flushRecorder struct {
	http.ResponseWriter
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

type hijackRecorder struct {
	http.ResponseWriter
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

// bareWriter implements neither http.Flusher nor http.Hijacker.
type bareWriter struct{ header http.Header }

func (b *bareWriter) Header() http.Header {
	if b.header == nil {
		b.header = make(http.Header)
	}
	return b.header
}
func (b *bareWriter) Write(p []byte) (int, error) { return len(p), nil }
func (b *bareWriter) WriteHeader(int)             {}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	rec.WriteHeader(http.StatusConflict)
	rec.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusConflict, rec.statusCode)
}

func TestStatusRecorder_WriteCountsBytesAndDefaultsTo200(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	_, _ = rec.Write([]byte("hello"))
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.statusCode)
	assert.Equal(t, 5, rec.bytes)
}

func TestStatusRecorder_ReusesExisting(t *testing.T) {
	outer := newStatusRecorder(httptest.NewRecorder())
	assert.Same(t, outer, newStatusRecorder(outer))
}

func TestStatusRecorder_FlushAndHijack(t *testing.T) {
	f := &flushRecorder{ResponseWriter: httptest.NewRecorder()}
	newStatusRecorder(f).Flush()
	assert.True(t, f.flushed)

	h := &hijackRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err := newStatusRecorder(h).Hijack()
	assert.NoError(t, err)
	assert.True(t, h.hijacked)

	bare := newStatusRecorder(&bareWriter{})
	bare.Flush()
	_, _, err = bare.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}

func TestStatusRecorder_Unwrap(t *testing.T) {
	inner := httptest.NewRecorder()
	assert.Equal(t, http.ResponseWriter(inner), newStatusRecorder(inner).Unwrap())
}
