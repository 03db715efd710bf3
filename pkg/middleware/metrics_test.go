package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// observer returns the histogram data for one label set.
func observer(t *testing.T, vec *prometheus.HistogramVec, labels ...string) *dto.Histogram {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).(prometheus.Metric).Write(m))
	return m.GetHistogram()
}

func metricsRouter(svc string, h http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(svc))
	r.Get("/api/v1/orders/{id}", h)
	return r
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	const svc = "metrics-route"
	r := metricsRouter(svc, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, "GET", "/api/v1/orders/{id}", "200")))
	assert.Equal(t, uint64(3), observer(t, httpRequestDuration, svc, "GET", "/api/v1/orders/{id}", "200").GetSampleCount())

	size := observer(t, httpResponseSize, svc, "GET", "/api/v1/orders/{id}")
	assert.Equal(t, uint64(3), size.GetSampleCount())
	assert.Equal(t, float64(3*len(`{"data":{}}`)), size.GetSampleSum())
}

func TestPrometheusMetrics_StatusCodes(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			svc := "metrics-status-" + strings.ReplaceAll(http.StatusText(code), " ", "")
			r := metricsRouter(svc, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			})

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/9", nil))

			assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, "GET", "/api/v1/orders/{id}", strconv.Itoa(code))))
		})
	}
}

func TestPrometheusMetrics_UnmatchedRoute(t *testing.T) {
	const svc = "metrics-unmatched"
	r := metricsRouter(svc, func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/no/such/path/123", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, "GET", unmatchedRoute, "404")))
}

func TestPrometheusMetrics_InFlight(t *testing.T) {
	const svc = "metrics-inflight"
	var during float64
	r := metricsRouter(svc, func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/1", nil))

	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc)))
}
