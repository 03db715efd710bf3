package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/health"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httputil"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the HTTP layer.
const ServiceName = "order-engine"

const defaultRequestTimeout = 30 * time.Second

// RouterConfig holds the HTTP-layer options.
type RouterConfig struct {
	PprofCIDRs []string
	CORS       middleware.CORSConfig
	RateLimit  middleware.RateLimitConfig
	// RequestTimeout bounds each request's context. Defaults to 30s.
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all order routes registered.
func NewRouter(
	orderService *service.OrderService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS = middleware.DefaultCORSConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	orderHandler := NewOrderHandler(orderService, logger)
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit, logger))
		orderHandler.Routes(r)
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusNotFound, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "ROUTE_NOT_FOUND", Message: "no route for " + r.URL.Path},
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusMethodNotAllowed, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: r.Method + " is not allowed on " + r.URL.Path},
	})
}

// Routes mounts the order endpoints on r.
func (h *OrderHandler) Routes(r chi.Router) {
	r.Use(ContentTypeJSON)
	r.Use(middleware.RequireActor)
	r.Use(middleware.CacheControl(0))

	r.Post("/", h.CreateOrder)
	r.Get("/", h.ListOrders)
	r.Get("/number/{number}", h.GetOrderByNumber)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Put("/status", h.UpdateOrderStatus)
		r.Post("/cancel", h.CancelOrder)
		r.Post("/deliveries", h.RecordDelivery)
		r.Post("/proforma", h.GenerateProforma)
		r.Post("/invoice", h.GenerateInvoice)
		r.Post("/stock-reservation/retry", h.RetryStockReservation)
	})
}
