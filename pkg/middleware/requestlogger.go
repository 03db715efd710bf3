package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/logger"
)

// ActorHeader identifies the user performing a request. Authentication
// happens upstream; this service trusts the header as-is.
const ActorHeader = "X-User-ID"

// maxActorLen matches the created_by, updated_by and changed_by columns.
const maxActorLen = 64

// RequestLogger stores a request-scoped logger carrying method, path,
// correlation_id, user_id, trace_id and span_id. The actor from ActorHeader
// is trimmed; an over-long value is ignored, which RequireActor then
// rejects. Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))
			switch {
			case len(actor) > maxActorLen:
				base.WarnContext(ctx, "ignoring oversized actor header", slog.Int("length", len(actor)))
			case actor != "":
				ctx = logger.WithUserID(ctx, actor)
			}

			l := logger.WithContext(ctx, base).With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, l)))
		})
	}
}
