package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httputil"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/logger"
)

// Recovery turns handler panics into a 500 error envelope. It must be the
// outermost middleware. http.ErrAbortHandler is re-raised so the server
// aborts the connection as usual.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				// Inner middleware has already echoed the correlation ID.
				requestID := w.Header().Get(CorrelationHeader)
				logger.Alert(r.Context(), l, "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", requestID),
				)

				httputil.WriteJSON(w, http.StatusInternalServerError, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "INTERNAL_ERROR",
						Message:   "an internal error occurred",
						RequestID: requestID,
					},
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
