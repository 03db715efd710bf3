package middleware

import (
	"net/http"

	apperrors "github.com/leduxro-prog/erp-dashboard-sub000/pkg/errors"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httputil"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/logger"
)

// RequireActor rejects state-changing requests that carry no user identity.
// Safe methods pass through. Mount after RequestLogger.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if logger.UserIDFromContext(r.Context()) == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing "+ActorHeader+" header"), nil)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
