package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// CacheControl sets Cache-Control on GET and HEAD responses. Order data is
// per customer, so cacheable responses are marked private. A maxAge below
// one second sends no-store.
func CacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	value := "no-store"
	if secs := int(maxAge / time.Second); secs > 0 {
		value = "private, max-age=" + strconv.Itoa(secs)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
