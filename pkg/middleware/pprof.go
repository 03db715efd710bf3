package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httputil"
)

// RegisterPprof mounts /debug/pprof/* for peers inside allowedCIDRs. Nothing
// is mounted when no CIDR parses, and false is returned.
func RegisterPprof(r chi.Router, allowedCIDRs []string, logger *slog.Logger) bool {
	allow := parsePrefixes(allowedCIDRs, logger)
	if len(allow) == 0 {
		logger.Info("pprof disabled: empty allowlist")
		return false
	}
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Use(allowOnly(allow, logger))
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		r.HandleFunc("/*", pprof.Index)
	})
	return true
}

type allowlist []netip.Prefix

// parsePrefixes parses CIDRs, logging and skipping invalid entries.
func parsePrefixes(cidrs []string, logger *slog.Logger) allowlist {
	prefixes := make(allowlist, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			logger.Warn("invalid allowlist CIDR, skipping",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes
}

// permits reports whether the socket peer in remoteAddr falls inside the
// list. IPv4-mapped IPv6 peers are matched as IPv4.
func (a allowlist) permits(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IPAllowlist rejects requests whose peer address is outside cidrs with 403.
// Forwarding headers are ignored.
func IPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	return allowOnly(parsePrefixes(cidrs, logger), logger)
}

func allowOnly(allow allowlist, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow.permits(r.RemoteAddr) {
				logger.Warn("access denied by IP allowlist",
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "FORBIDDEN", Message: "access restricted by IP allowlist"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
