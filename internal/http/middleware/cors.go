package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type, X-Request-ID"
	corsAllowedMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsMaxAge         = "600"
)

// Origins is an allowlist of browser origins (scheme://host[:port]).
type Origins struct {
	any  bool
	list map[string]struct{}
}

// ParseOrigins builds an allowlist. "*" admits every origin; blanks and
// trailing slashes are ignored.
func ParseOrigins(origins []string) Origins {
	o := Origins{list: map[string]struct{}{}}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			o.any = true
		default:
			o.list[origin] = struct{}{}
		}
	}
	return o
}

// Empty reports whether no origin was configured.
func (o Origins) Empty() bool { return !o.any && len(o.list) == 0 }

// Allows reports whether origin is admitted.
func (o Origins) Allows(origin string) bool {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return false
	}
	if o.any {
		return true
	}
	_, ok := o.list[origin]
	return ok
}

// CORS answers preflights and decorates responses for allowed origins only.
// Disallowed preflights get 403; other requests pass through without CORS headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := ParseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := origins.Allows(origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Expose-Headers", "X-Request-ID")
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			preflight := r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
