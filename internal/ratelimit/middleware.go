package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/alecgard/planboard/internal/auth"
)

// KeyFunc picks the bucket key for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByIP keys requests on the client address, honouring the first
// X-Forwarded-For hop.
func ByIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return "ip:" + strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// ByUser keys requests on the authenticated user and falls back to ByIP.
func ByUser(r *http.Request) string {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return "user:" + u.ID
	}
	return ByIP(r)
}

// Middleware enforces limiter per key. It always sets the
//
//	X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset
//
// headers and answers 429 once the bucket is empty. onReject is called with
// scope for each rejected request.
func Middleware(limiter *Limiter, scope string, key KeyFunc, onReject func(scope string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !limiter.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res := limiter.Take(k)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				if onReject != nil {
					onReject(scope)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{
						"code":    "rate_limited",
						"message": "Rate limit exceeded. Try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
