package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// KeyFunc extracts the rate limit key from a request.
// Returns empty string to skip rate limiting for this request.
type KeyFunc func(r *http.Request) string

// ErrorWriterFunc writes a rate-limit-exceeded response in the caller's own
// envelope shape. Injected so this package doesn't depend on the admin API's
// response types.
type ErrorWriterFunc func(w http.ResponseWriter, r *http.Request, retryAfterSeconds int)

// Middleware returns HTTP middleware that enforces a rate limit. keyFunc
// determines the identifier to rate limit by; writeErr renders the 429
// response when the limit is exceeded. If the limiter is in noop mode (nil
// Redis client), all requests pass through.
func Middleware(limiter *Limiter, rule Rule, keyFunc KeyFunc, writeErr ErrorWriterFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result := limiter.Allow(r.Context(), rule, key)

			for k, v := range result.FormatHeaders() {
				w.Header().Set(k, v)
			}

			if !result.Allowed {
				retryAfter := time.Until(result.ResetAt).Seconds()
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter)))
				writeErr(w, r, int(retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc extracts the client IP from the request for rate limiting.
// Uses RemoteAddr only. X-Forwarded-For is not trusted because the server
// may not be behind a reverse proxy that sanitizes the header, and any
// client can set an arbitrary value to bypass rate limiting.
func IPKeyFunc(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
