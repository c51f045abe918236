package middleware

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/parley-ai/chat-platform/internal/ratelimit"
	"github.com/parley-ai/chat-platform/pkg/metrics"
)

// RateLimit creates global per-user rate limiting middleware for the API
// surface. Unauthenticated requests fall back to the client IP.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := GetUserID(r.Context()); userID != "" {
				return "user:" + userID, nil
			}
			return "ip:" + r.RemoteAddr, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			retryAfter := int(windowLength.Seconds())
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after":%d}`, retryAfter)
		}),
	)
}

// AIRateLimit limits the endpoints that trigger upstream completion
// calls. It sits behind Auth and keys on the user, so one user cannot
// burn the whole AI quota for everyone else.
func AIRateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetUserID(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}

			ok, retryAfter := limiter.Allow(key)
			if !ok {
				metrics.RateLimitRejectionsTotal.Inc()
				seconds := int(math.Ceil(retryAfter.Seconds()))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"AI request limit exceeded, please slow down","retry_after":%d}`, seconds)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
