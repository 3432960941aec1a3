package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"impact-story-backend/pkg/utils"
)

// MaxBodySize 限制请求体大小
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP 按IP限流（需在 middleware.RealIP 之后），超限时返回 429 {"error": "..."}
func RateLimitByIP(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			utils.WriteActionError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		}),
	)
}
