package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/metrics"
)

// Logger 请求日志中间件：记录每个请求并按路由模式计数。m may be nil.
func Logger(log logrus.FieldLogger, m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, slot := withCallerSlot(r.Context())
			r = r.WithContext(ctx)

			// 创建响应写入器包装器来捕获状态码
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			duration := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := routePattern(r)
			if m != nil {
				m.ObserveRequest(r.Method, route, status, duration)
			}

			user := "anonymous"
			if !slot.caller.Anonymous() {
				user = slot.caller.UserID
			}

			entry := logging.WithReqIDFromCtx(r.Context(), log).WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"route":    route,
				"status":   status,
				"bytes":    ww.BytesWritten(),
				"duration": duration.String(),
				"user":     user,
				"ip":       r.RemoteAddr,
			})
			switch {
			case status >= 500:
				entry.Error("Request failed")
			case status >= 400:
				entry.Warn("Request rejected")
			default:
				entry.Info("Request served")
			}
		})
	}
}

// routePattern returns the matched chi route, so metrics are not labelled by raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
