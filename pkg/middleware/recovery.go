package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回友好的错误信息
func Recovery(cfg *config.Config, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				stack := debug.Stack()
				logging.WithReqIDFromCtx(r.Context(), log).
					WithField("panic", rec).
					WithField("stack", string(stack)).
					Error("Recovered from panic")

				if cfg.IsDevelopment() {
					// 开发环境：显示详细错误信息
					utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
						"INTERNAL_SERVER_ERROR",
						fmt.Sprintf("Internal server error: %v", rec),
						string(stack))
					return
				}
				utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
