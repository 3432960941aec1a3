package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/samber/lo"

	"impact-story-backend/pkg/config"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			"Link",
			"X-Total-Count",
		},
		AllowCredentials: true,
		MaxAge:           300, // 5分钟
	}

	// 通配符来源时不能携带凭据
	if len(cfg.AllowedOrigins) == 0 || lo.Contains(cfg.AllowedOrigins, "*") {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false
	}

	return cors.Handler(corsOptions)
}
