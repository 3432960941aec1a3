package handlers

import (
	"context"
	"net/http"
	"time"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/utils"
)

// HealthCheck 健康检查
//
// An unconfigured backend is reported, not treated as unhealthy.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	backendStatus := "not_configured"
	if client, ok := h.backend.Client(); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		backendStatus = "healthy"
		if err := client.HealthCheck(ctx); err != nil {
			// 错误细节只写日志, 不返回给客户端
			logging.WithReqIDFromCtx(r.Context(), h.log).WithError(err).Warn("Backend health check failed")
			backendStatus = "unhealthy"
		}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":        "impact-story-backend",
		"version":        "1.0.0",
		"environment":    h.config.Environment,
		"data_plane":     h.dataPlane(),
		"backend_status": backendStatus,
		"timestamp":      h.now().Unix(),
		"status":         "healthy",
	})
}

// PoolStats GET /debug/db-pool (development only)
func (h *Handler) PoolStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, database.GetConnectionStats())
}

// dataPlane 获取数据平面类型
func (h *Handler) dataPlane() string {
	switch {
	case !h.config.BackendConfigured():
		return "none"
	case h.config.PostgresDSN != "":
		return "postgresql"
	default:
		return "supabase"
	}
}
