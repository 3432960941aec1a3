// Package server assembles the HTTP router shared by the serverless entry point
// and the impactd binary.
package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/actions"
	"impact-story-backend/pkg/cache"
	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/handlers"
	"impact-story-backend/pkg/metrics"
	customMiddleware "impact-story-backend/pkg/middleware"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// App is the wired application.
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Backend  database.Backend
	Pages    *cache.PageTTL
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
	Router   http.Handler
}

// New wires the backend, the action service, the page cache and the router.
// A missing backend configuration is not an error.
func New(cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	backend, err := database.NewBackend(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect backend: %w", err)
	}
	return NewWithBackend(cfg, log, backend), nil
}

// NewWithBackend wires the application around an existing backend.
func NewWithBackend(cfg *config.Config, log logrus.FieldLogger, backend database.Backend) *App {
	m := metrics.NewCollector()
	app := &App{
		Config:   cfg,
		Log:      log,
		Backend:  backend,
		Pages:    cache.NewPageTTL(cfg.PageCacheTTL),
		Metrics:  m,
		Registry: metrics.NewRegistry(m),
	}

	svc := actions.NewService(backend, cfg, log, m)
	h := handlers.NewHandler(cfg, backend, svc, app.Pages, m, log)
	app.Router = NewRouter(cfg, log, backend, h, m, app.Registry)
	return app
}

// NewRouter builds the chi router.
func NewRouter(cfg *config.Config, log logrus.FieldLogger, backend database.Backend, h *handlers.Handler,
	m *metrics.Collector, reg *prometheus.Registry) chi.Router {
	router := chi.NewRouter()

	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(log, m))
	router.Use(customMiddleware.Recovery(cfg, log))
	router.Use(customMiddleware.CORS(cfg))
	// 超时中间件（Vercel函数有时间限制）
	router.Use(middleware.Timeout(cfg.RequestTimeout))
	router.Use(middleware.Compress(5, "application/json"))
	router.Use(customMiddleware.Session(cfg, backend, log))
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}

	// 健康检查端点
	router.Get("/", h.HealthCheck)
	router.Handle("/metrics", metrics.Handler(reg))

	// 连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", h.PoolStats)
	}

	// 表单操作
	router.Group(func(r chi.Router) {
		r.Use(customMiddleware.MaxBodySize(handlers.MaxActionBody))

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				// 公开的认证操作按IP限流
				r.Use(customMiddleware.RateLimitByIP(cfg.AuthRateLimitRequests, cfg.AuthRateLimitWindow))
				r.Post("/signup", h.SignUp)
				r.Post("/login", h.SignIn)
				r.Post("/reset-password", h.ResetPassword)
			})
			r.Post("/logout", h.SignOut)
			r.Post("/update-password", h.UpdatePassword)
			r.Get("/callback", h.AuthCallback)
		})

		r.Post(models.RouteBeneficiaries, h.AddBeneficiary)
		r.Post(models.RouteStories, h.AddStoryUpdate)
		r.Post(models.RouteReports, h.CreateReport)
		r.Post(models.RouteOrganization, h.UpdateOrganization)
		r.Post(models.RouteSettings, h.UpdateProfile)
	})

	// 页面数据
	router.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", h.Dashboard())
		r.Get("/beneficiaries", h.ListBeneficiaries())
		r.Get("/beneficiaries/{id}", h.GetBeneficiary())
		r.Get("/stories", h.ListStories())
		r.Get("/reports", h.ListReports())
		r.Get("/organization", h.Organization())
		r.Get("/settings", h.Settings())
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})

	return router
}
