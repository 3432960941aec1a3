package handler

import (
	"net/http"
	"sync"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/server"
	"impact-story-backend/pkg/utils"
)

var (
	app     *server.App
	appErr  error
	appOnce sync.Once
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，所有端点集中在一个Chi路由器中；路由器在冷启动时构建一次，
// 热调用复用它（以及其中的页面缓存和后端连接）
func Handler(w http.ResponseWriter, r *http.Request) {
	appOnce.Do(func() {
		cfg, err := config.GetCached()
		if err != nil {
			appErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			appErr = err
			return
		}
		app, appErr = server.New(cfg, logging.New(cfg))
	})

	if appErr != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+appErr.Error())
		return
	}
	app.Router.ServeHTTP(w, r)
}
