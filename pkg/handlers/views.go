package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samber/lo"

	"impact-story-backend/pkg/actions"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/middleware"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// viewError is a read-view failure the caller can act on.
type viewError struct {
	status  int
	message string
}

func (e *viewError) Error() string { return e.message }

func badRequest(msg string) error {
	return &viewError{status: http.StatusBadRequest, message: msg}
}

// viewFunc loads the data of one page for the caller.
type viewFunc func(ctx context.Context, store database.Store, caller models.Caller, r *http.Request) (utils.APIResponse, error)

// view 包装页面数据处理器：检查后端与会话，按 (路由, 调用者) 缓存结果
//
// route is the page the data belongs to; actions revalidate it by that name.
func (h *Handler) view(route string, load viewFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := h.backend.Client()
		if !ok {
			utils.WriteServiceUnavailableResponse(w, actions.MsgNotConfigured)
			return
		}
		caller := middleware.CallerFromContext(r.Context())
		if caller.Anonymous() {
			utils.WriteUnauthorizedResponse(w, actions.MsgNotAuthenticated)
			return
		}

		key := pageKey(caller, r)
		if body, hit := h.pages.Get(route, key); hit {
			h.cacheLookup(true)
			writeView(w, body, "HIT")
			return
		}
		h.cacheLookup(false)

		resp, err := load(r.Context(), client.Store(caller), caller, r)
		if err != nil {
			var ve *viewError
			switch {
			case errors.As(err, &ve):
				utils.WriteErrorResponseWithCode(w, ve.status, http.StatusText(ve.status), ve.message, "")
			case errors.Is(err, database.ErrNotFound):
				utils.WriteNotFoundResponse(w, "Not found")
			default:
				logging.WithReqIDFromCtx(r.Context(), h.log).WithError(err).WithField("route", route).Error("Failed to load page data")
				utils.WriteInternalServerErrorResponse(w, "Failed to load page data")
			}
			return
		}

		body, err := json.Marshal(resp)
		if err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to encode page data")
			return
		}
		h.pages.Set(route, key, body)
		writeView(w, body, "MISS")
	}
}

// pageKey identifies one rendering of a page: several paths share a route, so
// the path is part of the key.
func pageKey(caller models.Caller, r *http.Request) string {
	return caller.UserID + "|" + r.URL.Path + "?" + r.URL.RawQuery
}

func (h *Handler) cacheLookup(hit bool) {
	if h.metrics != nil {
		h.metrics.PageCacheLookup(hit)
	}
}

func writeView(w http.ResponseWriter, body []byte, cacheStatus string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// paging reads page and per_page. per_page must be one of the offered sizes.
func paging(r *http.Request) (page, perPage int) {
	page = utils.GetIntQueryParam(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage = utils.GetIntQueryParam(r, "per_page", models.DefaultPageSize)
	if !lo.Contains(models.PageSizes, perPage) {
		perPage = models.DefaultPageSize
	}
	return page, perPage
}

func viewData(data interface{}) utils.APIResponse {
	return utils.APIResponse{Success: true, Data: data}
}
