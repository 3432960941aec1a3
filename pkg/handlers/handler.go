package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/actions"
	"impact-story-backend/pkg/cache"
	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/metrics"
	"impact-story-backend/pkg/middleware"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// Multipart parts above this size spill to temporary files.
const multipartMemory = 8 << 20

// MaxActionBody bounds a form submission. It leaves room above the photo limit so
// oversized photos get the size message instead of a truncated body.
const MaxActionBody = 2*models.MaxPhotoSize + 1<<20

// Handler 处理表单操作和页面数据
type Handler struct {
	config  *config.Config
	backend database.Backend
	actions *actions.Service
	pages   cache.Pages
	metrics *metrics.Collector
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewHandler 创建处理器. pages and m may be nil.
func NewHandler(cfg *config.Config, backend database.Backend, svc *actions.Service, pages cache.Pages, m *metrics.Collector, log logrus.FieldLogger) *Handler {
	if pages == nil {
		pages = cache.Noop{}
	}
	return &Handler{
		config:  cfg,
		backend: backend,
		actions: svc,
		pages:   pages,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// statusFor maps an action failure to an HTTP status.
func statusFor(f actions.Failure) int {
	switch f {
	case actions.FailureUnconfigured:
		return http.StatusServiceUnavailable
	case actions.FailureUnauthenticated:
		return http.StatusUnauthorized
	case actions.FailureForbidden:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

// respond 写入表单操作结果
//
// Failures are {"error": "..."}. Successes revalidate cached pages, then redirect
// with 303, or answer JSON when the client asked for it or there is nowhere to go.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, res actions.Result) {
	if res.ClearSession {
		middleware.ClearSessionCookies(w, r, h.config)
	}
	if res.Session != nil {
		middleware.SetSessionCookies(w, r, h.config, res.Session)
	}
	if res.CodeVerifier != "" {
		middleware.SetCodeVerifierCookie(w, r, h.config, res.CodeVerifier)
	}

	if !res.OK() {
		utils.WriteActionError(w, statusFor(res.Failure), res.Error)
		return
	}

	if len(res.Revalidate) > 0 {
		removed := h.pages.Revalidate(res.Revalidate...)
		if h.metrics != nil {
			h.metrics.Revalidated(res.Revalidate...)
		}
		logging.WithReqIDFromCtx(r.Context(), h.log).
			WithField("routes", res.Revalidate).
			WithField("removed", removed).
			Debug("Revalidated pages")
	}

	if res.Redirect != "" && !utils.WantsJSON(r) {
		http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.ActionSuccess{
		Success:  true,
		Redirect: res.Redirect,
		Message:  res.Message,
		Data:     res.Data,
	})
}

// parseForm 解析 urlencoded 或 multipart 表单. It reports false after writing
// the error response.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		utils.WriteActionError(w, http.StatusRequestEntityTooLarge, "File size exceeds "+utils.FormatFileSize(models.MaxPhotoSize))
		return false
	}
	logging.WithReqIDFromCtx(r.Context(), h.log).WithError(err).Debug("Failed to parse form")
	utils.WriteActionError(w, http.StatusBadRequest, "Invalid form submission")
	return false
}
