package handlers

import (
	"net/http"
	"net/url"

	"impact-story-backend/pkg/actions"
	"impact-story-backend/pkg/middleware"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// SignUp 用户注册
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res := h.actions.SignUp(r.Context(), actions.SignUpInput{
		Email:            r.PostFormValue("email"),
		Password:         r.PostFormValue("password"),
		ConfirmPassword:  r.PostFormValue("confirmPassword"),
		FullName:         r.PostFormValue("fullName"),
		OrganizationName: r.PostFormValue("organizationName"),
		Origin:           middleware.RequestOrigin(r),
	})
	h.respond(w, r, res)
}

// SignIn 用户登录
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res := h.actions.SignIn(r.Context(), actions.SignInInput{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	h.respond(w, r, res)
}

// SignOut 用户登出
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	res := h.actions.SignOut(r.Context(), middleware.CallerFromContext(r.Context()))
	h.respond(w, r, res)
}

// ResetPassword 发送密码重置邮件
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res := h.actions.RequestPasswordReset(r.Context(), actions.ResetPasswordInput{
		Email:  r.PostFormValue("email"),
		Origin: middleware.RequestOrigin(r),
	})
	h.respond(w, r, res)
}

// UpdatePassword 修改密码
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res := h.actions.UpdatePassword(r.Context(), middleware.CallerFromContext(r.Context()), actions.UpdatePasswordInput{
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	})
	h.respond(w, r, res)
}

// AuthCallback 处理邮件链接回调（确认注册、重置密码）
//
// Browsers following the link get a redirect either way; failures land on the
// login page with the message in the query.
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if desc := q.Get("error_description"); desc != "" && q.Get("code") == "" {
		h.callbackFailed(w, r, actions.Result{Error: desc, Failure: actions.FailureInvalid})
		return
	}

	res := h.actions.Callback(r.Context(), actions.CallbackInput{
		Code:         q.Get("code"),
		Next:         q.Get("next"),
		CodeVerifier: middleware.TakeCodeVerifier(w, r, h.config),
	})
	if !res.OK() {
		h.callbackFailed(w, r, res)
		return
	}
	h.respond(w, r, res)
}

func (h *Handler) callbackFailed(w http.ResponseWriter, r *http.Request, res actions.Result) {
	if utils.WantsJSON(r) {
		h.respond(w, r, res)
		return
	}
	http.Redirect(w, r, models.RouteLogin+"?error="+url.QueryEscape(res.Error), http.StatusSeeOther)
}
