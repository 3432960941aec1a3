package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// ContextKey 用于在context中存储调用者信息的键
type ContextKey string

const (
	CallerContextKey ContextKey = "caller"
	callerSlotKey    ContextKey = "caller_slot"
)

// Session cookies shared with the web frontend.
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
	CodeVerifierCookie = "sb-code-verifier"
)

// Lifetime of the refresh and code verifier cookies.
const (
	refreshCookieMaxAge  = 60 * 60 * 24 * 30
	verifierCookieMaxAge = 60 * 60
)

// Session 会话中间件：从cookie或Authorization头解析调用者。
//
// Requests without a valid session continue as anonymous; handlers decide whether
// that is acceptable. An expired access token is refreshed once and the new pair
// is written back as cookies. When the backend is not configured no network call
// is made and every request is anonymous.
func Session(cfg *config.Config, backend database.Backend, log logrus.FieldLogger) func(http.Handler) http.Handler {
	var verifier *utils.JWTService
	if cfg.SupabaseJWTSecret != "" {
		verifier = utils.NewJWTService(cfg.SupabaseJWTSecret)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, ok := backend.Client()
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			token, fromHeader := accessToken(r)
			refresh := ""
			if c, err := r.Cookie(RefreshTokenCookie); err == nil {
				refresh = c.Value
			}
			if token == "" && refresh == "" {
				next.ServeHTTP(w, r)
				return
			}

			reqLog := logging.WithReqIDFromCtx(r.Context(), log)
			caller, err := resolveCaller(r.Context(), client, verifier, token)
			if err != nil && !fromHeader && refresh != "" {
				var session *models.Session
				session, err = client.Auth().RefreshSession(r.Context(), refresh)
				if err == nil {
					SetSessionCookies(w, r, cfg, session)
					caller, err = callerFromSession(r.Context(), client, verifier, session)
				} else {
					ClearSessionCookies(w, r, cfg)
				}
			}
			if err != nil {
				reqLog.WithError(err).Debug("Session not accepted; continuing anonymously")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

var errNoToken = errors.New("no access token")

// accessToken returns the bearer token, falling back to the session cookie.
func accessToken(r *http.Request) (token string, fromHeader bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if t := strings.TrimPrefix(h, "Bearer "); t != h && t != "" {
			return t, true
		}
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value, false
	}
	return "", false
}

// resolveCaller verifies token locally when the JWT secret is known, otherwise
// asks the identity provider.
func resolveCaller(ctx context.Context, client database.Client, verifier *utils.JWTService, token string) (models.Caller, error) {
	if token == "" {
		return models.Caller{}, errNoToken
	}
	if verifier != nil {
		return verifier.ExtractCaller(token)
	}
	if utils.TokenExpired(token) {
		return models.Caller{}, utils.ErrTokenExpired
	}
	user, err := client.Auth().GetUser(ctx, token)
	if err != nil {
		return models.Caller{}, err
	}
	return models.Caller{UserID: user.ID, Email: user.Email, AccessToken: token}, nil
}

func callerFromSession(ctx context.Context, client database.Client, verifier *utils.JWTService, session *models.Session) (models.Caller, error) {
	if session.User != nil && session.User.ID != "" {
		return models.Caller{UserID: session.User.ID, Email: session.User.Email, AccessToken: session.AccessToken}, nil
	}
	return resolveCaller(ctx, client, verifier, session.AccessToken)
}

// CallerFromContext 从context中获取调用者，未登录时返回匿名调用者
func CallerFromContext(ctx context.Context) models.Caller {
	caller, _ := ctx.Value(CallerContextKey).(models.Caller)
	return caller
}

// WithCaller returns ctx carrying caller. Middleware that installed a caller slot
// further out sees the caller too.
func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	if slot, ok := ctx.Value(callerSlotKey).(*callerSlot); ok {
		slot.caller = caller
	}
	return context.WithValue(ctx, CallerContextKey, caller)
}

// callerSlot carries the resolved caller back out to middleware that runs
// before Session, such as the request logger.
type callerSlot struct {
	caller models.Caller
}

func withCallerSlot(ctx context.Context) (context.Context, *callerSlot) {
	slot := &callerSlot{}
	return context.WithValue(ctx, callerSlotKey, slot), slot
}

func secureCookies(r *http.Request, cfg *config.Config) bool {
	return cfg.IsProduction() || r.TLS != nil || r.URL.Scheme == "https"
}

func setCookie(w http.ResponseWriter, r *http.Request, cfg *config.Config, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secureCookies(r, cfg),
		SameSite: http.SameSiteLaxMode,
	})
}

// SetSessionCookies 写入会话cookie
func SetSessionCookies(w http.ResponseWriter, r *http.Request, cfg *config.Config, session *models.Session) {
	accessMaxAge := int(session.ExpiresIn)
	if session.ExpiresAt > 0 {
		accessMaxAge = int(time.Until(time.Unix(session.ExpiresAt, 0)).Seconds())
	}
	if accessMaxAge <= 0 {
		accessMaxAge = 3600
	}
	setCookie(w, r, cfg, AccessTokenCookie, session.AccessToken, accessMaxAge)
	if session.RefreshToken != "" {
		setCookie(w, r, cfg, RefreshTokenCookie, session.RefreshToken, refreshCookieMaxAge)
	}
}

// ClearSessionCookies 清除会话cookie
func ClearSessionCookies(w http.ResponseWriter, r *http.Request, cfg *config.Config) {
	setCookie(w, r, cfg, AccessTokenCookie, "", -1)
	setCookie(w, r, cfg, RefreshTokenCookie, "", -1)
}

// SetCodeVerifierCookie keeps the PKCE verifier until the auth callback.
func SetCodeVerifierCookie(w http.ResponseWriter, r *http.Request, cfg *config.Config, verifier string) {
	setCookie(w, r, cfg, CodeVerifierCookie, verifier, verifierCookieMaxAge)
}

// TakeCodeVerifier returns the PKCE verifier and clears its cookie.
func TakeCodeVerifier(w http.ResponseWriter, r *http.Request, cfg *config.Config) string {
	c, err := r.Cookie(CodeVerifierCookie)
	if err != nil {
		return ""
	}
	setCookie(w, r, cfg, CodeVerifierCookie, "", -1)
	return c.Value
}
