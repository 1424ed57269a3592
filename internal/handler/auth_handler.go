// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/ratelimit"
	"github.com/hitoshi/storefront/internal/security"
)

// レート制限の残量をクライアントに伝えるヘッダー
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// LoginService は認証ハンドラーが必要とするサービスインターフェース。
type LoginService interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
}

// CSRFTokenIssuer はセッションに対してCSRFトークンを発行する。
// csrf.Storeが実装する。
type CSRFTokenIssuer interface {
	Issue(ctx context.Context, sessionID string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // sid Cookieの有効期間（秒）
}

// AuthHandler はログイン・現在のユーザー取得・CSRFトークン発行のHTTPハンドラー。
type AuthHandler struct {
	service   LoginService
	csrf      CSRFTokenIssuer
	sanitizer *security.DisplayNameSanitizer
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service LoginService, csrf CSRFTokenIssuer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		csrf:      csrf,
		sanitizer: security.NewDisplayNameSanitizer(),
		config:    config,
	}
}

type loginRequestBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponseBody struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

type meResponseBody struct {
	User model.PublicUser `json:"user"`
}

type csrfTokenResponseBody struct {
	Token string `json:"token"`
}

// Login はメールアドレスとパスワードでログインし、アクセストークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequestBody
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("body", "request body must be a JSON object with email and password"))
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginRequest{
		Email:    body.Email,
		Password: body.Password,
		ClientID: ratelimit.ClientIdentifier(r),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	setRateLimitHeaders(w, result.RateLimit)
	writeJSON(w, http.StatusOK, loginResponseBody{
		Token: result.Token,
		User:  h.publicUser(result.User),
	})
}

// writeLoginError はログイン失敗をHTTPレスポンスに変換する。
// 未登録・パスワード誤り・無効アカウントは同じ401に集約する。
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var validationErr *auth.ValidationError
	var rateLimitedErr *auth.RateLimitedError

	switch {
	case errors.As(err, &validationErr):
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(validationErr.Field, validationErr.Message))
	case errors.As(err, &rateLimitedErr):
		setRateLimitHeaders(w, rateLimitedErr.Result)
		w.Header().Set("Retry-After", strconv.Itoa(rateLimitedErr.RetryAfter))
		middleware.WriteErrorResponse(w, http.StatusTooManyRequests,
			model.NewRateLimitedError(rateLimitedErr.RetryAfter))
	case errors.Is(err, auth.ErrInvalidCredentials):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
	case auth.IsConfigurationError(err):
		slog.Error("token issuer is misconfigured", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	default:
		slog.Error("login failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewServiceUnavailableError())
	}
}

// Me は認証済みユーザーの情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	writeJSON(w, http.StatusOK, meResponseBody{User: h.publicUser(user)})
}

// CSRFToken はsid Cookieに紐付く新しいCSRFトークンを発行する。
// sid Cookieがなければ新しく払い出す。以前のトークンは無効になる。
// GET /api/csrf-token
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromRequest(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookieName,
			Value:    sessionID,
			Path:     "/",
			Domain:   h.config.CookieDomain,
			MaxAge:   h.config.SessionMaxAge,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	tok, err := h.csrf.Issue(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, csrfTokenResponseBody{Token: tok})
}

// publicUser は表示名を無害化した公開用のユーザー情報を返す。
func (h *AuthHandler) publicUser(user *model.User) model.PublicUser {
	pub := user.Public()
	pub.Name = h.sanitizer.Sanitize(pub.Name)
	return pub
}

// setRateLimitHeaders はログイン試行の上限・残り回数・リセット時刻（Unix秒）を設定する。
func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set(headerRateLimitLimit, strconv.Itoa(result.Limit))
	w.Header().Set(headerRateLimitRemaining, strconv.Itoa(result.Remaining))
	w.Header().Set(headerRateLimitReset, strconv.FormatInt(result.ResetTime.Unix(), 10))
}
