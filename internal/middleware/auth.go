// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")

	// userIDHolderKey はロギングミドルウェアへユーザーIDを書き戻すためのキー。
	userIDHolderKey = contextKey("user_id_holder")
)

// userIDHolder は外側のミドルウェアが内側で確定したユーザーIDを参照するための入れ物。
type userIDHolder struct {
	userID string
}

func contextWithUserIDHolder(ctx context.Context, h *userIDHolder) context.Context {
	return context.WithValue(ctx, userIDHolderKey, h)
}

// RequestAuthenticator はリクエスト認証に必要なインターフェース。
// auth.Authenticatorが実装する。
type RequestAuthenticator interface {
	AuthenticateRequest(r *http.Request) (*model.User, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済みユーザーをリクエストコンテキストに注入する。
// トークン不正・期限切れ・アカウント無効化はいずれも同じ401を返す。
// ユーザーストア障害の場合のみ500を返す。
func NewAuthMiddleware(authenticator RequestAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.AuthenticateRequest(r)
			if err != nil {
				if errors.Is(err, auth.ErrServiceUnavailable) {
					slog.Error("authentication lookup failed",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					WriteErrorResponse(w, http.StatusInternalServerError, model.NewServiceUnavailableError())
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			ctx := ContextWithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole は認証済みユーザーのロールがrequired以上であることを要求するミドルウェアを返す。
// NewAuthMiddlewareの後に配置すること。
func RequireRole(required model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			if !model.RoleSatisfies(user.Role, required) {
				slog.Warn("insufficient role",
					slog.String("user_id", user.ID),
					slog.String("role", string(user.Role)),
					slog.String("required", string(required)),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, ok := UserFromContext(ctx)
	if !ok || user.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return user.ID, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if h, ok := ctx.Value(userIDHolderKey).(*userIDHolder); ok && user != nil {
		h.userID = user.ID
	}
	return context.WithValue(ctx, userContextKey, user)
}
