package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/token"
)

// トークン拒否理由。メトリクスとログにのみ使い、クライアントには返さない。
const (
	rejectMissingHeader      = "missing_header"
	rejectMalformed          = "malformed"
	rejectBadSignature       = "bad_signature"
	rejectExpired            = "expired"
	rejectUnsupportedVersion = "unsupported_version"
	rejectConfiguration      = "configuration"
	rejectUnknownUser        = "unknown_user"
	rejectInactiveUser       = "inactive_user"
)

// UserFinder はAuthenticatorがアカウントを再確認するためのインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticator は保護されたリクエストの認証を行う。
// 全ての保護対象リクエストはここを通過する。
type Authenticator struct {
	issuer  *token.Issuer
	users   UserFinder
	metrics metrics.Recorder
}

// NewAuthenticator はAuthenticatorを生成する。
func NewAuthenticator(issuer *token.Issuer, users UserFinder, recorder metrics.Recorder) *Authenticator {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Authenticator{
		issuer:  issuer,
		users:   users,
		metrics: recorder,
	}
}

// AuthenticateRequest はリクエストのAuthorizationヘッダーで認証する。
func (a *Authenticator) AuthenticateRequest(r *http.Request) (*model.User, error) {
	return a.Authenticate(r.Context(), r.Header.Get("Authorization"))
}

// Authenticate はAuthorizationヘッダー値を検証し、有効なアカウントを返す。
// userとerrorのどちらか一方のみが非nilになる。
//
// トークンの欠落・不正・期限切れ、アカウントの不在・無効化はすべてErrUnauthenticatedを返す。
// ユーザーストア障害のみErrServiceUnavailableを返す。
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (*model.User, error) {
	raw, ok := token.ExtractFromHeader(authorization)
	if !ok {
		return nil, a.reject(rejectMissingHeader, "")
	}

	claims, err := a.issuer.Inspect(raw)
	if err != nil {
		return nil, a.reject(rejectionReason(err), "")
	}

	user, err := a.users.FindByID(ctx, claims.UserID)
	if err != nil {
		slog.Error("failed to look up user for authentication",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if user == nil {
		return nil, a.reject(rejectUnknownUser, claims.UserID)
	}
	if !user.IsActive {
		return nil, a.reject(rejectInactiveUser, claims.UserID)
	}

	return user, nil
}

func (a *Authenticator) reject(reason, userID string) error {
	a.metrics.RecordTokenRejection(reason)
	attrs := []any{slog.String("reason", reason)}
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	slog.Debug("request authentication rejected", attrs...)
	return ErrUnauthenticated
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return rejectExpired
	case errors.Is(err, token.ErrBadSignature):
		return rejectBadSignature
	case errors.Is(err, token.ErrUnsupportedVersion):
		return rejectUnsupportedVersion
	case errors.Is(err, token.ErrConfiguration):
		return rejectConfiguration
	default:
		return rejectMalformed
	}
}
