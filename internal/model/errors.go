// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, rate_limit, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーションエラーの対象フィールド（該当する場合のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// InvalidCredentialsMessage はログイン失敗時の唯一のメッセージ。
// メールアドレス未登録とパスワード誤りを区別しない。
const InvalidCredentialsMessage = "invalid email or password"

// NewValidationError は入力値のバリデーションエラーを生成する。
// messageはそのままクライアントに表示してよい文言であること。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   fmt.Sprintf("Check the %s field and try again.", field),
		Field:    field,
	}
}

// NewInvalidCredentialsError はログイン認証失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  InvalidCredentialsMessage,
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewUnauthenticatedError は認証失敗エラーを生成する。
// トークン不正・期限切れ・アカウント無効化のいずれでも同じ内容を返す。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "authentication required",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "you do not have permission to perform this action",
		Category: "auth",
		Action:   "Ask an administrator for access.",
	}
}

// NewRateLimitedError は試行回数超過エラーを生成する。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  fmt.Sprintf("too many attempts, retry after %d seconds", retryAfterSec),
		Category: "rate_limit",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and submit the form again.",
	}
}

// NewServiceUnavailableError はインフラ障害時の汎用エラーを生成する。
// 詳細はサーバー側のログにのみ記録する。
func NewServiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  "the service is temporarily unavailable",
		Category: "system",
		Action:   "Please try again later.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "user not found",
		Category: "validation",
		Action:   "Check the user ID.",
	}
}
