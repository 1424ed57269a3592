package auth

import (
	"errors"
	"fmt"

	"github.com/hitoshi/storefront/internal/ratelimit"
)

var (
	// ErrInvalidCredentials はメールアドレス未登録・パスワード誤り・無効アカウントのいずれかを表す。
	// 呼び出し側にはどれに該当したかを区別させない。
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnauthenticated はトークンの欠落・不正・期限切れ、またはアカウントが存在しない/無効であることを表す。
	ErrUnauthenticated = errors.New("authentication required")

	// ErrServiceUnavailable はユーザーストア等のインフラ障害を表す。
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ValidationError は入力値の検証エラー。Fieldに問題のあるフィールド名を持つ。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RateLimitedError はログイン試行回数の上限超過を表す。
type RateLimitedError struct {
	Result ratelimit.Result
	// RetryAfter はリセットまでの秒数（1以上）。
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %d seconds", e.RetryAfter)
}
