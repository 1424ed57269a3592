// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// ErrNotFound は更新対象のレコードが存在しないことを表す。
var ErrNotFound = errors.New("repository: record not found")

// UserRepository はアカウント（Identityレコード）の永続化インターフェース。
// 認証コアはこのインターフェースを通じてのみユーザー情報を参照・更新する。
type UserRepository interface {
	// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// TouchLastLogin は最終ログイン日時を更新する。
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	// SetActive はアカウントの有効/無効を切り替える。存在しない場合はErrNotFoundを返す。
	SetActive(ctx context.Context, id string, active bool) error
}
