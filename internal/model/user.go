// Package model はドメインモデルを定義する。
package model

import "time"

// User はストアフロントのアカウント（Identityレコード）を表す。
// PasswordHashはログイン時の照合にのみ使用し、ログやAPI応答には含めない。
type User struct {
	ID           string
	Email        string // 小文字に正規化済み
	Name         string
	PasswordHash string
	Role         Role
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser はクライアントに返却してよいユーザー情報。
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Public はパスワードハッシュ等を除いた公開用の表現を返す。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}
