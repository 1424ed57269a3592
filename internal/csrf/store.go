// Package csrf はセッション単位のCSRFトークンを発行・検証するストアを提供する。
//
// 1セッションにつき有効なトークンは常に1つだけで、新しいトークンを発行すると
// それ以前に発行したトークンは期限前でも無効になる。
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/storefront/internal/kvstore"
)

// DefaultTTL はトークンの既定の有効期間。
const DefaultTTL = time.Hour

// tokenBytes はトークンの乱数バイト数。hexエンコード後は64文字になる。
const tokenBytes = 32

// ErrEmptySession はセッション識別子が空であることを表す。
var ErrEmptySession = errors.New("csrf: session id is empty")

// Store はCSRFトークンストア。
type Store struct {
	table kvstore.Table[string]
	ttl   time.Duration
}

// NewStore はStoreを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewStore(table kvstore.Table[string], ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{table: table, ttl: ttl}
}

// TTL はトークンの有効期間を返す。
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue はセッションに新しいトークンを発行する。既存のトークンは置き換えられる。
func (s *Store) Issue(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySession
	}

	tok, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}

	if err := s.table.Set(ctx, sessionID, tok, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store CSRF token: %w", err)
	}
	return tok, nil
}

// Verify はトークンがセッションの現在有効なトークンと一致するかを判定する。
// 期限切れ、置き換え済み、未発行のいずれの場合もfalseを返す。
func (s *Store) Verify(ctx context.Context, sessionID, token string) bool {
	if sessionID == "" || token == "" {
		return false
	}

	current, ok := s.Peek(ctx, sessionID)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(token)) == 1
}

// Peek はセッションの現在有効なトークンを返す。フォーム描画側が埋め込みに使用する。
func (s *Store) Peek(ctx context.Context, sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}

	tok, ok, err := s.table.Get(ctx, sessionID)
	if err != nil {
		slog.Error("failed to read CSRF token",
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return tok, ok
}

// Revoke はセッションのトークンを破棄する。
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	return s.table.Delete(ctx, sessionID)
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
