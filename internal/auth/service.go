// Package auth はパスワードログインとリクエスト認証を提供する。
//
// ログインは入力検証、クライアント単位のレート制限、資格情報の照合、トークン発行の順に行う。
// 以降のリクエストはAuthenticatorがトークンを検証し、アカウントが現在も有効かを確認する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/storefront/internal/credential"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/ratelimit"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/token"
)

// loginKeyPrefix はログイン試行のレート制限キーの接頭辞。
const loginKeyPrefix = "login:"

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	LoginWindow      time.Duration // ログイン試行を数えるウィンドウ長
	LoginMaxAttempts int           // ウィンドウ内で許可する試行回数
	BcryptCost       int           // 保存済みハッシュのコスト。ダミー照合を同じコストで行う
}

// LoginRequest はログイン要求。
type LoginRequest struct {
	Email    string
	Password string
	ClientID string // レート制限に使うクライアント識別子
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token     string
	User      *model.User
	RateLimit ratelimit.Result
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users   repository.UserRepository
	limiter *ratelimit.Limiter
	issuer  *token.Issuer
	metrics metrics.Recorder
	config  ServiceConfig
	now     func() time.Time

	verifyDummy func(plaintext string, cost int) bool
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	limiter *ratelimit.Limiter,
	issuer *token.Issuer,
	recorder metrics.Recorder,
	config ServiceConfig,
) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		users:   users,
		limiter: limiter,
		issuer:  issuer,
		metrics: recorder,
		config:  config,
		now:     time.Now,

		verifyDummy: credential.VerifyDummy,
	}
}

// Login はメールアドレスとパスワードで認証し、アクセストークンを発行する。
//
// 返すエラー:
//   - *ValidationError: 入力形式の不正（ユーザーストアとレート制限には触れない）
//   - *RateLimitedError: 試行回数の上限超過
//   - ErrInvalidCredentials: 未登録・パスワード誤り・無効アカウント
//   - ErrServiceUnavailable: ユーザーストアまたはレート制限ストアの障害
//   - token.ErrConfiguration: 署名鍵の設定不備
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := s.now()
	outcome := metrics.LoginError
	defer func() {
		s.metrics.RecordLogin(outcome, s.now().Sub(start))
	}()

	// 1. 入力検証
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		outcome = metrics.LoginValidationError
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		outcome = metrics.LoginValidationError
		return nil, err
	}

	// 2. レート制限（成功・失敗を問わず全試行を数える）
	rl, err := s.limiter.Check(ctx, loginKeyPrefix+req.ClientID, s.config.LoginWindow, s.config.LoginMaxAttempts)
	if err != nil {
		slog.Error("login rate limit check failed",
			slog.String("client_id", req.ClientID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if !rl.Allowed {
		outcome = metrics.LoginRateLimited
		s.metrics.RecordRateLimitRejection("login")
		slog.Warn("login rate limited",
			slog.String("client_id", req.ClientID),
			slog.Time("reset_time", rl.ResetTime),
		)
		return nil, &RateLimitedError{Result: rl, RetryAfter: rl.RetryAfter(s.now())}
	}

	// 3. ユーザー取得
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to look up user for login",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if user == nil || !user.IsActive {
		// 応答時間から存在有無を推測されないよう、同等のハッシュ照合を行う
		s.verifyDummy(req.Password, s.config.BcryptCost)
		outcome = metrics.LoginInvalidCredentials
		return nil, ErrInvalidCredentials
	}

	// 4. パスワード照合
	if !credential.Verify(req.Password, user.PasswordHash) {
		outcome = metrics.LoginInvalidCredentials
		slog.Info("login failed: password mismatch", slog.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	// 5. トークン発行
	tok, err := s.issuer.Issue(token.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		slog.Error("failed to issue token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	// 6. 最終ログイン日時の更新（失敗してもログインは成功扱い）
	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	outcome = metrics.LoginSuccess
	slog.Info("user logged in", slog.String("user_id", user.ID))

	return &LoginResult{
		Token:     tok,
		User:      user,
		RateLimit: rl,
	}, nil
}

// IsConfigurationError は署名鍵の設定不備によるエラーかを判定する。
func IsConfigurationError(err error) bool {
	return errors.Is(err, token.ErrConfiguration)
}
