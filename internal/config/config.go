package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// minTokenSecretLength はトークン署名シークレットとして許容する最小バイト数。
// token.MinSecretLengthと同じ値。
const minTokenSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	TokenSecret string
	TokenTTL    time.Duration

	// Login rate limit
	LoginRateWindow time.Duration
	LoginRateMax    int

	// CSRF
	CSRFTTL       time.Duration
	SessionMaxAge int // sid Cookieの有効期間（秒）

	// Shared state
	RedisURL       string // 空の場合はプロセス内のテーブルを使う
	RedisKeyPrefix string
	SweepInterval  time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Password hashing
	BcryptCost int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// TOKEN_SECRETが短すぎる場合はエラーにせず警告のみ出す（トークン発行側で拒否される）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.TokenSecret) < minTokenSecretLength {
		slog.Warn("TOKEN_SECRET is shorter than the minimum length; logins will fail until it is replaced",
			slog.Int("min_length", minTokenSecretLength),
		)
	}

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", time.Hour)
	cfg.LoginRateWindow = getEnvDuration("LOGIN_RATE_WINDOW", 15*time.Minute)
	cfg.LoginRateMax = getEnvInt("LOGIN_RATE_MAX", 5)
	cfg.CSRFTTL = getEnvDuration("CSRF_TTL", time.Hour)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RedisKeyPrefix = getEnvString("REDIS_KEY_PREFIX", "storefront:")
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.BcryptCost = LoadBcryptCost()
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

// LoadBcryptCost はBCRYPT_COSTを読み込む。未設定・不正値は0（bcryptのデフォルトコスト）。
// 設定全体を読み込まないhash-passwordコマンドとLoadで同じ値を使うために公開する。
func LoadBcryptCost() int {
	return getEnvInt("BCRYPT_COST", 0)
}

// UsesRedis は共有ストア（Redis）を使う設定かを返す。
func (c *Config) UsesRedis() bool {
	return c.RedisURL != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvInt は正の整数を読み込む。不正値・0以下はデフォルト値になる。
func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

// getEnvDuration は正の期間を読み込む。不正値・0以下はデフォルト値になる。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
