// Package token は署名付きアクセストークンの発行と検証を提供する。
//
// トークンはHS256で署名したJWTで、ペイロードはバージョン付きの固定構造（Claims）とする。
// 検証は「署名の検証」と「ペイロード形状・有効期限の検証」の2段階で行い、
// 内部的には失敗理由を区別できるが、Validateの呼び出し側には成功/失敗のみを返す。
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/storefront/internal/model"
)

// ClaimsVersion は現在発行しているペイロードのバージョン。
const ClaimsVersion = 1

// MinSecretLength は署名シークレットの最小バイト数。
const MinSecretLength = 32

// DefaultTTL はトークン有効期間のデフォルト値。
const DefaultTTL = time.Hour

var (
	// ErrConfiguration は署名シークレットが未設定または短すぎることを表す。
	// デプロイ設定の誤りであり、この状態ではトークンを発行しない。
	ErrConfiguration = errors.New("token signing secret is missing or shorter than the minimum length")

	// 以下は検証失敗の内部的な理由。ログとメトリクスにのみ使用する。
	ErrMalformed          = errors.New("token is malformed")
	ErrBadSignature       = errors.New("token signature is invalid")
	ErrExpired            = errors.New("token has expired")
	ErrUnsupportedVersion = errors.New("token claims version is not supported")
)

// Identity はトークンに埋め込むアカウント情報。
type Identity struct {
	UserID string
	Email  string
	Role   model.Role
}

// Claims は検証済みトークンから取り出したペイロード。
type Claims struct {
	Version   int
	UserID    string
	Email     string
	Role      model.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// payload はJWTとしてシリアライズされるクレーム。
type payload struct {
	jwt.RegisteredClaims
	Version int    `json:"ver"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

// IssuerConfig はIssuerの設定。
type IssuerConfig struct {
	Secret string
	TTL    time.Duration    // 0以下の場合はDefaultTTL
	Now    func() time.Time // nilの場合はtime.Now
}

// Issuer はトークンの発行と検証を行う。
// 署名シークレットは起動後に変更されない。シークレットを差し替えると発行済みの全トークンが無効になる。
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewIssuer はIssuerを生成する。
// シークレットの強度はここでは検査せず、Issue/Validateの時点で検査する。
func NewIssuer(cfg IssuerConfig) *Issuer {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		now:    now,
		// 有効期限はvalidatePayloadで検査するため、ライブラリ側のクレーム検証は無効にする
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// TTL はトークンの有効期間を返す。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Configured は署名シークレットが発行可能な強度を満たすかを返す。
func (i *Issuer) Configured() bool {
	return len(i.secret) >= MinSecretLength
}

// Issue はアカウント情報からトークンを発行する。
// 有効期限は発行時刻 + TTL。シークレットが不正な場合はErrConfigurationを返す。
func (i *Issuer) Issue(id Identity) (string, error) {
	if !i.Configured() {
		return "", ErrConfiguration
	}

	issuedAt := i.now().Truncate(time.Second)
	p := payload{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
		},
		Version: ClaimsVersion,
		Email:   id.Email,
		Role:    string(id.Role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, p).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate はトークンを検証し、有効な場合はClaimsを返す。
// 形式不正・署名不正・期限切れのいずれの場合も (nil, false) を返し、理由は区別しない。
func (i *Issuer) Validate(raw string) (*Claims, bool) {
	claims, err := i.Inspect(raw)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// Inspect はトークンを検証し、失敗した場合はその理由をエラーとして返す。
// 返すエラーはErrConfiguration, ErrMalformed, ErrBadSignature, ErrExpired, ErrUnsupportedVersionのいずれか。
// 理由はログ・メトリクス用であり、クライアントへの応答に含めてはならない。
func (i *Issuer) Inspect(raw string) (*Claims, error) {
	if !i.Configured() {
		return nil, ErrConfiguration
	}

	p, err := i.verifySignature(raw)
	if err != nil {
		return nil, err
	}
	return i.validatePayload(p)
}

// verifySignature は署名を検証し、ペイロードをデコードする。
func (i *Issuer) verifySignature(raw string) (*payload, error) {
	if raw == "" {
		return nil, ErrMalformed
	}

	p := &payload{}
	_, err := i.parser.ParseWithClaims(raw, p, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrBadSignature
	default:
		return nil, ErrMalformed
	}
}

// validatePayload は署名検証済みペイロードの形状と有効期限を検証する。
func (i *Issuer) validatePayload(p *payload) (*Claims, error) {
	if p.Version != ClaimsVersion {
		return nil, ErrUnsupportedVersion
	}
	if p.Subject == "" || p.IssuedAt == nil || p.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	if !i.now().Before(p.ExpiresAt.Time) {
		return nil, ErrExpired
	}

	return &Claims{
		Version:   p.Version,
		UserID:    p.Subject,
		Email:     p.Email,
		Role:      model.Role(p.Role),
		IssuedAt:  p.IssuedAt.Time,
		ExpiresAt: p.ExpiresAt.Time,
	}, nil
}

// ExtractFromHeader はAuthorizationヘッダーの値から "Bearer <token>" 形式のトークンを取り出す。
// ヘッダーが空、スキームがBearer以外、トークンが空の場合は ("", false) を返す。
func ExtractFromHeader(header string) (string, bool) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", false
	}
	return tok, true
}
