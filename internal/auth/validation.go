package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/storefront/internal/credential"
	"golang.org/x/net/idna"
)

// maxEmailLength はRFC 5321のパス長上限。
const maxEmailLength = 254

// NormalizeEmail はメールアドレスを検証し、照合用の正規形に変換する。
// 前後の空白を除去して小文字化し、ドメイン部はIDNAのASCII形式（punycode）に変換する。
// 形式が不正な場合はField="email"のValidationErrorを返す。
func NormalizeEmail(raw string) (string, error) {
	invalid := &ValidationError{Field: "email", Message: "email is invalid"}

	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &ValidationError{Field: "email", Message: "email is required"}
	}

	// 表示名付き（"Name <a@b>"）や複数アドレスは受け付けない
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", invalid
	}

	at := strings.LastIndexByte(email, '@')
	local, domain := email[:at], email[at+1:]
	if local == "" || domain == "" {
		return "", invalid
	}

	asciiDomain, err := idna.Lookup.ToASCII(domain)
	if err != nil || !strings.Contains(asciiDomain, ".") {
		return "", invalid
	}

	normalized := local + "@" + asciiDomain
	if len(normalized) > maxEmailLength {
		return "", invalid
	}
	return normalized, nil
}

// ValidatePassword はパスワードの長さを検証する。
// 上限はbcryptが扱える72バイト。
func ValidatePassword(password string) error {
	if password == "" {
		return &ValidationError{Field: "password", Message: "password is required"}
	}
	if utf8.RuneCountInString(password) < credential.MinPasswordLength {
		return &ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	if len(password) > credential.MaxPasswordBytes {
		return &ValidationError{Field: "password", Message: "password must be at most 72 bytes"}
	}
	return nil
}
