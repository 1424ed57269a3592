// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplayNameSanitizer はユーザーの表示名からマークアップを除去し、
// API応答やフォーム描画でそのまま扱えるプレーンテキストに整える。
// bluemondayのStrictPolicyで全タグを除去した上で、制御文字と余分な空白を取り除く。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameRunes は表示名の最大文字数。超過分は切り詰める。
const MaxDisplayNameRunes = 100

// DisplayNameSanitizer は表示名のサニタイズ機能を提供する。
// bluemondayのポリシーはスレッドセーフなため、1インスタンスを共有してよい。
type DisplayNameSanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplayNameSanitizer はDisplayNameSanitizerを生成する。
func NewDisplayNameSanitizer() *DisplayNameSanitizer {
	return &DisplayNameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名をプレーンテキストに変換する。
// 同一入力に対して常に同一出力を返す。
func (s *DisplayNameSanitizer) Sanitize(name string) string {
	if name == "" {
		return ""
	}

	// StrictPolicyはタグを除去し、テキストをHTMLエスケープして返す。
	// JSONで返すためエスケープを戻し、残った山括弧は落とす。
	text := html.UnescapeString(s.policy.Sanitize(name))
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)
	text = strings.Join(strings.Fields(text), " ")

	if runes := []rune(text); len(runes) > MaxDisplayNameRunes {
		text = strings.TrimSpace(string(runes[:MaxDisplayNameRunes]))
	}
	return text
}
