// Package ratelimit は識別子ごとの固定ウィンドウ方式のレート制限を提供する。
//
// ウィンドウはキーに対する最初のリクエスト時刻から始まり、windowの長さだけ続く。
// ウィンドウ内の全リクエストでカウンタを加算し、maxRequestsを超えた時点から
// リセット時刻まで allowed=false を返す。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/storefront/internal/kvstore"
)

// UnknownClient はクライアント識別子を導出できない場合の値。
const UnknownClient = "unknown"

// ErrInvalidLimit はwindowまたはmaxRequestsが正でないことを表す。
var ErrInvalidLimit = errors.New("ratelimit: window and maxRequests must be positive")

// Window はキーごとのカウンタとリセット時刻。
type Window = kvstore.Window

// Result はCheckの結果。
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// RetryAfter はリセットまでの待ち時間を秒単位で切り上げて返す。最小1秒。
func (r Result) RetryAfter(now time.Time) int {
	sec := int(math.Ceil(r.ResetTime.Sub(now).Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// Limiter は固定ウィンドウ方式のレートリミッター。
// カウンタはCounterで原子的に加算するため、同一キーへの同時リクエストでも加算は失われない。
type Limiter struct {
	counter kvstore.Counter
}

// NewLimiter はLimiterを生成する。
// 単一プロセス構成ではkvstore.NewTableCounter、複数インスタンス構成ではkvstore.NewRedisCounterを渡す。
func NewLimiter(counter kvstore.Counter) *Limiter {
	return &Limiter{counter: counter}
}

// Check はidentifierのリクエストを1回記録し、許可されるかを返す。
// 初めて観測したキーは常に許可される。
func (l *Limiter) Check(ctx context.Context, identifier string, window time.Duration, maxRequests int) (Result, error) {
	if window <= 0 || maxRequests < 1 {
		return Result{}, ErrInvalidLimit
	}

	w, err := l.counter.Increment(ctx, identifier, window)
	if err != nil {
		return Result{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	remaining := maxRequests - w.Count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   w.Count <= maxRequests,
		Limit:     maxRequests,
		Remaining: remaining,
		ResetTime: w.ResetTime,
	}, nil
}

// Reset はidentifierのウィンドウを破棄する。
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	return l.counter.Delete(ctx, identifier)
}

// ClientIdentifier はリクエストからクライアント識別子を導出する。
// X-Forwarded-Forの先頭アドレス、X-Real-IP、UnknownClientの順に採用する。
// どちらのヘッダーもクライアントが偽装できるため、信頼できるプロキシで上書きされる前提で使用する。
func ClientIdentifier(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownClient
}
