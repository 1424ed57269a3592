package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
)

const (
	// SessionCookieName はCSRFトークンを紐付けるセッション識別子のCookie名。
	SessionCookieName = "sid"

	// CSRFHeaderName はリクエストヘッダーからCSRFトークンを読み取る際のヘッダー名。
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFVerifier はCSRFトークンの検証に必要なインターフェース。
// csrf.Storeが実装する。
type CSRFVerifier interface {
	Verify(ctx context.Context, sessionID, token string) bool
}

// NewCSRFMiddleware はCSRFトークン検証ミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）はトークン検証をスキップする。
// 状態変更メソッドは、sid Cookieに紐付く現在有効なトークンがX-CSRF-Tokenヘッダーで
// 送られていることを要求する。新しいトークンが発行された後の古いトークンは拒否される。
func NewCSRFMiddleware(verifier CSRFVerifier, recorder metrics.Recorder) func(next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			reject := func(reason string) {
				recorder.RecordCSRFRejection(reason)
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFInvalidError())
			}

			sessionID := SessionIDFromRequest(r)
			if sessionID == "" {
				reject("missing_session")
				return
			}

			headerToken := r.Header.Get(CSRFHeaderName)
			if headerToken == "" {
				reject("missing_token")
				return
			}

			if !verifier.Verify(r.Context(), sessionID, headerToken) {
				reject("mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionIDFromRequest はsid Cookieの値を返す。存在しない場合は空文字列。
func SessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
