package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.Recorder
	CORSAllowedOrigin string
	Authenticator     middleware.RequestAuthenticator
	CSRFVerifier      middleware.CSRFVerifier
	RateLimiter       *middleware.RateLimiter // nilの場合は認証済みAPIのレート制限を行わない

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない

	// 認証
	LoginService LoginService
	CSRFIssuer   CSRFTokenIssuer
	AuthConfig   AuthHandlerConfig

	// バックオフィス
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  認証が必要なルート: Auth → RateLimit
//	  管理ルート:         Auth → RateLimit → RequireRole(admin) → CSRF
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.LoginService, deps.CSRFIssuer, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// ログイン試行は固定ウィンドウのレート制限をサービス層で行う
	r.Post("/api/auth/login", authHandler.Login)
	r.Get("/api/csrf-token", authHandler.CSRFToken)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/api/auth/me", authHandler.Me)

		// バックオフィス（管理者のみ、状態変更はCSRFトークン必須）
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFVerifier, recorder))

			r.Route("/users/{id}", func(r chi.Router) {
				r.Post("/deactivate", userHandler.Deactivate)
				r.Post("/activate", userHandler.Activate)
			})
		})
	})

	return r
}
