package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/config"
	"github.com/hitoshi/storefront/internal/credential"
	"github.com/hitoshi/storefront/internal/csrf"
	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/handler"
	"github.com/hitoshi/storefront/internal/kvstore"
	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/ratelimit"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/token"
	"github.com/hitoshi/storefront/internal/user"
	"github.com/hitoshi/storefront/internal/worker/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み時の警告を出せるように先に行う）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// 軽量サブコマンドはフル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandHashPassword:
		return runHashPassword(os.Stdin, w, args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("shared_state", cfg.UsesRedis()),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// appDeps はnewApplicationに渡す外部リソース。
type appDeps struct {
	Users    repository.UserRepository
	Health   handler.HealthChecker
	Redis    redis.UniversalClient // nilの場合はプロセス内のテーブルを使う
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// application はワイヤリング済みのHTTPハンドラーとバックグラウンド処理を保持する。
type application struct {
	handler     http.Handler
	sweepJob    *sweep.Job
	rateLimiter *middleware.RateLimiter
}

// newApplication は設定と外部リソースから全依存関係をワイヤリングする。
func newApplication(cfg *config.Config, deps appDeps) *application {
	collector := metrics.NewCollector(deps.Registry)

	// 1. レート制限のカウンタとCSRFのテーブル
	windows, csrfTokens := newTables(cfg, deps.Redis)

	// 2. ドメインサービスの初期化
	issuer := token.NewIssuer(token.IssuerConfig{
		Secret: cfg.TokenSecret,
		TTL:    cfg.TokenTTL,
	})
	authService := auth.NewService(
		deps.Users, ratelimit.NewLimiter(windows), issuer, collector,
		auth.ServiceConfig{
			LoginWindow:      cfg.LoginRateWindow,
			LoginMaxAttempts: cfg.LoginRateMax,
			BcryptCost:       cfg.BcryptCost,
		},
	)
	authenticator := auth.NewAuthenticator(issuer, deps.Users, collector)
	csrfStore := csrf.NewStore(csrfTokens, cfg.CSRFTTL)
	userService := user.NewService(deps.Users)

	// 3. 期限切れエントリのスイープ
	sweepJob := sweep.NewJob(deps.Logger, collector)
	sweepJob.Register("login_attempts", windows)
	sweepJob.Register("csrf_tokens", csrfTokens)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral), collector)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            deps.Logger,
		Metrics:           collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Authenticator:     authenticator,
		CSRFVerifier:      csrfStore,
		RateLimiter:       rateLimiter,

		HealthChecker:  deps.Health,
		MetricsHandler: metrics.Handler(deps.Registry),

		LoginService: authService,
		CSRFIssuer:   csrfStore,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService: userService,
	})

	return &application{
		handler:     router,
		sweepJob:    sweepJob,
		rateLimiter: rateLimiter,
	}
}

// newTables はレート制限のカウンタとCSRFのテーブルを生成する。
// Redisクライアントがあれば複数インスタンスで共有するストアを、なければプロセス内のストアを返す。
func newTables(cfg *config.Config, client redis.UniversalClient) (kvstore.Counter, kvstore.Table[string]) {
	if client == nil {
		return kvstore.NewTableCounter(kvstore.NewMemoryTable[ratelimit.Window](nil)), kvstore.NewMemoryTable[string](nil)
	}
	return kvstore.NewRedisCounter(client, cfg.RedisKeyPrefix+"ratelimit:", nil),
		kvstore.NewRedisTable[string](client, cfg.RedisKeyPrefix+"csrf:", nil)
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録するレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// openRedis はREDIS_URLからクライアントを生成し、疎通を確認する。
func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 共有ストア（任意）
	deps := appDeps{
		Users:    repository.NewPostgresUserRepo(db),
		Health:   db,
		Registry: newRegistry(),
		Logger:   slog.Default(),
	}
	if cfg.UsesRedis() {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Redis = client
		slog.Info("redis connection established")
	}

	// 3. ワイヤリング
	app := newApplication(cfg, deps)
	defer app.rateLimiter.Stop()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go app.sweepJob.Start(sweepCtx, cfg.SweepInterval)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// runHashPassword は初期データ投入用に、新しいユーザーIDとパスワードのbcryptハッシュを出力する。
// パスワードは標準入力から読み込む。ハッシュコストはBCRYPT_COSTで指定できる（未指定時はbcryptのデフォルト）。
func runHashPassword(in io.Reader, w io.Writer, args []string) error {
	if len(args) > 0 {
		return errors.New("usage: hash-password < password-file (the password is read from stdin, not from arguments)")
	}

	password, err := readPasswordInput(in, os.Stderr)
	if err != nil {
		return err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	hash, err := credential.Hash(password, config.LoadBcryptCost())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id=%s\npassword_hash=%s\n", uuid.NewString(), hash)
	return err
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
