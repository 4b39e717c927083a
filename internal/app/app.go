package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/skinshowcase/internal/auth"
	"github.com/hitoshi/skinshowcase/internal/config"
	"github.com/hitoshi/skinshowcase/internal/database"
	"github.com/hitoshi/skinshowcase/internal/handler"
	"github.com/hitoshi/skinshowcase/internal/inventory"
	"github.com/hitoshi/skinshowcase/internal/listing"
	"github.com/hitoshi/skinshowcase/internal/logger"
	"github.com/hitoshi/skinshowcase/internal/market"
	"github.com/hitoshi/skinshowcase/internal/metrics"
	"github.com/hitoshi/skinshowcase/internal/middleware"
	"github.com/hitoshi/skinshowcase/internal/repository"
	"github.com/hitoshi/skinshowcase/internal/security"
	"github.com/hitoshi/skinshowcase/internal/upstream"
	"github.com/hitoshi/skinshowcase/internal/user"
	"github.com/hitoshi/skinshowcase/internal/worker/cleanup"
)

const (
	// 表示名・アイテム名として保存する最大文字数
	maxNameRunes = 128
	// スクリーンショット画像の最大サイズ
	maxScreenshotBytes = 10 << 20
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってログ形式とレベルを切り替える
	logger.Configure(w, logger.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// buildRouter は設定とDB接続から全依存関係をワイヤリングし、HTTPハンドラーを返す。
// regにはメトリクスの登録先を渡す。
func buildRouter(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) http.Handler {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	listingRepo := repository.NewPostgresListingRepo(db)

	// 2. 上流クライアントとセキュリティ部品の初期化
	upstreamClient := upstream.NewHTTPClient(cfg.UpstreamTimeout, slog.Default())
	sanitizer := security.NewTextSanitizer(maxNameRunes)
	images := security.NewImageFetcher(security.NewSafeClient(cfg.UpstreamTimeout), maxScreenshotBytes)

	// 3. ドメインサービスの初期化
	steamProvider := auth.NewSteamOpenIDProvider(auth.SteamOpenIDConfig{
		APIKey:    cfg.SteamAPIKey,
		ReturnURL: cfg.SteamReturnURL(),
		Realm:     cfg.BaseURL,
		OpenIDURL: cfg.SteamOpenIDURL,
		APIURL:    cfg.SteamAPIURL,
	}, upstreamClient)
	authService := auth.NewService(
		steamProvider, userRepo, sessionRepo, sanitizer, collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	inventoryClient := inventory.NewClient(inventory.ClientConfig{
		BaseURL:   cfg.InventoryAPIURL,
		APIKey:    cfg.SteamWebAPIKey,
		AppID:     cfg.InventoryAppID,
		ContextID: cfg.InventoryContextID,
	}, upstreamClient)
	inventoryService := inventory.NewService(inventoryClient, collector)

	listingService := listing.NewService(listingRepo, sanitizer, collector)

	marketClient := market.NewClient(market.ClientConfig{
		BaseURL: cfg.SteamWebAPIURL,
		APIKey:  cfg.SteamWebAPIKey,
	}, upstreamClient, images)
	marketService := market.NewService(marketClient, market.ServiceConfig{
		FloatCacheSize: cfg.FloatCacheSize,
		CacheTTL:       cfg.MarketCacheTTL,
	}, collector)

	userService := user.NewService(userRepo, sessionRepo)

	// 4. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		// configはreq/min単位なのでreq/secに変換して渡す
		RateLimiter: middleware.NewRateLimiter(
			middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitListing),
		),
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.FrontendURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		InventoryService: inventoryService,
		ListingService:   listingService,
		MarketService:    marketService,
		UserService:      userService,
	}

	return handler.NewRouter(deps)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router := buildRouter(cfg, db, prometheus.NewRegistry())

	// 書き込みタイムアウトは上流タイムアウトより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションの定期削除を開始する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	// 起動直後に1回実行し、以降は一定間隔で実行する（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
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
		slog.Uint64("version", uint64(version)),
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
