package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/skinshowcase/internal/metrics"
	"github.com/hitoshi/skinshowcase/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.Recorder
	MetricsHandler    http.Handler
	HealthChecker     Pinger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	InventoryService InventoryServiceInterface
	ListingService   ListingServiceInterface
	MarketService    MarketServiceInterface
	UserService      UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → TraceID → Logging → Metrics → SecurityHeaders → CORS
//
// 認証が必要なルートはさらに Session → RateLimit(General) → CSRF を通る。
// 出品作成のみRateLimit(Listing)を追加する。
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
	r.Use(middleware.NewTraceIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	inventoryHandler := NewInventoryHandler(deps.InventoryService, deps.ListingService, deps.UserService)
	listingHandler := NewListingHandler(deps.ListingService)
	marketHandler := NewMarketHandler(deps.MarketService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	// --- 認証不要のルート ---

	if deps.HealthChecker != nil {
		r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// Steamログイン
	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/steam", authHandler.Login)
		r.Get("/steam/return", authHandler.Callback)
		r.Get("/me", authHandler.Me)
		r.Get("/logout", authHandler.Logout)
		r.Post("/logout", authHandler.Logout)
	})

	r.Get("/api/showcase/all", listingHandler.All)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/api/inventory/cs2", inventoryHandler.View)
		r.Get("/api/inventory/cs2/raw", inventoryHandler.Raw)

		// POST /api/showcase - 出品作成（出品専用レート制限を追加）
		r.With(deps.RateLimiter.ListingMiddleware()).Post("/api/showcase", listingHandler.Create)
		r.Get("/api/showcase/mine", listingHandler.Mine)
		r.Delete("/api/showcase/{assetid}", listingHandler.Delete)

		// 相場API（サーバーのAPIキーで上流を呼ぶ）
		r.Get("/api/market/inspect", marketHandler.Inspect)
		r.Get("/api/market/history", marketHandler.History)
		r.Get("/api/market/screenshot", marketHandler.Screenshot)

		r.Route("/api/user", func(r chi.Router) {
			r.Get("/me", userHandler.Profile)
			r.Delete("/me", userHandler.Withdraw)
			r.Patch("/trade-url", userHandler.UpdateTradeURL)
		})
	})

	return r
}
