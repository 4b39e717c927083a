// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Steam認証
	SteamAPIKey    string `env:"STEAM_API_KEY,required,notEmpty"`
	SteamAPIURL    string `env:"STEAM_API_URL" envDefault:"https://api.steampowered.com"`
	SteamOpenIDURL string `env:"STEAM_OPENID_URL" envDefault:"https://steamcommunity.com/openid/login"`

	// 外部データソース
	SteamWebAPIKey     string        `env:"STEAMWEBAPI_KEY,required,notEmpty"`
	SteamWebAPIURL     string        `env:"STEAMWEBAPI_URL" envDefault:"https://www.steamwebapi.com/steam/api"`
	InventoryAPIURL    string        `env:"INVENTORY_API_URL" envDefault:"https://www.steamwebapi.com/steam/api/inventory"`
	InventoryAppID     int           `env:"INVENTORY_APP_ID" envDefault:"730"`
	InventoryContextID int           `env:"INVENTORY_CONTEXT_ID" envDefault:"2"`
	UpstreamTimeout    time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`

	// Cache
	FloatCacheSize int           `env:"FLOAT_CACHE_SIZE" envDefault:"1024"`
	MarketCacheTTL time.Duration `env:"MARKET_CACHE_TTL" envDefault:"10m"`

	// Session
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Rate Limit（req/min/user）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitListing int `env:"RATE_LIMIT_LISTING" envDefault:"20"`

	// Logging
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL     string `env:"BASE_URL,required,notEmpty"`
	FrontendURL string `env:"FRONTEND_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("required environment variables are not set: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive: %d", cfg.SessionMaxAge)
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, fmt.Errorf("UPSTREAM_TIMEOUT must be positive: %s", cfg.UpstreamTimeout)
	}

	return cfg, nil
}

// SteamReturnURL はSteam OpenIDのreturn_toに指定するURLを返す。
func (c *Config) SteamReturnURL() string {
	return c.BaseURL + "/api/auth/steam/return"
}
