package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/hitoshi/skinshowcase/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate  rate.Limit    // API全般のレート（req/sec）
	GeneralBurst int           // API全般のバーストサイズ
	ListingRate  rate.Limit    // 出品作成のレート（req/sec）
	ListingBurst int           // 出品作成のバーストサイズ
	IdleTTL      time.Duration // 未使用のリミッターを破棄するまでの時間
	MaxUsers     int           // 保持するユーザー別リミッターの上限
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、出品作成 20 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinuteRateLimiterConfig(120, 20)
}

// PerMinuteRateLimiterConfig は1分あたりの回数からレート制限設定を生成する。
// バーストサイズは1分あたりの回数と同じにする。
func PerMinuteRateLimiterConfig(generalPerMin, listingPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:  rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst: generalPerMin,
		ListingRate:  rate.Limit(float64(listingPerMin) / 60.0),
		ListingBurst: listingPerMin,
		IdleTTL:      10 * time.Minute,
		MaxUsers:     10000,
	}
}

// limiterPool はユーザーIDごとのトークンバケットを保持する。
// 一定時間アクセスのないユーザーのバケットは期限切れで破棄される。
type limiterPool struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newLimiterPool(name string, limit rate.Limit, burst int, maxUsers int, ttl time.Duration) *limiterPool {
	return &limiterPool{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxUsers, nil, ttl),
	}
}

// get はユーザーのリミッターを取得し、なければ作成する。
func (p *limiterPool) get(userID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters.Get(userID); ok {
		return l
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.limiters.Add(userID, l)
	return l
}

// middleware はこのプールでユーザー別にレート制限するミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (p *limiterPool) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteUnauthorized(w)
				return
			}

			if !p.get(userID).Allow() {
				slog.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", p.name),
				)
				writeRateLimitResponse(w, p.limit)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般と出品作成の2種類を独立に提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterPool
	listing *limiterPool
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.MaxUsers <= 0 {
		config.MaxUsers = 10000
	}
	return &RateLimiter{
		config:  config,
		general: newLimiterPool("general", config.GeneralRate, config.GeneralBurst, config.MaxUsers, config.IdleTTL),
		listing: newLimiterPool("listing", config.ListingRate, config.ListingBurst, config.MaxUsers, config.IdleTTL),
	}
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// ListingMiddleware は出品作成専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) ListingMiddleware() func(next http.Handler) http.Handler {
	return rl.listing.middleware()
}

// GeneralLimiterCount は現在保持しているAPI全般リミッターの数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.limiters.Len()
}

// ListingLimiterCount は現在保持している出品作成リミッターの数を返す。
func (rl *RateLimiter) ListingLimiterCount() int {
	return rl.listing.limiters.Len()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(int(math.Ceil(1.0/float64(r))), 1)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewTooManyRequestsError())
}
