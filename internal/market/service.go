package market

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/skinshowcase/internal/metrics"
	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/pricehistory"
	"github.com/hitoshi/skinshowcase/internal/security"
	"github.com/hitoshi/skinshowcase/internal/upstream"
)

// DataSource は相場データの取得元。Clientが満たす。
type DataSource interface {
	FetchFloat(ctx context.Context, inspectLink string) (*model.FloatInfo, error)
	FetchItem(ctx context.Context, name string) (*ItemData, error)
	FetchPriceHistory(ctx context.Context, name string) ([]model.PricePoint, error)
	Screenshot(ctx context.Context, inspectLink string, b Branding) (*security.RemoteImage, error)
}

// ServiceConfig はキャッシュの設定。
type ServiceConfig struct {
	FloatCacheSize int
	CacheTTL       time.Duration
}

// Inspection はインスペクト画面に表示する情報。
// Chartは直近の取引を古い順に並べたもの。
type Inspection struct {
	Float    *model.FloatInfo   `json:"float"`
	Market   *ItemData          `json:"market"`
	ImageURL string             `json:"image_url"`
	Chart    []model.PricePoint `json:"chart"`
}

// History はチャート用に間引いた価格履歴。
type History struct {
	Name   string              `json:"name"`
	Window pricehistory.Window `json:"window"`
	Points []model.PricePoint  `json:"points"`
}

// Service はキャッシュ付きで相場データを提供する。
type Service struct {
	source  DataSource
	floats  *expirable.LRU[string, *model.FloatInfo]
	items   *cache.Cache
	metrics metrics.Recorder
}

// NewService はServiceを生成する。
// フロート値はインスペクトリンクをキーにLRUで、相場と価格履歴はアイテム名をキーにTTLで保持する。
func NewService(source DataSource, cfg ServiceConfig, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if cfg.FloatCacheSize <= 0 {
		cfg.FloatCacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Service{
		source:  source,
		floats:  expirable.NewLRU[string, *model.FloatInfo](cfg.FloatCacheSize, nil, cfg.CacheTTL),
		items:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		metrics: recorder,
	}
}

// Inspect はフロート値と相場情報を並行して取得する。
// 片方だけ失敗した場合は取得できた側だけを返し、両方失敗した場合はフロート値側のエラーを返す。
func (s *Service) Inspect(ctx context.Context, inspectLink, name string) (*Inspection, error) {
	inspectLink = strings.TrimSpace(inspectLink)
	name = strings.TrimSpace(name)
	if inspectLink == "" && name == "" {
		return nil, model.NewValidationError("インスペクトリンクかアイテム名を指定してください", "link", "name")
	}

	var (
		floatInfo         *model.FloatInfo
		item              *ItemData
		floatErr, itemErr error
		g                 errgroup.Group
	)
	if inspectLink != "" {
		g.Go(func() error {
			floatInfo, floatErr = s.Float(ctx, inspectLink)
			return nil
		})
	}
	if name != "" {
		g.Go(func() error {
			item, itemErr = s.Item(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	if floatInfo == nil && item == nil {
		if floatErr != nil {
			return nil, floatErr
		}
		return nil, itemErr
	}
	for _, err := range []error{floatErr, itemErr} {
		if err != nil {
			slog.WarnContext(ctx, "inspect partially failed",
				slog.String("kind", model.Kind(err)),
				slog.String("error", err.Error()),
			)
		}
	}

	result := &Inspection{Float: floatInfo, Market: item, Chart: []model.PricePoint{}}
	switch {
	case floatInfo != nil && floatInfo.ScreenshotURL != "":
		result.ImageURL = floatInfo.ScreenshotURL
	case item != nil:
		result.ImageURL = item.Image
	}
	if item != nil {
		result.Chart = pricehistory.Aggregate(item.LatestSales, pricehistory.Window24h)
	}
	return result, nil
}

// Float はフロート値を取得する。
func (s *Service) Float(ctx context.Context, inspectLink string) (*model.FloatInfo, error) {
	if info, ok := s.floats.Get(inspectLink); ok {
		return info, nil
	}
	info, err := observe(s, "float", func() (*model.FloatInfo, error) {
		return s.source.FetchFloat(ctx, inspectLink)
	})
	if err != nil {
		return nil, err
	}
	s.floats.Add(inspectLink, info)
	return info, nil
}

// Item は相場情報を取得する。
func (s *Service) Item(ctx context.Context, name string) (*ItemData, error) {
	key := "item:" + name
	if v, ok := s.items.Get(key); ok {
		return v.(*ItemData), nil
	}
	item, err := observe(s, "item", func() (*ItemData, error) {
		return s.source.FetchItem(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	s.items.SetDefault(key, item)
	return item, nil
}

// PriceHistory は価格履歴を取得し、期間に応じて間引いて返す。データがない場合は空のPointsを返す。
func (s *Service) PriceHistory(ctx context.Context, name string, window pricehistory.Window) (*History, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("アイテム名を指定してください", "name")
	}

	key := "history:" + name
	var samples []model.PricePoint
	if v, ok := s.items.Get(key); ok {
		samples = v.([]model.PricePoint)
	} else {
		fetched, err := observe(s, "history", func() ([]model.PricePoint, error) {
			return s.source.FetchPriceHistory(ctx, name)
		})
		if err != nil {
			return nil, err
		}
		samples = fetched
		s.items.SetDefault(key, samples)
	}

	return &History{
		Name:   name,
		Window: window,
		Points: pricehistory.Aggregate(samples, window),
	}, nil
}

// Screenshot はスクリーンショット画像を取得する。キャッシュしない。
func (s *Service) Screenshot(ctx context.Context, inspectLink string, b Branding) (*security.RemoteImage, error) {
	inspectLink = strings.TrimSpace(inspectLink)
	if inspectLink == "" {
		return nil, model.NewValidationError("インスペクトリンクを指定してください", "link")
	}
	return observe(s, "screenshot", func() (*security.RemoteImage, error) {
		return s.source.Screenshot(ctx, inspectLink, b)
	})
}

// observe は上流呼び出しの結果と所要時間をメトリクスに記録する。
func observe[T any](s *Service, source string, call func() (T, error)) (T, error) {
	start := time.Now()
	v, err := call()
	s.metrics.RecordUpstream(source, upstream.Outcome(err), time.Since(start))
	return v, err
}
