package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/skinshowcase/internal/metrics"
	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/upstream"
)

// Fetcher はインベントリの生レスポンスを取得するインターフェース。
type Fetcher interface {
	Fetch(ctx context.Context, steamID string) ([]byte, error)
}

// Service はインベントリの取得と正規化を行う。
type Service struct {
	fetcher Fetcher
	metrics metrics.Recorder
}

// NewService はServiceを生成する。
func NewService(fetcher Fetcher, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{fetcher: fetcher, metrics: recorder}
}

// GetInventory は指定ユーザーのインベントリを取得し、正規化して返す。
func (s *Service) GetInventory(ctx context.Context, steamID string) ([]model.InventoryItem, error) {
	start := time.Now()

	raw, err := s.fetcher.Fetch(ctx, steamID)
	if err != nil {
		s.metrics.RecordUpstream("inventory", upstream.Outcome(err), time.Since(start))
		slog.WarnContext(ctx, "inventory fetch failed",
			slog.String("steam_id", steamID),
			slog.String("kind", model.Kind(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	items, err := Normalize(raw, steamID)
	if err != nil {
		s.metrics.RecordUpstream("inventory", metrics.OutcomeError, time.Since(start))
		return nil, err
	}

	s.metrics.RecordUpstream("inventory", metrics.OutcomeSuccess, time.Since(start))
	return items, nil
}
