// Package listing は出品（ショーケース）のライフサイクルを管理する。
//
// アセットごとの状態は「未出品」と「出品中」の2つだけで、
// 遷移はlist（未出品→出品中）とunlist（出品中→未出品）のみ。
// 同一アセットへの同時操作はストアの一意制約と条件付き削除で直列化する。
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/skinshowcase/internal/metrics"
	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/repository"
)

// MaxListAll は公開一覧で一度に返す最大件数。
const MaxListAll = 200

// CreateInput は出品作成の入力。
type CreateInput struct {
	AssetID     string
	Name        string
	ImageURL    string
	RarityColor string
}

// NameSanitizer はアイテム名をプレーンテキストに整えるインターフェース。
type NameSanitizer interface {
	Clean(raw string) string
}

// Service は出品のビジネスロジックを提供する。
type Service struct {
	repo      repository.ListingRepository
	sanitizer NameSanitizer
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.ListingRepository, sanitizer NameSanitizer, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   recorder,
		now:       time.Now,
	}
}

// List はアセットを出品する。
// 必須項目が空ならVALIDATION_ERROR、既に誰かが出品済みならCONFLICTを返し、状態は変更しない。
func (s *Service) List(ctx context.Context, ownerID string, in CreateInput) (*model.ListedItem, error) {
	in.AssetID = strings.TrimSpace(in.AssetID)
	in.Name = strings.TrimSpace(in.Name)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.RarityColor = strings.TrimSpace(in.RarityColor)
	if s.sanitizer != nil {
		in.Name = s.sanitizer.Clean(in.Name)
	}

	var missing []string
	if in.AssetID == "" {
		missing = append(missing, "assetid")
	}
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if in.ImageURL == "" {
		missing = append(missing, "image_url")
	}
	if in.RarityColor == "" {
		missing = append(missing, "rarity_color")
	}
	if len(missing) > 0 {
		return nil, model.NewValidationError("必須項目が入力されていません", missing...)
	}

	item := &model.ListedItem{
		ID:          uuid.New().String(),
		AssetID:     in.AssetID,
		OwnerID:     ownerID,
		Name:        in.Name,
		ImageURL:    in.ImageURL,
		RarityColor: in.RarityColor,
		CreatedAt:   s.now(),
	}

	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.metrics.RecordListingConflict()
			return nil, model.NewAlreadyListedError(in.AssetID).WithCause(err)
		}
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.metrics.RecordListingCreated()
	slog.InfoContext(ctx, "item listed",
		slog.String("user_id", ownerID),
		slog.String("asset_id", item.AssetID),
	)
	return item, nil
}

// Unlist は出品を取り下げる。
// 出品がなければNOT_FOUND、出品者が異なればFORBIDDENを返す。
// 所有者確認は削除より先に行い、削除自体もowner_id条件付きで実行する。
func (s *Service) Unlist(ctx context.Context, requesterID, assetID string) error {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return model.NewValidationError("アセットIDが指定されていません", "assetid")
	}

	existing, err := s.repo.FindByAssetID(ctx, assetID)
	if err != nil {
		return fmt.Errorf("failed to find listing: %w", err)
	}
	if existing == nil {
		return model.NewListingNotFoundError(assetID)
	}
	if existing.OwnerID != requesterID {
		slog.WarnContext(ctx, "unlist attempted by non-owner",
			slog.String("user_id", requesterID),
			slog.String("asset_id", assetID),
		)
		return model.NewNotOwnerError()
	}

	deleted, err := s.repo.DeleteOwned(ctx, assetID, requesterID)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if !deleted {
		// 確認と削除の間に取り下げられた
		return model.NewListingNotFoundError(assetID)
	}

	s.metrics.RecordListingRemoved()
	slog.InfoContext(ctx, "item unlisted",
		slog.String("user_id", requesterID),
		slog.String("asset_id", assetID),
	)
	return nil
}

// ListMine は指定ユーザーの出品を新しい順に返す。
func (s *Service) ListMine(ctx context.Context, ownerID string) ([]*model.ListedItem, error) {
	items, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list own listings: %w", err)
	}
	return items, nil
}

// CountAll は全ユーザーの出品総数を返す。ListAllの上限で切られる前の件数。
func (s *Service) CountAll(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return n, nil
}

// ListedAssetIDs は指定ユーザーが出品中のアセットIDの集合を返す。
func (s *Service) ListedAssetIDs(ctx context.Context, ownerID string) (map[string]struct{}, error) {
	ids, err := s.repo.ListAssetIDsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset ids: %w", err)
	}
	return ids, nil
}

// ListAll は全ユーザーの出品を新しい順に返す。
// limitが0以下なら上限なしとして扱い、いずれの場合もMaxListAll件で打ち切る。
func (s *Service) ListAll(ctx context.Context, limit int) ([]model.ListingWithOwner, error) {
	if limit <= 0 || limit > MaxListAll {
		limit = MaxListAll
	}
	items, err := s.repo.ListAll(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list all listings: %w", err)
	}
	return items, nil
}
