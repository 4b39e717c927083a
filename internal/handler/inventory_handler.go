package handler

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/skinshowcase/internal/middleware"
	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/view"
)

// InventoryServiceInterface はインベントリの取得と正規化を行うサービス。
type InventoryServiceInterface interface {
	GetInventory(ctx context.Context, steamID string) ([]model.InventoryItem, error)
}

// ListedAssetFinder は出品中のアセットIDを返す。
type ListedAssetFinder interface {
	ListedAssetIDs(ctx context.Context, ownerID string) (map[string]struct{}, error)
}

// ProfileFinder はユーザーIDからプロフィールを引く。
type ProfileFinder interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
}

// InventoryHandler はインベントリ閲覧のHTTPハンドラー。
type InventoryHandler struct {
	inventory InventoryServiceInterface
	listings  ListedAssetFinder
	users     ProfileFinder
}

// NewInventoryHandler はInventoryHandlerを生成する。
func NewInventoryHandler(inventory InventoryServiceInterface, listings ListedAssetFinder, users ProfileFinder) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		listings:  listings,
		users:     users,
	}
}

// View はフィルタ・ソート済みのインベントリとファセットを返す。
// GET /api/inventory/cs2?search=&types=&rarities=&sort=&price_min=&price_max=
func (h *InventoryHandler) View(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	filter := view.ParseFilter(r.URL.Query())

	user, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	var (
		items  []model.InventoryItem
		listed map[string]struct{}
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		items, err = h.inventory.GetInventory(ctx, user.SteamID)
		return err
	})
	g.Go(func() error {
		var err error
		listed, err = h.listings.ListedAssetIDs(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view.Compose(items, filter, listed))
}

// Raw は正規化済みインベントリをそのまま返す。
// GET /api/inventory/cs2/raw
func (h *InventoryHandler) Raw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	items, err := h.inventory.GetInventory(r.Context(), user.SteamID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}

	writeJSON(w, http.StatusOK, items)
}
