package handler

import (
	"context"
	"net/url"
	"time"

	"github.com/hitoshi/skinshowcase/internal/listing"
	"github.com/hitoshi/skinshowcase/internal/market"
	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/pricehistory"
	"github.com/hitoshi/skinshowcase/internal/security"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, params url.Values) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, params url.Values) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, params)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

type mockUserService struct {
	getProfileFn     func(ctx context.Context, userID string) (*model.User, error)
	updateTradeURLFn func(ctx context.Context, userID, tradeURL string) (*model.User, error)
	withdrawFn       func(ctx context.Context, userID string) error
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return &model.User{ID: userID, SteamID: "76561198000000001", Username: "tester"}, nil
}

func (m *mockUserService) UpdateTradeURL(ctx context.Context, userID, tradeURL string) (*model.User, error) {
	if m.updateTradeURLFn != nil {
		return m.updateTradeURLFn(ctx, userID, tradeURL)
	}
	return &model.User{ID: userID, TradeLink: tradeURL}, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockInventoryService struct {
	getInventoryFn func(ctx context.Context, steamID string) ([]model.InventoryItem, error)
}

func (m *mockInventoryService) GetInventory(ctx context.Context, steamID string) ([]model.InventoryItem, error) {
	if m.getInventoryFn != nil {
		return m.getInventoryFn(ctx, steamID)
	}
	return nil, nil
}

type mockListingService struct {
	listFn           func(ctx context.Context, ownerID string, in listing.CreateInput) (*model.ListedItem, error)
	unlistFn         func(ctx context.Context, requesterID, assetID string) error
	listMineFn       func(ctx context.Context, ownerID string) ([]*model.ListedItem, error)
	listAllFn        func(ctx context.Context, limit int) ([]model.ListingWithOwner, error)
	countAllFn       func(ctx context.Context) (int64, error)
	listedAssetIDsFn func(ctx context.Context, ownerID string) (map[string]struct{}, error)
}

func (m *mockListingService) List(ctx context.Context, ownerID string, in listing.CreateInput) (*model.ListedItem, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID, in)
	}
	return &model.ListedItem{ID: "listing-1", AssetID: in.AssetID, OwnerID: ownerID, Name: in.Name}, nil
}

func (m *mockListingService) Unlist(ctx context.Context, requesterID, assetID string) error {
	if m.unlistFn != nil {
		return m.unlistFn(ctx, requesterID, assetID)
	}
	return nil
}

func (m *mockListingService) ListMine(ctx context.Context, ownerID string) ([]*model.ListedItem, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockListingService) ListAll(ctx context.Context, limit int) ([]model.ListingWithOwner, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockListingService) CountAll(ctx context.Context) (int64, error) {
	if m.countAllFn != nil {
		return m.countAllFn(ctx)
	}
	return 0, nil
}

func (m *mockListingService) ListedAssetIDs(ctx context.Context, ownerID string) (map[string]struct{}, error) {
	if m.listedAssetIDsFn != nil {
		return m.listedAssetIDsFn(ctx, ownerID)
	}
	return map[string]struct{}{}, nil
}

type mockMarketService struct {
	inspectFn      func(ctx context.Context, inspectLink, name string) (*market.Inspection, error)
	priceHistoryFn func(ctx context.Context, name string, window pricehistory.Window) (*market.History, error)
	screenshotFn   func(ctx context.Context, inspectLink string, b market.Branding) (*security.RemoteImage, error)
}

func (m *mockMarketService) Inspect(ctx context.Context, inspectLink, name string) (*market.Inspection, error) {
	if m.inspectFn != nil {
		return m.inspectFn(ctx, inspectLink, name)
	}
	return &market.Inspection{}, nil
}

func (m *mockMarketService) PriceHistory(ctx context.Context, name string, window pricehistory.Window) (*market.History, error) {
	if m.priceHistoryFn != nil {
		return m.priceHistoryFn(ctx, name, window)
	}
	return &market.History{Name: name, Window: window, Points: []model.PricePoint{}}, nil
}

func (m *mockMarketService) Screenshot(ctx context.Context, inspectLink string, b market.Branding) (*security.RemoteImage, error) {
	if m.screenshotFn != nil {
		return m.screenshotFn(ctx, inspectLink, b)
	}
	return nil, model.NewResourceNotFoundError("スクリーンショット")
}

type mockSessionFinder struct {
	sessions map[string]string // sessionID -> userID
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	userID, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &model.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}
