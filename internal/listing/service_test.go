package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/repository"
	"github.com/hitoshi/skinshowcase/internal/security"
)

// memoryRepo はasset_idの一意制約と条件付き削除を再現するインメモリ実装。
type memoryRepo struct {
	mu        sync.Mutex
	byAsset   map[string]*model.ListedItem
	users     map[string]string // id -> username
	lastLimit int

	// findHook はFindByAssetIDの直後に呼ばれる（競合の再現用）。
	findHook func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byAsset: make(map[string]*model.ListedItem), users: make(map[string]string)}
}

func (r *memoryRepo) Create(_ context.Context, item *model.ListedItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAsset[item.AssetID]; exists {
		return fmt.Errorf("listing %s: %w", item.AssetID, repository.ErrDuplicate)
	}
	cp := *item
	r.byAsset[item.AssetID] = &cp
	return nil
}

func (r *memoryRepo) FindByAssetID(_ context.Context, assetID string) (*model.ListedItem, error) {
	r.mu.Lock()
	item, ok := r.byAsset[assetID]
	var cp *model.ListedItem
	if ok {
		c := *item
		cp = &c
	}
	hook := r.findHook
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return cp, nil
}

func (r *memoryRepo) DeleteOwned(_ context.Context, assetID, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.byAsset[assetID]
	if !ok || item.OwnerID != ownerID {
		return false, nil
	}
	delete(r.byAsset, assetID)
	return true, nil
}

func (r *memoryRepo) ListByOwner(_ context.Context, ownerID string) ([]*model.ListedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ListedItem
	for _, item := range r.byAsset {
		if item.OwnerID == ownerID {
			c := *item
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) ListAssetIDsByOwner(_ context.Context, ownerID string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make(map[string]struct{})
	for id, item := range r.byAsset {
		if item.OwnerID == ownerID {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

func (r *memoryRepo) ListAll(_ context.Context, limit int) ([]model.ListingWithOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	var out []model.ListingWithOwner
	for _, item := range r.byAsset {
		out = append(out, model.ListingWithOwner{ListedItem: *item, OwnerUsername: r.users[item.OwnerID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.byAsset)), nil
}

var _ repository.ListingRepository = (*memoryRepo)(nil)

func input(assetID string) CreateInput {
	return CreateInput{
		AssetID:     assetID,
		Name:        "Glock-18 | Fade",
		ImageURL:    "https://cdn.example.com/glock.png",
		RarityColor: "#4b69ff",
	}
}

func TestService_ListingLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.List(ctx, "U1", input("A1"))
	require.NoError(t, err)

	_, err = svc.List(ctx, "U2", input("A1"))
	assert.True(t, model.IsKind(err, model.ErrCodeConflict), "got %v", err)

	err = svc.Unlist(ctx, "U2", "A1")
	assert.True(t, model.IsKind(err, model.ErrCodeForbidden), "got %v", err)

	require.NoError(t, svc.Unlist(ctx, "U1", "A1"))

	item, err := svc.List(ctx, "U2", input("A1"))
	require.NoError(t, err)
	assert.Equal(t, "U2", item.OwnerID)
}

func TestService_List_SameOwnerTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.List(ctx, "U1", input("A1"))
	require.NoError(t, err)
	_, err = svc.List(ctx, "U1", input("A1"))
	assert.True(t, model.IsKind(err, model.ErrCodeConflict))
}

func TestService_List_ConcurrentSameAsset(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.List(ctx, fmt.Sprintf("U%d", i), input("HOT"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case model.IsKind(err, model.ErrCodeConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	n, _ := repo.Count(ctx)
	assert.EqualValues(t, 1, n)
}

func TestService_List_Validation(t *testing.T) {
	svc := NewService(newMemoryRepo(), security.NewTextSanitizer(128), nil)

	tests := []struct {
		name   string
		mutate func(in *CreateInput)
		field  string
	}{
		{"assetid空", func(in *CreateInput) { in.AssetID = "" }, "assetid"},
		{"name空白のみ", func(in *CreateInput) { in.Name = "   " }, "name"},
		{"nameがタグのみ", func(in *CreateInput) { in.Name = "<script></script>" }, "name"},
		{"image_url空", func(in *CreateInput) { in.ImageURL = "" }, "image_url"},
		{"rarity_color空", func(in *CreateInput) { in.RarityColor = "" }, "rarity_color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input("A1")
			tt.mutate(&in)
			_, err := svc.List(context.Background(), "U1", in)
			require.True(t, model.IsKind(err, model.ErrCodeValidation), "got %v", err)
			var apiErr *model.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Contains(t, apiErr.Message, tt.field)
		})
	}
}

func TestService_List_SanitizesName(t *testing.T) {
	svc := NewService(newMemoryRepo(), security.NewTextSanitizer(128), nil)

	item, err := svc.List(context.Background(), "U1", CreateInput{
		AssetID:     " A9 ",
		Name:        "<b>AK-47</b> | Redline",
		ImageURL:    "https://cdn.example.com/ak.png",
		RarityColor: "#d32ce6",
	})
	require.NoError(t, err)
	assert.Equal(t, "A9", item.AssetID)
	assert.Equal(t, "AK-47 | Redline", item.Name)
}

func TestService_Unlist_NotFound(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	err := svc.Unlist(context.Background(), "U1", "missing")
	assert.True(t, model.IsKind(err, model.ErrCodeNotFound))
}

func TestService_Unlist_NonOwnerLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.List(ctx, "U1", input("A1"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, model.IsKind(svc.Unlist(ctx, "U2", "A1"), model.ErrCodeForbidden))
	}

	item, _ := repo.FindByAssetID(ctx, "A1")
	require.NotNil(t, item)
	assert.Equal(t, "U1", item.OwnerID)
}

// 所有者確認の後、削除の前に別リクエストが取り下げた場合はNOT_FOUNDになる。
func TestService_Unlist_ConcurrentRemovalIsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.List(ctx, "U1", input("A1"))
	require.NoError(t, err)

	repo.findHook = func() {
		repo.findHook = nil
		_, _ = repo.DeleteOwned(ctx, "A1", "U1")
	}

	err = svc.Unlist(ctx, "U1", "A1")
	assert.True(t, model.IsKind(err, model.ErrCodeNotFound), "got %v", err)
}

func TestService_ListMine_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, asset := range []string{"old", "mid", "new"} {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		_, err := svc.List(ctx, "U1", input(asset))
		require.NoError(t, err)
	}
	_, err := svc.List(ctx, "U2", input("other"))
	require.NoError(t, err)

	items, err := svc.ListMine(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "new", items[0].AssetID)
	assert.Equal(t, "old", items[2].AssetID)

	ids, err := svc.ListedAssetIDs(ctx, "U1")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.NotContains(t, ids, "other")
}

func TestService_ListAll_LimitIsCapped(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	tests := []struct {
		in, want int
	}{
		{0, MaxListAll},
		{-5, MaxListAll},
		{10, 10},
		{MaxListAll + 1, MaxListAll},
	}
	for _, tt := range tests {
		_, err := svc.ListAll(context.Background(), tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, repo.lastLimit, "limit %d", tt.in)
	}
}

func TestService_CountAll_IgnoresListAllLimit(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for i := range 3 {
		_, err := svc.List(ctx, "owner-1", input(fmt.Sprintf("asset-%d", i)))
		require.NoError(t, err)
	}

	listed, err := svc.ListAll(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	n, err := svc.CountAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
