package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/skinshowcase/internal/listing"
	"github.com/hitoshi/skinshowcase/internal/middleware"
	"github.com/hitoshi/skinshowcase/internal/model"
)

// ListingServiceInterface は出品ハンドラーが必要とするサービスインターフェース。
type ListingServiceInterface interface {
	List(ctx context.Context, ownerID string, in listing.CreateInput) (*model.ListedItem, error)
	Unlist(ctx context.Context, requesterID, assetID string) error
	ListMine(ctx context.Context, ownerID string) ([]*model.ListedItem, error)
	ListAll(ctx context.Context, limit int) ([]model.ListingWithOwner, error)
	CountAll(ctx context.Context) (int64, error)
	ListedAssetIDs(ctx context.Context, ownerID string) (map[string]struct{}, error)
}

// TotalCountHeader は全体の出品総数を返すレスポンスヘッダー。
const TotalCountHeader = "X-Total-Count"

// ListingHandler はショーケース出品のHTTPハンドラー。
type ListingHandler struct {
	service ListingServiceInterface
}

// NewListingHandler はListingHandlerを生成する。
func NewListingHandler(service ListingServiceInterface) *ListingHandler {
	return &ListingHandler{service: service}
}

// Create はアイテムを出品する。
// POST /api/showcase
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createListingRequest
	if err := decodeRequest(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	item, err := h.service.List(r.Context(), userID, listing.CreateInput{
		AssetID:     req.AssetID,
		Name:        req.Name,
		ImageURL:    req.ImageURL,
		RarityColor: req.RarityColor,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListedItemResponse(item))
}

// Delete は出品を取り下げる。
// DELETE /api/showcase/{assetid}
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Unlist(r.Context(), userID, chi.URLParam(r, "assetid")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Mine はログインユーザーの出品を新しい順に返す。
// GET /api/showcase/mine
func (h *ListingHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	items, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := make([]listedItemResponse, len(items))
	for i, item := range items {
		resp[i] = toListedItemResponse(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// All は全ユーザーの出品を出品者情報付きで返す。認証不要。
// GET /api/showcase/all?limit=N
func (h *ListingHandler) All(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, r, model.NewValidationError("件数は整数で指定してください", "limit"))
			return
		}
		limit = n
	}

	listings, err := h.service.ListAll(r.Context(), limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	total, err := h.service.CountAll(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.Header().Set(TotalCountHeader, strconv.FormatInt(total, 10))

	resp := make([]publicListingResponse, len(listings))
	for i, l := range listings {
		resp[i] = toPublicListingResponse(l)
	}
	writeJSON(w, http.StatusOK, resp)
}
