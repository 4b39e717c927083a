// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/skinshowcase/internal/middleware"
	"github.com/hitoshi/skinshowcase/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// requireUserID はセッションミドルウェアが注入したユーザーIDを取り出す。
// 取得できない場合は401を書き込んでfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return "", false
	}
	return userID, true
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string    `json:"id"`
	SteamID   string    `json:"steam_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Balance   int64     `json:"balance"`
	TradeLink *string   `json:"trade_link"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		SteamID:   u.SteamID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt,
	}
	if u.TradeLink != "" {
		link := u.TradeLink
		resp.TradeLink = &link
	}
	return resp
}

// listedItemResponse は出品のAPIレスポンス。
type listedItemResponse struct {
	ID          string    `json:"id"`
	AssetID     string    `json:"assetid"`
	Name        string    `json:"name"`
	ImageURL    string    `json:"image_url"`
	RarityColor string    `json:"rarity_color"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func toListedItemResponse(item *model.ListedItem) listedItemResponse {
	return listedItemResponse{
		ID:          item.ID,
		AssetID:     item.AssetID,
		Name:        item.Name,
		ImageURL:    item.ImageURL,
		RarityColor: item.RarityColor,
		OwnerID:     item.OwnerID,
		CreatedAt:   item.CreatedAt,
	}
}

// ownerResponse は公開一覧に含める出品者情報。
type ownerResponse struct {
	SteamID   string `json:"steam_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	TradeLink string `json:"trade_link,omitempty"`
}

// publicListingResponse は公開一覧の1件。
type publicListingResponse struct {
	listedItemResponse
	Owner ownerResponse `json:"owner"`
}

func toPublicListingResponse(l model.ListingWithOwner) publicListingResponse {
	return publicListingResponse{
		listedItemResponse: toListedItemResponse(&l.ListedItem),
		Owner: ownerResponse{
			SteamID:   l.OwnerSteamID,
			Username:  l.OwnerUsername,
			AvatarURL: l.OwnerAvatarURL,
			TradeLink: l.OwnerTradeLink,
		},
	}
}
