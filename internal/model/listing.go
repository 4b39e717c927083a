package model

import "time"

// ListedItem はユーザーがショーケースに出品したインベントリアイテムを表す。
// AssetIDはストア全体で一意で、同じアセットを同時に出品できるのは1人だけ。
type ListedItem struct {
	ID          string
	AssetID     string
	OwnerID     string
	Name        string
	ImageURL    string
	RarityColor string
	CreatedAt   time.Time
}

// ListingWithOwner は出品と出品者の公開情報を結合した構造体。
// 公開一覧（トレーダーページ）で使用する。
type ListingWithOwner struct {
	ListedItem
	OwnerSteamID   string
	OwnerUsername  string
	OwnerAvatarURL string
	OwnerTradeLink string
}
