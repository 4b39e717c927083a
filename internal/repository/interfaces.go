// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/skinshowcase/internal/model"
)

// ErrDuplicate は一意制約違反で書き込みが拒否されたことを示す。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// UpsertBySteamID はSteamIDをキーにユーザーを作成または更新する。
	// 既存ユーザーの場合はユーザー名とアバターのみ更新し、残高とトレードURLは維持する。
	UpsertBySteamID(ctx context.Context, steamID, username, avatarURL string) (*model.User, error)

	// UpdateTradeLink はユーザーのトレードURLを更新し、更新後のユーザーを返す。
	// ユーザーが存在しない場合はnilを返す。
	UpdateTradeLink(ctx context.Context, id, tradeLink string) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。セッションと出品はCASCADEで削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ListingRepository は出品データの永続化インターフェース。
type ListingRepository interface {
	// Create は出品を作成する。asset_idが既に出品済みの場合はErrDuplicateを返す。
	Create(ctx context.Context, item *model.ListedItem) error

	// FindByAssetID はasset_idで出品を取得する。見つからない場合はnilを返す。
	FindByAssetID(ctx context.Context, assetID string) (*model.ListedItem, error)

	// DeleteOwned はasset_idとowner_idが両方一致する出品を削除する。
	// 削除した場合はtrue、該当行がなかった場合はfalseを返す。
	DeleteOwned(ctx context.Context, assetID, ownerID string) (bool, error)

	// ListByOwner は指定ユーザーの出品をcreated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.ListedItem, error)

	// ListAssetIDsByOwner は指定ユーザーが出品中のasset_idの集合を返す。
	ListAssetIDsByOwner(ctx context.Context, ownerID string) (map[string]struct{}, error)

	// ListAll は全ユーザーの出品を出品者情報付きでcreated_at降順に最大limit件返す。
	ListAll(ctx context.Context, limit int) ([]model.ListingWithOwner, error)

	// Count は全ユーザーの出品総数を返す。
	Count(ctx context.Context) (int64, error)
}
