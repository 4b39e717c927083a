package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/skinshowcase/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反エラーコード。
const uniqueViolation = "23505"

// PostgresListingRepo はPostgreSQLを使用した出品リポジトリ。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

// Create は出品を作成する。
// asset_idの一意性はDB制約で保証し、違反時はErrDuplicateを返す。
func (r *PostgresListingRepo) Create(ctx context.Context, item *model.ListedItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listed_items (id, asset_id, owner_id, name, image_url, rarity_color, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.AssetID, item.OwnerID, item.Name, item.ImageURL, item.RarityColor, item.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("listing %s: %w", item.AssetID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// FindByAssetID はasset_idで出品を取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByAssetID(ctx context.Context, assetID string) (*model.ListedItem, error) {
	item := &model.ListedItem{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, asset_id, owner_id, name, image_url, rarity_color, created_at
		 FROM listed_items WHERE asset_id = $1`,
		assetID,
	).Scan(&item.ID, &item.AssetID, &item.OwnerID, &item.Name, &item.ImageURL, &item.RarityColor, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	return item, nil
}

// DeleteOwned は所有者が一致する場合のみ出品を削除する。
func (r *PostgresListingRepo) DeleteOwned(ctx context.Context, assetID, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM listed_items WHERE asset_id = $1 AND owner_id = $2`,
		assetID, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete listing: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByOwner は指定ユーザーの出品をcreated_at降順で返す。
func (r *PostgresListingRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.ListedItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, asset_id, owner_id, name, image_url, rarity_color, created_at
		 FROM listed_items
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings by owner: %w", err)
	}
	defer rows.Close()

	items := []*model.ListedItem{}
	for rows.Next() {
		item := &model.ListedItem{}
		if err := rows.Scan(&item.ID, &item.AssetID, &item.OwnerID, &item.Name, &item.ImageURL, &item.RarityColor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}
	return items, nil
}

// ListAssetIDsByOwner は指定ユーザーが出品中のasset_idの集合を返す。
func (r *PostgresListingRepo) ListAssetIDsByOwner(ctx context.Context, ownerID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT asset_id FROM listed_items WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan asset id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate asset ids: %w", err)
	}
	return ids, nil
}

// ListAll は全ユーザーの出品を出品者情報付きで返す。
func (r *PostgresListingRepo) ListAll(ctx context.Context, limit int) ([]model.ListingWithOwner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT li.id, li.asset_id, li.owner_id, li.name, li.image_url, li.rarity_color, li.created_at,
		        u.steam_id, u.username, u.avatar_url, COALESCE(u.trade_link, '')
		 FROM listed_items li
		 INNER JOIN users u ON u.id = li.owner_id
		 ORDER BY li.created_at DESC, li.id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all listings: %w", err)
	}
	defer rows.Close()

	results := []model.ListingWithOwner{}
	for rows.Next() {
		var l model.ListingWithOwner
		if err := rows.Scan(
			&l.ID, &l.AssetID, &l.OwnerID, &l.Name, &l.ImageURL, &l.RarityColor, &l.CreatedAt,
			&l.OwnerSteamID, &l.OwnerUsername, &l.OwnerAvatarURL, &l.OwnerTradeLink,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		results = append(results, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}
	return results, nil
}

// Count は出品総数を返す。
func (r *PostgresListingRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM listed_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ListingRepository = (*PostgresListingRepo)(nil)
