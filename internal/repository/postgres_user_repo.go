package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/skinshowcase/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, steam_id, username, avatar_url, balance, COALESCE(trade_link, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.SteamID, &user.Username, &user.AvatarURL,
		&user.Balance, &user.TradeLink, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// UpsertBySteamID はSteamIDをキーにユーザーを作成または更新する。
// 同時ログインでも単一文で解決されるため、同じSteamIDのユーザーが2件作られることはない。
func (r *PostgresUserRepo) UpsertBySteamID(ctx context.Context, steamID, username, avatarURL string) (*model.User, error) {
	now := time.Now()
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, steam_id, username, avatar_url, balance, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $5)
		 ON CONFLICT (steam_id) DO UPDATE
		 SET username = EXCLUDED.username,
		     avatar_url = EXCLUDED.avatar_url,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		uuid.New().String(), steamID, username, avatarURL, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// UpdateTradeLink はユーザーのトレードURLを更新する。
func (r *PostgresUserRepo) UpdateTradeLink(ctx context.Context, id, tradeLink string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET trade_link = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, tradeLink,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update trade link: %w", err)
	}
	return user, nil
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
