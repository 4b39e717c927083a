// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/repository"
)

// TradeURLPrefix はSteamトレードオファーURLの必須プレフィックス。
const TradeURLPrefix = "https://steamcommunity.com/tradeoffer/new/"

// Service はユーザー管理のサービス層。
// プロフィール取得、トレードURL更新、退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}
}

// GetProfile は指定ユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// ValidateTradeURL はトレードURLがSteamトレードオファーの形式かを検証する。
func ValidateTradeURL(raw string) error {
	if !strings.HasPrefix(raw, TradeURLPrefix) {
		return model.NewInvalidTradeURLError()
	}
	if _, err := url.Parse(raw); err != nil {
		return model.NewInvalidTradeURLError()
	}
	return nil
}

// UpdateTradeURL はユーザーのトレードURLを検証して保存し、更新後のユーザーを返す。
func (s *Service) UpdateTradeURL(ctx context.Context, userID, tradeURL string) (*model.User, error) {
	tradeURL = strings.TrimSpace(tradeURL)
	if err := ValidateTradeURL(tradeURL); err != nil {
		return nil, err
	}

	user, err := s.userRepo.UpdateTradeLink(ctx, userID, tradeURL)
	if err != nil {
		return nil, fmt.Errorf("トレードURLの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.InfoContext(ctx, "trade url updated", slog.String("user_id", userID))
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: listed_items）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return err
	}

	slog.InfoContext(ctx, "退会処理を開始します", slog.String("user_id", userID))

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "退会処理が完了しました", slog.String("user_id", userID))
	return nil
}
