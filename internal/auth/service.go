// Package auth はSteam OpenIDによるログイン、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hitoshi/skinshowcase/internal/metrics"
	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/repository"
)

// IdentityProvider は外部IdPによる本人確認のインターフェース。
type IdentityProvider interface {
	// GetLoginURL はIdPのログインURLを生成する。
	GetLoginURL(state string) string
	// Verify はコールバックパラメータを検証し、検証済みプロフィールを返す。
	Verify(ctx context.Context, params url.Values) (*model.ExternalProfile, error)
}

// NameSanitizer は表示名をプレーンテキストに整えるインターフェース。
type NameSanitizer interface {
	Clean(raw string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	idp         IdentityProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   NameSanitizer
	metrics     metrics.Recorder
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	idp IdentityProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer NameSanitizer,
	recorder metrics.Recorder,
	config ServiceConfig,
) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		idp:         idp,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		metrics:     recorder,
		config:      config,
	}
}

// GetLoginURL はSteamのログインURLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.idp.GetLoginURL(state)
}

// HandleCallback はSteamからのコールバックを検証し、セッションを発行する。
// ユーザーはSteamIDをキーにUPSERTされ、既存ユーザーは表示名とアバターのみ更新される。
func (s *Service) HandleCallback(ctx context.Context, params url.Values) (*model.Session, error) {
	profile, err := s.idp.Verify(ctx, params)
	if err != nil {
		if errors.Is(err, ErrInvalidAssertion) {
			s.metrics.RecordLogin("invalid")
			return nil, model.NewUnauthorizedError().WithCause(err)
		}
		s.metrics.RecordLogin("error")
		return nil, fmt.Errorf("failed to verify steam login: %w", err)
	}

	user, err := s.Login(ctx, profile)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, err
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.RecordLogin("success")
	return session, nil
}

// Login は検証済みプロフィールからユーザーを作成または更新する。
// 同じSubjectIDに対して何度呼んでもユーザーは1件のみ。
func (s *Service) Login(ctx context.Context, profile *model.ExternalProfile) (*model.User, error) {
	if profile == nil || profile.SubjectID == "" {
		return nil, model.NewValidationError("外部IDが空です", "subject_id")
	}

	name := profile.DisplayName
	if s.sanitizer != nil {
		name = s.sanitizer.Clean(name)
	}

	user, err := s.userRepo.UpsertBySteamID(ctx, profile.SubjectID, name, profile.AvatarURL())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	slog.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("steam_id", user.SteamID),
	)
	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.InfoContext(ctx, "user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
