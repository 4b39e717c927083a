// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/skinshowcase/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

type contextKey string

var userIDContextKey = contextKey("user_id")

// errNoUserID はセッションミドルウェアを通過していないコンテキストを示す。
var errNoUserID = errors.New("user ID not found in context")

// SessionFinder はセッションIDからログイン中のセッションを引く。
// 期限切れや不明なIDはnil, nilを返す。repository.SessionRepositoryが満たす。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はsession_id Cookieのセッションを検証し、
// SteamでログインしたユーザーのIDをコンテキストに載せる。
// Cookieがない、セッションが見つからない、期限を過ぎている場合は401を返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := sessionUserID(r, sessionFinder, time.Now())
			if !ok {
				WriteUnauthorized(w)
				return
			}

			noteUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// sessionUserID はリクエストのCookieから有効なセッションの所有者を返す。
// ExpiresAtがnow以前のセッションはストアが返しても無効とする。
func sessionUserID(r *http.Request, finder SessionFinder, now time.Time) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	session, err := finder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to find session",
			slog.String("trace_id", TraceIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	if session == nil || session.UserID == "" {
		return "", false
	}
	if !session.ExpiresAt.IsZero() && !now.Before(session.ExpiresAt) {
		return "", false
	}
	return session.UserID, true
}

// UserIDFromContext はセッションミドルウェアが載せたユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", errNoUserID
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを載せる。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
