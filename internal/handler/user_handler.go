package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/skinshowcase/internal/middleware"
	"github.com/hitoshi/skinshowcase/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	UpdateTradeURL(ctx context.Context, userID, tradeURL string) (*model.User, error)
	// Withdraw はセッションとユーザーを削除する。出品は外部キーのカスケードで消える。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookies AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
// cookiesは退会時にセッションCookieを消すために使う。
func NewUserHandler(service UserServiceInterface, cookies AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookies: cookies,
	}
}

// Profile はログインユーザーのプロフィールを返す。
// GET /api/user/me
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// tradeURLResponse はトレードURL更新のレスポンス。
type tradeURLResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// UpdateTradeURL はトレードURLを保存する。
// PATCH /api/user/trade-url
func (h *UserHandler) UpdateTradeURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateTradeURLRequest
	if err := decodeRequest(w, r, &req); err != nil {
		if hasInvalidField(err, "trade_link") {
			err = model.NewInvalidTradeURLError().WithCause(err)
		}
		middleware.WriteError(w, r, err)
		return
	}

	user, err := h.service.UpdateTradeURL(r.Context(), userID, req.TradeLink)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tradeURLResponse{
		Message: "トレードURLを保存しました。",
		User:    toUserResponse(user),
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/user/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
