package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/skinshowcase/internal/market"
	"github.com/hitoshi/skinshowcase/internal/middleware"
	"github.com/hitoshi/skinshowcase/internal/pricehistory"
	"github.com/hitoshi/skinshowcase/internal/security"
)

// MarketServiceInterface は相場ハンドラーが必要とするサービスインターフェース。
type MarketServiceInterface interface {
	Inspect(ctx context.Context, inspectLink, name string) (*market.Inspection, error)
	PriceHistory(ctx context.Context, name string, window pricehistory.Window) (*market.History, error)
	Screenshot(ctx context.Context, inspectLink string, b market.Branding) (*security.RemoteImage, error)
}

// MarketHandler は相場・インスペクト情報のHTTPハンドラー。
type MarketHandler struct {
	service MarketServiceInterface
}

// NewMarketHandler はMarketHandlerを生成する。
func NewMarketHandler(service MarketServiceInterface) *MarketHandler {
	return &MarketHandler{service: service}
}

// Inspect はフロート値と相場をまとめて返す。
// GET /api/market/inspect?link=&name=
func (h *MarketHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	inspection, err := h.service.Inspect(r.Context(), q.Get("link"), q.Get("name"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inspection)
}

// History は表示期間に合わせて間引いた価格履歴を返す。
// GET /api/market/history?name=&window=7d
func (h *MarketHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := pricehistory.ParseWindow(q.Get("window"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	history, err := h.service.PriceHistory(r.Context(), q.Get("name"), window)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Screenshot はスクリーンショット画像をストリーミングで返す。
// GET /api/market/screenshot?link=&theme=&logo_position=&logo_opacity=&logo_size=
func (h *MarketHandler) Screenshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	img, err := h.service.Screenshot(r.Context(), q.Get("link"), market.Branding{
		Theme:        q.Get("theme"),
		LogoPosition: q.Get("logo_position"),
		LogoOpacity:  q.Get("logo_opacity"),
		LogoSize:     q.Get("logo_size"),
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	defer img.Body.Close()

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, img.Body); err != nil {
		// ヘッダー送信後なのでログのみ
		slog.WarnContext(r.Context(), "screenshot stream interrupted",
			slog.String("trace_id", middleware.TraceIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}
