// Package market はsteamwebapiからフロート値・相場・価格履歴・スクリーンショットを取得する。
package market

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/pricehistory"
	"github.com/hitoshi/skinshowcase/internal/security"
	"github.com/hitoshi/skinshowcase/internal/upstream"
)

var json = jsoniter.Config{
	EscapeHTML:             true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// 上流名。ユーザー向けメッセージとメトリクスのラベルに使う。
const (
	floatSource      = "フロート値API"
	itemSource       = "相場API"
	historySource    = "価格履歴API"
	screenshotSource = "スクリーンショットAPI"
)

// Branding はスクリーンショットに重ねるロゴと配色の指定。空の項目は上流の既定値を使う。
type Branding struct {
	Theme        string
	LogoPosition string
	LogoOpacity  string
	LogoSize     string
}

// ItemData はアイテム名で引いた相場情報。
type ItemData struct {
	ID             string             `json:"id,omitempty"`
	MarketHashName string             `json:"markethashname"`
	Image          string             `json:"image,omitempty"`
	PriceLatest    *float64           `json:"pricelatest,omitempty"`
	PriceReal      *float64           `json:"pricereal,omitempty"`
	PriceAvg       *float64           `json:"priceavg,omitempty"`
	PriceMedian    *float64           `json:"pricemedian,omitempty"`
	LatestSales    []model.PricePoint `json:"latest_sales"`
}

// ImageSource は上流が返した画像URLを取得する。security.ImageFetcherが満たす。
type ImageSource interface {
	Fetch(ctx context.Context, rawURL string) (*security.RemoteImage, error)
}

// ClientConfig はsteamwebapiクライアントの設定。
type ClientConfig struct {
	BaseURL string
	APIKey  string
}

// Client はsteamwebapiのHTTPクライアント。
type Client struct {
	config ClientConfig
	http   *http.Client
	images ImageSource
}

// NewClient はClientを生成する。
// httpClientにはタイムアウト設定済みのクライアント、imagesにはSSRF対策済みの取得器を渡す。
func NewClient(config ClientConfig, httpClient *http.Client, images ImageSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{config: config, http: httpClient, images: images}
}

func (c *Client) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("key", c.config.APIKey)
	return c.config.BaseURL + path + "?" + q.Encode()
}

func (c *Client) getJSON(ctx context.Context, source, path string, q url.Values) ([]byte, error) {
	body, _, err := upstream.Get(ctx, c.http, source, c.endpoint(path, q), http.Header{
		"Accept": {"application/json"},
	})
	return body, err
}

// FetchFloat はインスペクトリンクからフロート値とステッカー情報を取得する。
func (c *Client) FetchFloat(ctx context.Context, inspectLink string) (*model.FloatInfo, error) {
	body, err := c.getJSON(ctx, floatSource, "/float", url.Values{"url": {inspectLink}})
	if err != nil {
		return nil, err
	}

	var resp struct {
		ItemInfo *floatPayload `json:"iteminfo"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewUpstreamUnavailableError(floatSource).
			WithCause(fmt.Errorf("failed to decode float response: %w", err))
	}
	if resp.ItemInfo == nil {
		return nil, model.NewResourceNotFoundError("フロート値")
	}
	return resp.ItemInfo.toModel(), nil
}

// floatPayload はiteminfoのデコード用。数値は文字列で返ることがある。
type floatPayload struct {
	FloatValue    lenientNumber `json:"floatvalue"`
	PaintSeed     lenientNumber `json:"paintseed"`
	PaintIndex    lenientNumber `json:"paintindex"`
	Phase         string        `json:"phase"`
	ScreenshotURL string        `json:"screenshot_url"`
	Stickers      []struct {
		Slot  lenientNumber `json:"slot"`
		Name  string        `json:"name"`
		Image string        `json:"image"`
	} `json:"stickers"`
}

func (p *floatPayload) toModel() *model.FloatInfo {
	info := &model.FloatInfo{
		FloatValue:    float64(p.FloatValue),
		PaintSeed:     int(p.PaintSeed),
		PaintIndex:    int(p.PaintIndex),
		Phase:         p.Phase,
		ScreenshotURL: p.ScreenshotURL,
		Stickers:      make([]model.Sticker, 0, len(p.Stickers)),
	}
	for _, s := range p.Stickers {
		info.Stickers = append(info.Stickers, model.Sticker{Slot: int(s.Slot), Name: s.Name, Image: s.Image})
	}
	return info
}

// lenientNumber は数値と数値文字列の両方を受け付ける。解釈できない値は0になる。
type lenientNumber float64

func (n *lenientNumber) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f, _ := pricehistory.ParsePrice(v)
	*n = lenientNumber(f)
	return nil
}

// FetchItem はマーケット名で相場情報を取得する。
// 上流は単一オブジェクトか配列を返すため、配列の場合は先頭を使う。
func (c *Client) FetchItem(ctx context.Context, name string) (*ItemData, error) {
	body, err := c.getJSON(ctx, itemSource, "/item", url.Values{"market_hash_name": {name}})
	if err != nil {
		return nil, err
	}

	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, model.NewUpstreamUnavailableError(itemSource).
			WithCause(fmt.Errorf("failed to decode item response: %w", err))
	}
	if list, ok := root.([]any); ok {
		root = nil
		if len(list) > 0 {
			root = list[0]
		}
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, model.NewResourceNotFoundError("相場情報")
	}

	item := &ItemData{
		ID:             stringField(obj, "id"),
		MarketHashName: firstNonEmpty(stringField(obj, "markethashname"), stringField(obj, "market_hash_name"), name),
		Image:          stringField(obj, "image"),
		PriceLatest:    numberField(obj, "pricelatest"),
		PriceReal:      numberField(obj, "pricereal"),
		PriceAvg:       numberField(obj, "priceavg"),
		PriceMedian:    numberField(obj, "pricemedian"),
	}
	if item.ID == "" && item.PriceLatest == nil {
		return nil, model.NewResourceNotFoundError("相場情報")
	}
	sales, _ := obj["latest10steamsales"].([]any)
	item.LatestSales = pricehistory.SamplesFrom(sales)
	return item, nil
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func numberField(obj map[string]any, key string) *float64 {
	f, ok := pricehistory.ParsePrice(obj[key])
	if !ok {
		return nil
	}
	return &f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// FetchPriceHistory はマーケット名で価格履歴サンプルを取得する。データがない場合は空を返す。
func (c *Client) FetchPriceHistory(ctx context.Context, name string) ([]model.PricePoint, error) {
	body, err := c.getJSON(ctx, historySource, "/history", url.Values{"market_hash_name": {name}})
	if err != nil {
		return nil, err
	}
	return pricehistory.ParseSamples(body)
}

// Screenshot はインスペクトリンクのスクリーンショットを取得する。
// 上流が画像を直接返す場合はそのまま、JSONでscreenshot_urlを返す場合はそのURLを
// SSRF対策済みのクライアントで取得する。呼び出し側はBodyを必ずCloseすること。
func (c *Client) Screenshot(ctx context.Context, inspectLink string, b Branding) (*security.RemoteImage, error) {
	q := url.Values{"url": {inspectLink}}
	for k, v := range map[string]string{
		"theme":         b.Theme,
		"logo_position": b.LogoPosition,
		"logo_opacity":  b.LogoOpacity,
		"logo_size":     b.LogoSize,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/screenshot", q), nil)
	if err != nil {
		return nil, model.NewUpstreamUnavailableError(screenshotSource).WithCause(err)
	}
	req.Header.Set("Accept", "image/*, application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, upstream.WrapTransportError(screenshotSource, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, model.NewResourceNotFoundError("スクリーンショット")
	}
	if err := upstream.ErrorForStatus(screenshotSource, resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "image/") {
		return &security.RemoteImage{Body: resp.Body, ContentType: mediaType}, nil
	}

	body, err := upstream.ReadBody(screenshotSource, resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	return c.followScreenshotURL(ctx, body)
}

// followScreenshotURL はJSONレスポンスに含まれる画像URLを取得する。
func (c *Client) followScreenshotURL(ctx context.Context, body []byte) (*security.RemoteImage, error) {
	var target string
	for _, key := range []string{"screenshot_url", "url", "image"} {
		if s := json.Get(bytes.TrimSpace(body), key).ToString(); s != "" {
			target = s
			break
		}
	}
	if target == "" {
		return nil, model.NewResourceNotFoundError("スクリーンショット")
	}
	if c.images == nil {
		return nil, model.NewUpstreamUnavailableError(screenshotSource).
			WithCause(errors.New("image fetcher is not configured"))
	}

	img, err := c.images.Fetch(ctx, target)
	if err != nil {
		return nil, model.NewUpstreamUnavailableError(screenshotSource).
			WithCause(fmt.Errorf("failed to fetch screenshot image: %w", err))
	}
	return img, nil
}
