package inventory

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/upstream"
)

// ClientConfig はインベントリAPIクライアントの設定。
//
// BaseURLに{steam_id}、{app_id}、{context_id}のプレースホルダが含まれる場合は
// パスに埋め込む（steamcommunity.com/inventory/{steam_id}/{app_id}/{context_id} 形式）。
// 含まれない場合はクエリパラメータとして付与する。
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	AppID     int
	ContextID int
}

// Client はインベントリAPIのHTTPクライアント。
type Client struct {
	config ClientConfig
	http   *http.Client
}

// NewClient はClientを生成する。httpClientにはタイムアウト設定済みのクライアントを渡す。
func NewClient(config ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{config: config, http: httpClient}
}

// requestURL は取得先URLを組み立てる。
func (c *Client) requestURL(steamID string) string {
	appID := strconv.Itoa(c.config.AppID)
	contextID := strconv.Itoa(c.config.ContextID)

	if strings.Contains(c.config.BaseURL, "{steam_id}") {
		r := strings.NewReplacer(
			"{steam_id}", url.PathEscape(steamID),
			"{app_id}", appID,
			"{context_id}", contextID,
		)
		return r.Replace(c.config.BaseURL)
	}

	q := url.Values{
		"steam_id":   {steamID},
		"app_id":     {appID},
		"context_id": {contextID},
	}
	if c.config.APIKey != "" {
		q.Set("key", c.config.APIKey)
	}
	sep := "?"
	if strings.Contains(c.config.BaseURL, "?") {
		sep = "&"
	}
	return c.config.BaseURL + sep + q.Encode()
}

// Fetch は指定ユーザーのインベントリの生レスポンスを取得する。
// 429はRATE_LIMITED、401/403と、2xxまたは429以外の4xxで非公開を示すボディはACCESS_DENIED、
// それ以外の失敗はUPSTREAM_UNAVAILABLEを返す。
func (c *Client) Fetch(ctx context.Context, steamID string) ([]byte, error) {
	body, status, err := upstream.Get(ctx, c.http, inventorySource, c.requestURL(steamID), http.Header{
		"Accept": {"application/json"},
	})

	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return nil, model.NewAccessDeniedError()
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		// 429と5xxはボディの内容にかかわらずステータスで分類する
		return nil, err
	case isPrivateBody(body):
		return nil, model.NewAccessDeniedError()
	case err != nil:
		return nil, err
	}
	return body, nil
}

// isPrivateBody はレスポンスボディがインベントリ非公開を示しているかを判定する。
func isPrivateBody(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	for _, key := range []string{"error", "Error", "message"} {
		msg := json.Get(body, key).ToString()
		if strings.Contains(strings.ToLower(msg), "private") {
			return true
		}
	}
	return false
}
