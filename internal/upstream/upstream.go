// Package upstream は外部API（Steam、steamwebapi）への送信HTTPクライアントを提供する。
// すべての呼び出しにタイムアウトを設定し、失敗をエラー分類に変換する。
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/xid"

	"github.com/hitoshi/skinshowcase/internal/metrics"
	"github.com/hitoshi/skinshowcase/internal/model"
)

// maskedParams はログ出力時に値を伏せるクエリパラメータ。
var maskedParams = []string{"key", "api_key", "apikey"}

// LoggingTransport は送信リクエストをslogで記録するhttp.RoundTripper。
type LoggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

// NewLoggingTransport はLoggingTransportを生成する。nextがnilの場合はhttp.DefaultTransportを使う。
func NewLoggingTransport(next http.RoundTripper, logger *slog.Logger) *LoggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingTransport{next: next, logger: logger}
}

// RoundTrip はリクエストを送信し、結果をログに残す。
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := xid.New().String()
	start := time.Now()

	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	attrs := []any{
		slog.String("upstream_request_id", requestID),
		slog.String("method", req.Method),
		slog.String("url", RedactURL(req.URL)),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
	}

	if err != nil {
		t.logger.WarnContext(req.Context(), "upstream request failed", append(attrs, slog.String("error", err.Error()))...)
		return nil, err
	}

	attrs = append(attrs, slog.Int("status", resp.StatusCode))
	if resp.StatusCode >= 400 {
		t.logger.WarnContext(req.Context(), "upstream request returned error status", attrs...)
	} else {
		t.logger.DebugContext(req.Context(), "upstream request", attrs...)
	}
	return resp, nil
}

// RedactURL はAPIキーなどの秘匿パラメータを伏せたURL文字列を返す。
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	redacted := *u
	q := redacted.Query()
	for _, name := range maskedParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
		}
	}
	redacted.RawQuery = q.Encode()
	return redacted.String()
}

// NewHTTPClient はタイムアウトとロギング付きのHTTPクライアントを生成する。
func NewHTTPClient(timeout time.Duration, logger *slog.Logger) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewLoggingTransport(http.DefaultTransport, logger),
	}
}

// ErrorForStatus は上流のHTTPステータスをエラー分類に変換する。
// 2xxの場合はnilを返す。sourceはユーザー向けメッセージに使う上流名。
func ErrorForStatus(source string, status int) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusTooManyRequests:
		return model.NewRateLimitedError(source)
	default:
		return model.NewUpstreamUnavailableError(source).
			WithCause(fmt.Errorf("%s returned status %d", source, status))
	}
}

// WrapTransportError は送信エラー（タイムアウト、接続失敗）をUPSTREAM_UNAVAILABLEに変換する。
// 呼び出し元のコンテキストが取り消された場合も同じ分類になる。
func WrapTransportError(source string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return model.NewUpstreamUnavailableError(source).WithCause(err)
}

// MaxBodyBytes は上流レスポンスとして読み込む最大バイト数。
const MaxBodyBytes = 16 << 20

// ReadBody はレスポンスボディを上限付きで読み込む。
func ReadBody(source string, r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return nil, WrapTransportError(source, err)
	}
	if len(body) > MaxBodyBytes {
		return nil, model.NewUpstreamUnavailableError(source).
			WithCause(fmt.Errorf("%s response exceeds %d bytes", source, MaxBodyBytes))
	}
	return body, nil
}

// Get はGETリクエストを送信し、2xxの場合はボディを返す。
// 2xx以外は ErrorForStatus、送信失敗は WrapTransportError で分類する。
func Get(ctx context.Context, client *http.Client, source, rawURL string, header http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, model.NewUpstreamUnavailableError(source).WithCause(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, WrapTransportError(source, err)
	}
	defer resp.Body.Close()

	body, err := ReadBody(source, resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if err := ErrorForStatus(source, resp.StatusCode); err != nil {
		return body, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// Outcome はエラー分類をメトリクスの結果ラベルに変換する。
func Outcome(err error) string {
	switch model.Kind(err) {
	case "":
		if err == nil {
			return metrics.OutcomeSuccess
		}
		return metrics.OutcomeError
	case model.ErrCodeRateLimited:
		return metrics.OutcomeRateLimited
	case model.ErrCodeAccessDenied:
		return metrics.OutcomeAccessDenied
	case model.ErrCodeNotFound:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
