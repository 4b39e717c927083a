// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	// ErrBlockedURL は取得先URLが安全でないため拒否されたことを示す。
	ErrBlockedURL = errors.New("blocked url")
	// ErrNotImage は取得したレスポンスが画像ではないことを示す。
	ErrNotImage = errors.New("response is not an image")
	// ErrTooLarge はレスポンスが許容サイズを超えたことを示す。
	ErrTooLarge = errors.New("response too large")
)

// allowedSchemes は外部取得で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は外部取得でブロックされるネットワーク範囲。
// safeurlはDialerレベルでDNS解決後のIPも検証するため、ここでは事前チェックのみに使う。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // クラウドメタデータIPを含む
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// 上流APIのレスポンスに含まれるURL（スクリーンショット画像など）を
// 取得するときに使用する。プライベートIP、ループバック、リンクローカル宛ての
// 接続はsafeurlがDNS解決後に拒否する。
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はURLの安全性をDNS解決なしで静的に検証する。
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty URL", ErrBlockedURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrBlockedURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("%w: disallowed scheme: %s", ErrBlockedURL, scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlockedURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: blocked IP address: %s", ErrBlockedURL, ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: blocked host: %s", ErrBlockedURL, host)
	}

	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// RemoteImage は外部から取得した画像ストリーム。
// 呼び出し側はBodyを必ずCloseすること。
type RemoteImage struct {
	Body        io.ReadCloser
	ContentType string
}

// ImageFetcher は外部の画像URLを安全に取得する。
type ImageFetcher struct {
	client   *http.Client
	maxBytes int64
	validate func(string) error
}

// NewImageFetcher はImageFetcherを生成する。
// clientには通常NewSafeClientの戻り値を渡す。
func NewImageFetcher(client *http.Client, maxBytes int64) *ImageFetcher {
	return &ImageFetcher{client: client, maxBytes: maxBytes, validate: ValidateURL}
}

// Fetch は画像を取得する。Content-Typeがimage/*でない場合はErrNotImageを返す。
// Content-Lengthが上限を超える場合はErrTooLargeを返し、
// 長さ不明のレスポンスは上限で読み取りを打ち切る。
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*RemoteImage, error) {
	if err := f.validate(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		resp.Body.Close()
		return nil, ErrNotImage
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		resp.Body.Close()
		return nil, ErrTooLarge
	}

	body := resp.Body
	if f.maxBytes > 0 {
		body = limitedReadCloser{Reader: io.LimitReader(resp.Body, f.maxBytes), Closer: resp.Body}
	}

	return &RemoteImage{Body: body, ContentType: mediaType}, nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
