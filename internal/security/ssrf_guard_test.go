package security

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSafeClient_Timeout(t *testing.T) {
	client := NewSafeClient(5 * time.Second)
	if client.Timeout != 5*time.Second {
		t.Errorf("expected timeout %v, got %v", 5*time.Second, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport")
	}
}

// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if _, err := NewSafeClient(5 * time.Second).Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "公開HTTPS", url: "https://cdn.steamwebapi.com/screens/1.png", wantErr: false},
		{name: "公開HTTP", url: "http://example.com/a.png", wantErr: false},
		{name: "空", url: "", wantErr: true},
		{name: "ftpスキーム", url: "ftp://example.com/a.png", wantErr: true},
		{name: "fileスキーム", url: "file:///etc/passwd", wantErr: true},
		{name: "プライベートIP", url: "http://10.0.0.1/a.png", wantErr: true},
		{name: "ループバック", url: "http://127.0.0.1:8080/", wantErr: true},
		{name: "メタデータIP", url: "http://169.254.169.254/latest/meta-data/", wantErr: true},
		{name: "IPv6ループバック", url: "http://[::1]/", wantErr: true},
		{name: "localhost", url: "http://LOCALHOST/", wantErr: true},
		{name: "ホストなし", url: "https:///path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrBlockedURL) {
				t.Errorf("error should wrap ErrBlockedURL: %v", err)
			}
		})
	}
}

// newTestFetcher はループバックのhttptestサーバーに接続できるよう、
// URL検証を無効化したImageFetcherを返す。
func newTestFetcher(maxBytes int64) *ImageFetcher {
	f := NewImageFetcher(http.DefaultClient, maxBytes)
	f.validate = func(string) error { return nil }
	return f
}

func TestImageFetcher_Fetch_Image(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNGDATA"))
	}))
	defer ts.Close()

	img, err := newTestFetcher(1024).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	defer img.Body.Close()

	if img.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", img.ContentType)
	}
	body, _ := io.ReadAll(img.Body)
	if string(body) != "PNGDATA" {
		t.Errorf("body = %q", body)
	}
}

func TestImageFetcher_Fetch_RejectsNonImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	_, err := newTestFetcher(1024).Fetch(context.Background(), ts.URL)
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("error = %v, want ErrNotImage", err)
	}
}

func TestImageFetcher_Fetch_RejectsTooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer ts.Close()

	_, err := newTestFetcher(10).Fetch(context.Background(), ts.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("error = %v, want ErrTooLarge", err)
	}
}

func TestImageFetcher_Fetch_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	if _, err := newTestFetcher(1024).Fetch(context.Background(), ts.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestImageFetcher_Fetch_BlocksPrivateURL(t *testing.T) {
	f := NewImageFetcher(http.DefaultClient, 1024)
	_, err := f.Fetch(context.Background(), "http://127.0.0.1/secret.png")
	if !errors.Is(err, ErrBlockedURL) {
		t.Errorf("error = %v, want ErrBlockedURL", err)
	}
}
