// Package pricehistory は価格履歴サンプルの解釈とチャート用の間引きを行う。
package pricehistory

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/skinshowcase/internal/model"
)

var json = jsoniter.Config{
	EscapeHTML:             true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

const historySource = "価格履歴API"

// Window はチャートの表示期間。
type Window string

const (
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
	Window90d Window = "90d"
)

// DefaultWindow は期間指定がない場合の表示期間。
const DefaultWindow = Window7d

var maxPoints = map[Window]int{
	Window24h: 24,
	Window7d:  50,
	Window30d: 90,
	Window90d: 180,
}

// ParseWindow は期間文字列を解釈する。空文字はDefaultWindowになる。
func ParseWindow(raw string) (Window, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DefaultWindow, nil
	}
	w := Window(raw)
	if _, ok := maxPoints[w]; !ok {
		return "", model.NewValidationError("期間は24h、7d、30d、90dのいずれかを指定してください", "window")
	}
	return w, nil
}

// MaxPoints は期間ごとの最大点数を返す。未知の期間はDefaultWindowの値を返す。
// 期間は実際の時間幅ではなく点数の目安として扱う。
func MaxPoints(w Window) int {
	if n, ok := maxPoints[w]; ok {
		return n
	}
	return maxPoints[DefaultWindow]
}

// millisThreshold を超えるUNIX時刻はミリ秒とみなす。
const millisThreshold = 1e12

// maxUnixSeconds は受け付ける最大のUNIX秒（9999-12-31T23:59:59Z）。
const maxUnixSeconds = 253402300799

// 日付文字列として受け付けるレイアウト。
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 02 2006 15:",
}

// ParseSamples は上流の価格履歴を解釈する。
// [{timestamp, price}]形式（timestampの代わりにtime、dateも可）と[[時刻, 価格]]形式を受け付ける。
// 時刻か価格を解釈できないサンプルは除外する。
func ParseSamples(raw []byte) ([]model.PricePoint, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []model.PricePoint{}, nil
	}

	var root any
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return nil, model.NewUpstreamUnavailableError(historySource).
			WithCause(fmt.Errorf("failed to parse price history: %w", err))
	}

	var entries []any
	switch v := root.(type) {
	case []any:
		entries = v
	case map[string]any:
		// {"prices": [...]}形式も受け付ける
		for _, key := range []string{"prices", "history", "data"} {
			if list, ok := v[key].([]any); ok {
				entries = list
				break
			}
		}
	default:
		return nil, model.NewUpstreamUnavailableError(historySource).
			WithCause(fmt.Errorf("unexpected price history root type %T", root))
	}

	return SamplesFrom(entries), nil
}

// SamplesFrom はデコード済みのサンプル列を価格点に変換する。解釈できない要素は除外する。
func SamplesFrom(entries []any) []model.PricePoint {
	points := make([]model.PricePoint, 0, len(entries))
	for _, e := range entries {
		if p, ok := parseSample(e); ok {
			points = append(points, p)
		}
	}
	return points
}

func parseSample(e any) (model.PricePoint, bool) {
	var tsRaw, priceRaw any
	switch s := e.(type) {
	case map[string]any:
		for _, key := range []string{"timestamp", "time", "date"} {
			if v, ok := s[key]; ok && v != nil {
				tsRaw = v
				break
			}
		}
		priceRaw = s["price"]
	case []any:
		if len(s) < 2 {
			return model.PricePoint{}, false
		}
		tsRaw, priceRaw = s[0], s[1]
	default:
		return model.PricePoint{}, false
	}

	ts, ok := parseTimestamp(tsRaw)
	if !ok {
		return model.PricePoint{}, false
	}
	price, ok := ParsePrice(priceRaw)
	if !ok {
		return model.PricePoint{}, false
	}
	return model.PricePoint{Timestamp: ts, Price: price}, true
}

// ParsePrice は数値または数値文字列を価格に変換する。NaNと無限大は不正として扱う。
func ParsePrice(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case interface{ Float64() (float64, error) }:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseTimestamp はUNIX秒、UNIXミリ秒、日付文字列をUNIX秒に変換する。
// 1970年より前とmaxUnixSecondsより後の時刻は解釈できないものとして扱う。
func parseTimestamp(v any) (int64, bool) {
	if f, ok := ParsePrice(v); ok {
		if f >= millisThreshold {
			f /= 1000
		}
		if f < 0 || f > maxUnixSeconds {
			return 0, false
		}
		return int64(f), true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	// Steamのpricehistoryは"Nov 27 2013 01: +0"形式
	s = strings.TrimSuffix(s, " +0")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), t.Unix() >= 0
		}
	}
	return 0, false
}

// Aggregate は新しい順に安定ソートして期間ごとの最大点数だけ残し、古い順に並べ直す。
// 入力は変更しない。結果の時刻は非減少になる。
func Aggregate(samples []model.PricePoint, w Window) []model.PricePoint {
	sorted := slices.Clone(samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})

	if n := MaxPoints(w); len(sorted) > n {
		sorted = sorted[:n]
	}
	slices.Reverse(sorted)
	if sorted == nil {
		return []model.PricePoint{}
	}
	return sorted
}
