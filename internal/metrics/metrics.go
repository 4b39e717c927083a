// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 上流呼び出しの結果ラベル。
const (
	OutcomeSuccess      = "success"
	OutcomeRateLimited  = "rate_limited"
	OutcomeAccessDenied = "access_denied"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

// Recorder はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type Recorder interface {
	RecordUpstream(source, outcome string, duration time.Duration)
	RecordListingCreated()
	RecordListingRemoved()
	RecordListingConflict()
	RecordLogin(outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	listingsCreated  prometheus.Counter
	listingsRemoved  prometheus.Counter
	listingConflicts prometheus.Counter
	logins           *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skinshowcase_upstream_requests_total",
			Help: "外部API呼び出しの結果別の合計数",
		}, []string{"source", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skinshowcase_upstream_latency_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		listingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skinshowcase_listings_created_total",
			Help: "作成された出品の合計数",
		}),
		listingsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skinshowcase_listings_removed_total",
			Help: "取り下げられた出品の合計数",
		}),
		listingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skinshowcase_listing_conflicts_total",
			Help: "出品済みアセットへの重複出品の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skinshowcase_logins_total",
			Help: "Steamログインの結果別の合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skinshowcase_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.listingsCreated,
		c.listingsRemoved,
		c.listingConflicts,
		c.logins,
		c.httpStatus,
	)

	return c
}

// RecordUpstream は外部API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstream(source, outcome string, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(source, outcome).Inc()
	c.upstreamLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordListingCreated は出品の作成を記録する。
func (c *Collector) RecordListingCreated() {
	c.listingsCreated.Inc()
}

// RecordListingRemoved は出品の取り下げを記録する。
func (c *Collector) RecordListingRemoved() {
	c.listingsRemoved.Inc()
}

// RecordListingConflict は重複出品の拒否を記録する。
func (c *Collector) RecordListingConflict() {
	c.listingConflicts.Inc()
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordUpstream(string, string, time.Duration) {}
func (Nop) RecordListingCreated()                        {}
func (Nop) RecordListingRemoved()                        {}
func (Nop) RecordListingConflict()                       {}
func (Nop) RecordLogin(string)                           {}
func (Nop) RecordHTTPStatus(int)                         {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
