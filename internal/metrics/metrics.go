// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 広告サービス、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordListingCreated()
	RecordListingDeleted(cascadedComments int)
	RecordAuthorizationDenied(reason string)
	RecordAssetBytesWritten(n int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordAssetsSwept(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	listingsCreated   prometheus.Counter
	listingsDeleted   prometheus.Counter
	commentsCascaded  prometheus.Counter
	authzDenied       *prometheus.CounterVec
	assetBytesWritten prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	assetsSwept       prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		listingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adboard_listings_created_total",
			Help: "作成された広告の合計数",
		}),
		listingsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adboard_listings_deleted_total",
			Help: "削除された広告の合計数",
		}),
		commentsCascaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adboard_comments_cascaded_total",
			Help: "広告削除に伴って削除されたコメントの合計数",
		}),
		authzDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adboard_authorization_denied_total",
			Help: "理由別の認可拒否数",
		}, []string{"reason"}),
		assetBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adboard_asset_bytes_written_total",
			Help: "保存された画像の合計バイト数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adboard_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		assetsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adboard_assets_swept_total",
			Help: "クリーンアップで削除された孤立画像の合計数",
		}),
	}

	reg.MustRegister(
		c.listingsCreated,
		c.listingsDeleted,
		c.commentsCascaded,
		c.authzDenied,
		c.assetBytesWritten,
		c.httpStatus,
		c.requestLatency,
		c.assetsSwept,
	)

	return c
}

// RecordListingCreated は広告作成を記録する。
func (c *Collector) RecordListingCreated() {
	c.listingsCreated.Inc()
}

// RecordListingDeleted は広告削除と、連鎖削除したコメント数を記録する。
func (c *Collector) RecordListingDeleted(cascadedComments int) {
	c.listingsDeleted.Inc()
	c.commentsCascaded.Add(float64(cascadedComments))
}

// RecordAuthorizationDenied は認可拒否を理由付きで記録する。
func (c *Collector) RecordAuthorizationDenied(reason string) {
	c.authzDenied.WithLabelValues(reason).Inc()
}

// RecordAssetBytesWritten は保存した画像のバイト数を記録する。
func (c *Collector) RecordAssetBytesWritten(n int) {
	c.assetBytesWritten.Add(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordAssetsSwept はクリーンアップで削除した画像数を記録する。
func (c *Collector) RecordAssetsSwept(count int) {
	c.assetsSwept.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
