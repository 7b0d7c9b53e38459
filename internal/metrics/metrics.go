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
// 一覧・カスケード削除・孤立blob掃除の各処理から利用する。
type MetricsCollector interface {
	RecordPageServed(usedFallback bool)
	RecordFallbackRecovered(rows int)
	RecordSignFailure()
	RecordBlobBatch(status string, keys int)
	RecordCascade(kind string, photos int, duration time.Duration)
	RecordOrphanSweep(prefixes int, keys int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pagesServed       *prometheus.CounterVec
	fallbackRecovered prometheus.Counter
	signFailures      prometheus.Counter
	blobBatches       *prometheus.CounterVec
	blobKeys          *prometheus.CounterVec
	cascadePhotos     *prometheus.CounterVec
	cascadeLatency    *prometheus.HistogramVec
	orphanPrefixes    prometheus.Counter
	orphanKeys        prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pagesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolib_pages_served_total",
			Help: "返却した一覧ページ数（スキャン補完の有無別）",
		}, []string{"fallback"}),
		fallbackRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photolib_fallback_rows_recovered_total",
			Help: "インデックス遅延をスキャン補完で回収した行数",
		}),
		signFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photolib_signed_url_failures_total",
			Help: "署名付きURLの発行に失敗した数",
		}),
		blobBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolib_blob_delete_batches_total",
			Help: "blob一括削除のバッチ数（結果別）",
		}, []string{"status"}),
		blobKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolib_blob_delete_keys_total",
			Help: "blob一括削除に渡したキー数（結果別）",
		}, []string{"status"}),
		cascadePhotos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolib_cascade_photos_deleted_total",
			Help: "カスケード削除で削除した写真行の数",
		}, []string{"kind"}),
		cascadeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photolib_cascade_duration_seconds",
			Help:    "カスケード削除の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		orphanPrefixes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photolib_orphan_prefixes_swept_total",
			Help: "孤立blob掃除で処理したアルバムプレフィックス数",
		}),
		orphanKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photolib_orphan_keys_deleted_total",
			Help: "孤立blob掃除で削除したキー数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolib_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.pagesServed,
		c.fallbackRecovered,
		c.signFailures,
		c.blobBatches,
		c.blobKeys,
		c.cascadePhotos,
		c.cascadeLatency,
		c.orphanPrefixes,
		c.orphanKeys,
		c.httpStatus,
	)

	return c
}

// RecordPageServed は一覧ページの返却を記録する。
func (c *Collector) RecordPageServed(usedFallback bool) {
	c.pagesServed.WithLabelValues(strconv.FormatBool(usedFallback)).Inc()
}

// RecordFallbackRecovered はスキャン補完で回収した行数を記録する。
func (c *Collector) RecordFallbackRecovered(rows int) {
	c.fallbackRecovered.Add(float64(rows))
}

// RecordSignFailure は署名付きURLの発行失敗を記録する。
func (c *Collector) RecordSignFailure() {
	c.signFailures.Inc()
}

// RecordBlobBatch はblob一括削除のバッチ結果を記録する。
func (c *Collector) RecordBlobBatch(status string, keys int) {
	c.blobBatches.WithLabelValues(status).Inc()
	c.blobKeys.WithLabelValues(status).Add(float64(keys))
}

// RecordCascade はカスケード削除の完了を記録する。kindは"album"または"account"。
func (c *Collector) RecordCascade(kind string, photos int, duration time.Duration) {
	c.cascadePhotos.WithLabelValues(kind).Add(float64(photos))
	c.cascadeLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordOrphanSweep は孤立blob掃除の結果を記録する。
func (c *Collector) RecordOrphanSweep(prefixes int, keys int) {
	c.orphanPrefixes.Add(float64(prefixes))
	c.orphanKeys.Add(float64(keys))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない呼び出し元とテストで使う。
type Nop struct{}

func (Nop) RecordPageServed(bool)                    {}
func (Nop) RecordFallbackRecovered(int)              {}
func (Nop) RecordSignFailure()                       {}
func (Nop) RecordBlobBatch(string, int)              {}
func (Nop) RecordCascade(string, int, time.Duration) {}
func (Nop) RecordOrphanSweep(int, int)               {}
func (Nop) RecordHTTPStatus(int)                     {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
