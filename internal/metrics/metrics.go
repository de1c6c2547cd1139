// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// フィード更新失敗の理由ラベル。
const (
	ReasonNetwork = "network"
	ReasonParse   = "parse"
	ReasonStorage = "storage"
)

// 本文抽出結果のラベル。
const (
	ExtractionSuccess   = "success"
	ExtractionCacheHit  = "cache_hit"
	ExtractionNoContent = "no_content"
	ExtractionError     = "error"
)

// Collector はfeedpipeのPrometheusメトリクスを保持する。
// fetcher・refresh・extractの各パッケージが定義するレコーダーインターフェースを満たす。
type Collector struct {
	feedRefreshSuccess prometheus.Counter
	feedRefreshFail    *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	fetchLatency       prometheus.Histogram
	articlesInserted   prometheus.Counter
	refreshRuns        *prometheus.CounterVec
	refreshDuration    prometheus.Histogram
	extractions        *prometheus.CounterVec
	extractLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedRefreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpipe_feed_refresh_success_total",
			Help: "取得と解析に成功したフィード更新の合計数",
		}),
		feedRefreshFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpipe_feed_refresh_fail_total",
			Help: "失敗理由別のフィード更新失敗数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpipe_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedpipe_fetch_latency_seconds",
			Help:    "HTTP取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpipe_articles_inserted_total",
			Help: "新規に保存された記事の合計数",
		}),
		refreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpipe_refresh_runs_total",
			Help: "一括更新の実行数（skippedは実行中のため無視された要求）",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedpipe_refresh_duration_seconds",
			Help:    "一括更新1回あたりの所要時間（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpipe_extractions_total",
			Help: "結果別の本文抽出数",
		}, []string{"outcome"}),
		extractLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedpipe_extraction_latency_seconds",
			Help:    "本文抽出のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.feedRefreshSuccess,
		c.feedRefreshFail,
		c.httpStatus,
		c.fetchLatency,
		c.articlesInserted,
		c.refreshRuns,
		c.refreshDuration,
		c.extractions,
		c.extractLatency,
	)

	return c
}

// RecordFeedSuccess はフィード1件の更新成功を記録する。
func (c *Collector) RecordFeedSuccess() {
	c.feedRefreshSuccess.Inc()
}

// RecordFeedFailure はフィード1件の更新失敗を理由付きで記録する。
func (c *Collector) RecordFeedFailure(reason string) {
	c.feedRefreshFail.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はHTTP取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordArticlesInserted は新規保存された記事数を記録する。
func (c *Collector) RecordArticlesInserted(count int) {
	if count <= 0 {
		return
	}
	c.articlesInserted.Add(float64(count))
}

// RecordRefreshRun は一括更新の完了を記録する。
// skippedがtrueの場合は所要時間を観測しない。
func (c *Collector) RecordRefreshRun(duration time.Duration, skipped bool) {
	if skipped {
		c.refreshRuns.WithLabelValues("skipped").Inc()
		return
	}
	c.refreshRuns.WithLabelValues("completed").Inc()
	c.refreshDuration.Observe(duration.Seconds())
}

// RecordExtraction は本文抽出の結果とレイテンシを記録する。
func (c *Collector) RecordExtraction(outcome string, duration time.Duration) {
	c.extractions.WithLabelValues(outcome).Inc()
	if outcome != ExtractionCacheHit {
		c.extractLatency.Observe(duration.Seconds())
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute はworkerプロセス用に/metricsのみを提供するハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
