// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/sheetgate/internal/credential"
	"github.com/hitoshi/sheetgate/internal/model"
)

// Collector はPrometheusメトリクスを収集する実装。
// auth.OutcomeRecorder と credential.FetchObserver を実装する。
type Collector struct {
	authOutcomes *prometheus.CounterVec
	fetchFail    *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
	fetchLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetgate_auth_attempts_total",
			Help: "結果別の認証試行数",
		}, []string{"outcome", "reason"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetgate_source_fetch_fail_total",
			Help: "失敗種別ごとの認証データ取得失敗数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetgate_source_http_status_total",
			Help: "認証データ取得先のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sheetgate_source_fetch_latency_seconds",
			Help:    "認証データ取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.authOutcomes,
		c.fetchFail,
		c.httpStatus,
		c.fetchLatency,
	)

	return c
}

// RecordAuthOutcome は認証結果を記録する。
func (c *Collector) RecordAuthOutcome(result model.AuthResult) {
	c.authOutcomes.WithLabelValues(result.Outcome.String(), result.Reason).Inc()
}

// RecordSourceFetch は認証データ取得1回分のレイテンシ・ステータス・失敗種別を記録する。
// statusCodeが0の場合（レスポンスなし）はステータスを記録しない。
func (c *Collector) RecordSourceFetch(duration time.Duration, statusCode int, err error) {
	c.fetchLatency.Observe(duration.Seconds())
	if statusCode != 0 {
		c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	}
	if err != nil {
		c.fetchFail.WithLabelValues(credential.KindOf(err).String()).Inc()
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
