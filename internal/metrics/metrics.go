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
// ハンドラー層から利用する。
type MetricsCollector interface {
	RecordSignup(role string)
	RecordVerification(outcome string)
	RecordLogin(outcome string)
	RecordOTPDispatch()
	RecordClassification(label string)
	RecordClassificationLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signups               *prometheus.CounterVec
	verifications         *prometheus.CounterVec
	logins                *prometheus.CounterVec
	otpDispatches         prometheus.Counter
	classifications       *prometheus.CounterVec
	classificationLatency prometheus.Histogram
	httpStatus            *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroscan_signups_total",
			Help: "ロール別のサインアップ受理数",
		}, []string{"role"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroscan_verifications_total",
			Help: "結果別のメール検証試行数",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroscan_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		otpDispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neuroscan_otp_dispatches_total",
			Help: "確認コードメール送信の合計数",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroscan_classifications_total",
			Help: "ラベル別のMRI分類実行数",
		}, []string{"label"}),
		classificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "neuroscan_classification_latency_seconds",
			Help:    "MRI分類のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroscan_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.signups,
		c.verifications,
		c.logins,
		c.otpDispatches,
		c.classifications,
		c.classificationLatency,
		c.httpStatus,
	)

	return c
}

// RecordSignup はサインアップ受理を記録する。
func (c *Collector) RecordSignup(role string) {
	c.signups.WithLabelValues(role).Inc()
}

// RecordVerification はメール検証の結果を記録する。
func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordOTPDispatch は確認コードの送信を記録する。
func (c *Collector) RecordOTPDispatch() {
	c.otpDispatches.Inc()
}

// RecordClassification は分類実行を記録する。
func (c *Collector) RecordClassification(label string) {
	c.classifications.WithLabelValues(label).Inc()
}

// RecordClassificationLatency は分類のレイテンシを記録する。
func (c *Collector) RecordClassificationLatency(duration time.Duration) {
	c.classificationLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetupMetricsRoute は/metricsエンドポイント用のハンドラーを返す。
func SetupMetricsRoute(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
