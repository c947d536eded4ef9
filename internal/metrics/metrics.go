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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordGateDecision(action, reason string)
	RecordRateLimit(scope string, allowed bool)
	RecordModerationDecision(state, reason string)
	RecordScreeningLatency(duration time.Duration)
	RecordStatusTransition(status string)
	RecordNotifyFailure(publisher string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDecisions       *prometheus.CounterVec
	rateLimitDecisions  *prometheus.CounterVec
	moderationDecisions *prometheus.CounterVec
	screeningLatency    prometheus.Histogram
	statusTransitions   *prometheus.CounterVec
	notifyFailures      *prometheus.CounterVec
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobgate_gate_decisions_total",
			Help: "認可判定の合計数（操作・結果別）",
		}, []string{"action", "result"}),
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobgate_ratelimit_decisions_total",
			Help: "レート制限判定の合計数（スコープ・結果別）",
		}, []string{"scope", "result"}),
		moderationDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobgate_moderation_decisions_total",
			Help: "求人の審査状態決定の合計数（状態・理由別）",
		}, []string{"state", "reason"}),
		screeningLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobgate_screening_latency_seconds",
			Help:    "求人の不正検出と状態決定にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobgate_application_status_transitions_total",
			Help: "応募状態の変更数（遷移先別）",
		}, []string{"status"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobgate_notify_failures_total",
			Help: "通知の送信失敗数（送信先別）",
		}, []string{"publisher"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.rateLimitDecisions,
		c.moderationDecisions,
		c.screeningLatency,
		c.statusTransitions,
		c.notifyFailures,
		c.httpStatus,
	)

	return c
}

// RecordGateDecision は認可判定を記録する。reasonが空の場合は許可として記録する。
func (c *Collector) RecordGateDecision(action, reason string) {
	if reason == "" {
		reason = "allow"
	}
	c.gateDecisions.WithLabelValues(action, reason).Inc()
}

// RecordRateLimit はレート制限判定を記録する。
func (c *Collector) RecordRateLimit(scope string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	c.rateLimitDecisions.WithLabelValues(scope, result).Inc()
}

// RecordModerationDecision は審査状態の決定を記録する。
func (c *Collector) RecordModerationDecision(state, reason string) {
	if reason == "" {
		reason = "none"
	}
	c.moderationDecisions.WithLabelValues(state, reason).Inc()
}

// RecordScreeningLatency は審査のレイテンシを記録する。
func (c *Collector) RecordScreeningLatency(duration time.Duration) {
	c.screeningLatency.Observe(duration.Seconds())
}

// RecordStatusTransition は応募状態の変更を記録する。
func (c *Collector) RecordStatusTransition(status string) {
	c.statusTransitions.WithLabelValues(status).Inc()
}

// RecordNotifyFailure は通知失敗を記録する。
func (c *Collector) RecordNotifyFailure(publisher string) {
	c.notifyFailures.WithLabelValues(publisher).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordGateDecision(string, string)       {}
func (Nop) RecordRateLimit(string, bool)            {}
func (Nop) RecordModerationDecision(string, string) {}
func (Nop) RecordScreeningLatency(time.Duration)    {}
func (Nop) RecordStatusTransition(string)           {}
func (Nop) RecordNotifyFailure(string)              {}
func (Nop) RecordHTTPStatus(int)                    {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
