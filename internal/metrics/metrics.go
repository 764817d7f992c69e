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
// セッション状態コントローラー、ガード、ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(success bool)
	RecordSignup(success bool)
	RecordLogout(backendFailed bool)
	RecordReconcile(applied bool)
	RecordAdminLookupFailure()
	RecordAdminLookupLatency(duration time.Duration)
	RecordGuardDecision(gate, outcome string)
	SetActiveVisitors(n int)
	RecordHTTPStatus(statusCode int)
	RecordCleanupDeleted(target string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins             *prometheus.CounterVec
	signups            *prometheus.CounterVec
	logouts            *prometheus.CounterVec
	reconciles         *prometheus.CounterVec
	adminLookupFail    prometheus.Counter
	adminLookupLatency prometheus.Histogram
	guardDecisions     *prometheus.CounterVec
	activeVisitors     prometheus.Gauge
	httpStatus         *prometheus.CounterVec
	cleanupDeleted     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driverdash_login_total",
			Help: "ログイン試行の合計数",
		}, []string{"result"}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driverdash_signup_total",
			Help: "サインアップ試行の合計数",
		}, []string{"result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driverdash_logout_total",
			Help: "ログアウトの合計数",
		}, []string{"result"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driverdash_reconcile_total",
			Help: "管理者判定結果の適用・破棄の合計数",
		}, []string{"outcome"}),
		adminLookupFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driverdash_admin_lookup_fail_total",
			Help: "管理者判定の失敗の合計数",
		}),
		adminLookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "driverdash_admin_lookup_latency_seconds",
			Help:    "管理者判定のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driverdash_guard_decision_total",
			Help: "ルートガードの判定結果別の合計数",
		}, []string{"gate", "outcome"}),
		activeVisitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "driverdash_active_visitors",
			Help: "保持している訪問者セッション数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driverdash_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driverdash_cleanup_deleted_total",
			Help: "クリーンアップジョブで削除した行数",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.logins,
		c.signups,
		c.logouts,
		c.reconciles,
		c.adminLookupFail,
		c.adminLookupLatency,
		c.guardDecisions,
		c.activeVisitors,
		c.httpStatus,
		c.cleanupDeleted,
	)

	return c
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(success bool) {
	c.logins.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSignup はサインアップ試行を記録する。
func (c *Collector) RecordSignup(success bool) {
	c.signups.WithLabelValues(resultLabel(success)).Inc()
}

// RecordLogout はログアウトを記録する。ローカルの状態は常にログアウトになる。
func (c *Collector) RecordLogout(backendFailed bool) {
	c.logouts.WithLabelValues(resultLabel(!backendFailed)).Inc()
}

// RecordReconcile は管理者判定結果が適用されたか破棄されたかを記録する。
func (c *Collector) RecordReconcile(applied bool) {
	outcome := "discarded"
	if applied {
		outcome = "applied"
	}
	c.reconciles.WithLabelValues(outcome).Inc()
}

// RecordAdminLookupFailure は管理者判定の失敗を記録する。
func (c *Collector) RecordAdminLookupFailure() {
	c.adminLookupFail.Inc()
}

// RecordAdminLookupLatency は管理者判定のレイテンシを記録する。
func (c *Collector) RecordAdminLookupLatency(duration time.Duration) {
	c.adminLookupLatency.Observe(duration.Seconds())
}

// RecordGuardDecision はルートガードの判定を記録する。
func (c *Collector) RecordGuardDecision(gate, outcome string) {
	c.guardDecisions.WithLabelValues(gate, outcome).Inc()
}

// SetActiveVisitors は保持している訪問者数を設定する。
func (c *Collector) SetActiveVisitors(n int) {
	c.activeVisitors.Set(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCleanupDeleted はクリーンアップで削除した行数を記録する。
func (c *Collector) RecordCleanupDeleted(target string, count int64) {
	c.cleanupDeleted.WithLabelValues(target).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
