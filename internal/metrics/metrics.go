// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 記事ライフサイクル、通知ディスパッチャ、ユーザー管理から利用する。
type MetricsCollector interface {
	RecordApproval(transitioned bool)
	RecordEmailSent()
	RecordEmailFailure()
	RecordSocialPost(success bool)
	RecordSocialRetract(success bool)
	RecordDispatchDropped(kind string)
	RecordDispatchLatency(duration time.Duration)
	RecordSessionsInvalidated(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	approvals          *prometheus.CounterVec
	emailSent          prometheus.Counter
	emailFail          prometheus.Counter
	socialPosts        *prometheus.CounterVec
	socialRetracts     *prometheus.CounterVec
	dispatchDropped    *prometheus.CounterVec
	dispatchLatency    prometheus.Histogram
	sessionInvalidated prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_approvals_total",
			Help: "承認要求の合計数（遷移の有無別）",
		}, []string{"transitioned"}),
		emailSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_email_sent_total",
			Help: "通知メール送信成功の合計数",
		}),
		emailFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_email_fail_total",
			Help: "通知メール送信失敗の合計数",
		}),
		socialPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_social_post_total",
			Help: "ソーシャル告知投稿の合計数（結果別）",
		}, []string{"result"}),
		socialRetracts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_social_retract_total",
			Help: "ソーシャル告知取り消しの合計数（結果別）",
		}, []string{"result"}),
		dispatchDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_dispatch_dropped_total",
			Help: "キュー満杯で破棄された通知タスクの合計数",
		}, []string{"kind"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdesk_dispatch_latency_seconds",
			Help:    "通知タスクの投入から完了までのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_sessions_invalidated_total",
			Help: "役割変更により無効化されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.approvals,
		c.emailSent,
		c.emailFail,
		c.socialPosts,
		c.socialRetracts,
		c.dispatchDropped,
		c.dispatchLatency,
		c.sessionInvalidated,
	)

	return c
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordApproval は承認要求の結果を記録する。
func (c *Collector) RecordApproval(transitioned bool) {
	if transitioned {
		c.approvals.WithLabelValues("true").Inc()
		return
	}
	c.approvals.WithLabelValues("false").Inc()
}

// RecordEmailSent はメール送信成功を記録する。
func (c *Collector) RecordEmailSent() {
	c.emailSent.Inc()
}

// RecordEmailFailure はメール送信失敗を記録する。
func (c *Collector) RecordEmailFailure() {
	c.emailFail.Inc()
}

// RecordSocialPost はソーシャル投稿の結果を記録する。
func (c *Collector) RecordSocialPost(success bool) {
	c.socialPosts.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSocialRetract はソーシャル投稿取り消しの結果を記録する。
func (c *Collector) RecordSocialRetract(success bool) {
	c.socialRetracts.WithLabelValues(resultLabel(success)).Inc()
}

// RecordDispatchDropped は破棄された通知タスクを種別ごとに記録する。
func (c *Collector) RecordDispatchDropped(kind string) {
	c.dispatchDropped.WithLabelValues(kind).Inc()
}

// RecordDispatchLatency は通知タスクのレイテンシを記録する。
func (c *Collector) RecordDispatchLatency(duration time.Duration) {
	c.dispatchLatency.Observe(duration.Seconds())
}

// RecordSessionsInvalidated は無効化したセッション数を記録する。
func (c *Collector) RecordSessionsInvalidated(count int64) {
	c.sessionInvalidated.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。メトリクス未設定時に使う。
type Nop struct{}

func (Nop) RecordApproval(bool)                 {}
func (Nop) RecordEmailSent()                    {}
func (Nop) RecordEmailFailure()                 {}
func (Nop) RecordSocialPost(bool)               {}
func (Nop) RecordSocialRetract(bool)            {}
func (Nop) RecordDispatchDropped(string)        {}
func (Nop) RecordDispatchLatency(time.Duration) {}
func (Nop) RecordSessionsInvalidated(int64)     {}

// compile-time interface checks
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
