// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginRateLimited        = "rate_limited"
	LoginValidationError    = "validation_error"
	LoginError              = "error"
)

// Recorder はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、スイープジョブから利用する。
type Recorder interface {
	RecordLogin(outcome string, duration time.Duration)
	RecordRateLimitRejection(scope string)
	RecordTokenRejection(reason string)
	RecordCSRFRejection(reason string)
	RecordSweep(table string, removed int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	loginLatency    prometheus.Histogram
	rateLimited     *prometheus.CounterVec
	tokenRejections *prometheus.CounterVec
	csrfRejections  *prometheus.CounterVec
	sweptEntries    *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		loginLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_login_duration_seconds",
			Help:    "ログイン処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_rate_limit_rejections_total",
			Help: "レート制限により拒否されたリクエスト数",
		}, []string{"scope"}),
		tokenRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_token_rejections_total",
			Help: "理由別の認証トークン拒否数",
		}, []string{"reason"}),
		csrfRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_csrf_rejections_total",
			Help: "理由別のCSRF検証失敗数",
		}, []string{"reason"}),
		sweptEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_swept_entries_total",
			Help: "スイープで削除された期限切れエントリ数",
		}, []string{"table"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.logins,
		c.loginLatency,
		c.rateLimited,
		c.tokenRejections,
		c.csrfRejections,
		c.sweptEntries,
		c.httpStatus,
	)

	return c
}

// RecordLogin はログイン試行の結果とレイテンシを記録する。
func (c *Collector) RecordLogin(outcome string, duration time.Duration) {
	c.logins.WithLabelValues(outcome).Inc()
	c.loginLatency.Observe(duration.Seconds())
}

// RecordRateLimitRejection はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimitRejection(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordTokenRejection はトークン拒否を理由別に記録する。
// クライアントには理由を区別せず返すため、内訳はここでのみ観測できる。
func (c *Collector) RecordTokenRejection(reason string) {
	c.tokenRejections.WithLabelValues(reason).Inc()
}

// RecordCSRFRejection はCSRF検証失敗を記録する。
func (c *Collector) RecordCSRFRejection(reason string) {
	c.csrfRejections.WithLabelValues(reason).Inc()
}

// RecordSweep はスイープで削除されたエントリ数を記録する。
func (c *Collector) RecordSweep(table string, removed int) {
	c.sweptEntries.WithLabelValues(table).Add(float64(removed))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないRecorder。メトリクス不要なテストやツールで使用する。
type Nop struct{}

func (Nop) RecordLogin(string, time.Duration) {}
func (Nop) RecordRateLimitRejection(string) {}
func (Nop) RecordTokenRejection(string) {}
func (Nop) RecordCSRFRejection(string) {}
func (Nop) RecordSweep(string, int) {}
func (Nop) RecordHTTPStatus(int) {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
