package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
// nil レシーバでも記録メソッドは安全に呼び出せる
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約結果の総数（outcome: booked, sold_out, already_booked, not_found, conflict_exhausted, error）
	BookingOutcomesTotal *prometheus.CounterVec

	// 楽観的ロック競合の総数（再試行の発生回数）
	BookingConflictsTotal prometheus.Counter

	// 1回の予約要求で消費した試行回数
	BookingAttempts prometheus.Histogram

	// 台帳監査で検出した不整合の総数
	LedgerAuditViolationsTotal prometheus.Counter

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		BookingOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_outcomes_total",
				Help: "Total number of booking requests by final outcome",
			},
			[]string{"outcome"},
		),
		BookingConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "booking_conflicts_total",
				Help: "Total number of optimistic concurrency conflicts observed while booking",
			},
		),
		BookingAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "booking_attempts",
				Help:    "Number of attempts consumed by a single booking request",
				Buckets: []float64{1, 2, 3, 5, 8, 13},
			},
		),
		LedgerAuditViolationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_audit_violations_total",
				Help: "Total number of seat ledgers whose counts disagree with their bookings",
			},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BookingOutcomesTotal,
		m.BookingConflictsTotal,
		m.BookingAttempts,
		m.LedgerAuditViolationsTotal,
		m.DistributedLockDuration,
	)

	return m
}

// RecordBooking は予約要求1件分の結果と試行回数を記録する
func (m *Metrics) RecordBooking(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.BookingOutcomesTotal.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.BookingAttempts.Observe(float64(attempts))
	}
}

// RecordConflict は楽観的ロック競合を1件記録する
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.BookingConflictsTotal.Inc()
}

// RecordAuditViolations は監査で検出した不整合件数を加算する
func (m *Metrics) RecordAuditViolations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LedgerAuditViolationsTotal.Add(float64(n))
}

// ObserveLock は分散ロック操作の所要時間を記録する
func (m *Metrics) ObserveLock(operation string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	m.DistributedLockDuration.WithLabelValues(operation, status).Observe(elapsed.Seconds())
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
