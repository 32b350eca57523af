package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 单次补全调用延迟（秒）
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypersales_generation_latency_seconds",
			Help:    "Latency of a single generation backend call in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"mode", "status"},
	)

	// 每封邮件的结果计数
	EmailOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypersales_email_outcomes_total",
			Help: "Total number of per-lead generation outcomes",
		},
		[]string{"outcome"}, // outcome: ok, parse_miss, failed, skipped
	)

	// 批次结果计数
	BatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypersales_batch_outcomes_total",
			Help: "Total number of generation batches by final status",
		},
		[]string{"status"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypersales_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordGenerationLatency 记录补全调用延迟
func RecordGenerationLatency(mode, status string, duration time.Duration) {
	GenerationLatency.WithLabelValues(mode, status).Observe(duration.Seconds())
}

// IncrementEmailOutcome 增加单封邮件结果计数
func IncrementEmailOutcome(outcome string) {
	EmailOutcomes.WithLabelValues(outcome).Inc()
}

// IncrementBatchOutcome 增加批次结果计数
func IncrementBatchOutcome(status string) {
	BatchOutcomes.WithLabelValues(status).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
