package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 工作流 / 计时器 / 状态变更计数
	AssigneeMutationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignee_mutation_total",
			Help: "Total number of assignee progress mutations",
		},
		[]string{"action", "result"}, // result: ok, rejected, error
	)

	// 乐观锁冲突次数
	VersionConflictCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_version_conflict_total",
			Help: "Total number of optimistic version conflicts on task writes",
		},
		[]string{"operation", "outcome"}, // outcome: retried, exhausted
	)

	AnalyticsQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_query_duration_seconds",
			Help:    "Analytics report computation time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"report"},
	)

	AnalyticsCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_cache_total",
			Help: "Analytics cache lookups",
		},
		[]string{"report", "result"}, // result: hit, miss, error
	)

	// Outbox 发布结果
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_total",
			Help: "Outbox events publish attempts",
		},
		[]string{"routing_key", "result"}, // result: sent, failed, breaker_open
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(statement string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func IncrementAssigneeMutation(action, result string) {
	AssigneeMutationCount.WithLabelValues(action, result).Inc()
}

func IncrementVersionConflict(operation, outcome string) {
	VersionConflictCount.WithLabelValues(operation, outcome).Inc()
}

func RecordAnalyticsQuery(report string, duration time.Duration) {
	AnalyticsQueryDuration.WithLabelValues(report).Observe(duration.Seconds())
}

func IncrementAnalyticsCache(report, result string) {
	AnalyticsCacheCount.WithLabelValues(report, result).Inc()
}

func IncrementOutboxPublish(routingKey, result string) {
	OutboxPublishCount.WithLabelValues(routingKey, result).Inc()
}
