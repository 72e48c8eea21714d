package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Emails handed to the transport, by kind (notification / digest).
	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of emails accepted by the transport",
		},
		[]string{"kind"},
	)

	// Transport failures, by kind.
	EmailSendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_send_failures_total",
			Help: "Total number of emails the transport rejected",
		},
		[]string{"kind"},
	)

	// Recipients dropped before sending, by reason
	// (opted_out, quota_exhausted, daily_limit).
	EmailsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_skipped_total",
			Help: "Total number of recipients skipped during dispatch",
		},
		[]string{"reason"},
	)

	// Delivery records written per notification.
	NotificationFanoutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_fanout_size",
			Help:    "Number of recipients resolved per notification",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to ~512
		},
	)

	// Digest scheduler outcomes (completed / partial / failed).
	DigestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_runs_total",
			Help: "Total number of digest send cycles by outcome",
		},
		[]string{"outcome"},
	)

	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	SlowQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries over the slow-query threshold",
		},
	)
)

// RecordEmailSent increments the sent counter for a kind.
func RecordEmailSent(kind string) {
	EmailsSentTotal.WithLabelValues(kind).Inc()
}

// RecordEmailFailure increments the failure counter for a kind.
func RecordEmailFailure(kind string) {
	EmailSendFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordEmailsSkipped adds n skipped recipients for a reason.
func RecordEmailsSkipped(reason string, n int) {
	EmailsSkippedTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordFanout observes the recipient count of one notification.
func RecordFanout(recipients int) {
	NotificationFanoutSize.Observe(float64(recipients))
}

// RecordDigestRun increments the digest outcome counter.
func RecordDigestRun(outcome string) {
	DigestRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordMQConsumeLatency observes one consumed message.
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration observes one served request.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery counts one slow query.
func IncrementSlowQuery() {
	SlowQueriesTotal.Inc()
}
