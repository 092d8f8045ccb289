package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookEventsTotal,
		webhookProcessSeconds,
		webhookEventLagSeconds,
		webhookSignatureFailures,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Processed webhook deliveries by event type and outcome (applied/stale/duplicate/orphan/error).",
		},
		[]string{"type", "result"},
	)

	webhookProcessSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_process_seconds",
			Help:    "End-to-end processing latency per webhook delivery.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	webhookEventLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_event_lag_seconds",
			Help:    "Delay between the event's occurrence and its processing.",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 3600, 21600},
		},
	)

	webhookSignatureFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Deliveries rejected for a bad or missing signature.",
		},
	)
)

func IncWebhookEvent(eventType, result string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(result)).Inc()
}

func ObserveWebhookProcess(eventType string, d time.Duration) {
	webhookProcessSeconds.WithLabelValues(norm(eventType)).Observe(d.Seconds())
}

func ObserveWebhookLag(occurredAt, processedAt time.Time) {
	if lag := processedAt.Sub(occurredAt); lag > 0 {
		webhookEventLagSeconds.Observe(lag.Seconds())
	}
}

func IncWebhookSignatureFailure() {
	webhookSignatureFailures.Inc()
}
