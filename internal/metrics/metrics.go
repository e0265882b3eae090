// Package metrics exposes Prometheus instrumentation for the worker and
// a small chi-routed admin server for health and counter inspection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	messagesConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailworker_messages_consumed_total",
			Help: "Total number of queue entries dequeued.",
		},
	)
	messagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailworker_messages_delivered_total",
			Help: "Total number of payloads accepted by the downstream endpoint.",
		},
	)
	messagesDeadLettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailworker_messages_dead_lettered_total",
			Help: "Total number of entries written to the dead-letter queue.",
		},
	)
	messagesMalformed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailworker_messages_malformed_total",
			Help: "Total number of undecodable queue payloads dropped.",
		},
	)
	bouncesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailworker_bounces_skipped_total",
			Help: "Total number of messages classified as bounces and not delivered.",
		},
	)
	deliveryRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailworker_delivery_retries_total",
			Help: "Total number of delivery attempts beyond the first.",
		},
	)
	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailworker_delivery_duration_seconds",
			Help:    "Delivery call duration including retries, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	queueErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailworker_queue_errors_total",
			Help: "Total number of queue store errors by operation.",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		messagesConsumed,
		messagesDelivered,
		messagesDeadLettered,
		messagesMalformed,
		bouncesSkipped,
		deliveryRetries,
		deliveryDuration,
		queueErrors,
	)
}

func IncConsumed()       { messagesConsumed.Inc() }
func IncDelivered()      { messagesDelivered.Inc() }
func IncDeadLettered()   { messagesDeadLettered.Inc() }
func IncMalformed()      { messagesMalformed.Inc() }
func IncBouncesSkipped() { bouncesSkipped.Inc() }

func AddDeliveryRetries(n int) {
	if n > 0 {
		deliveryRetries.Add(float64(n))
	}
}

func ObserveDeliveryDuration(d time.Duration) {
	deliveryDuration.Observe(d.Seconds())
}

func IncQueueError(operation string) {
	queueErrors.WithLabelValues(operation).Inc()
}
