package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Queue metrics
	QueueDepth       *prometheus.GaugeVec
	QueueDelayed     prometheus.Gauge
	QueueInFlight    prometheus.Gauge
	ItemsInFlight    prometheus.Gauge
	ItemsEnqueued    prometheus.Counter
	ItemsExpired     prometheus.Counter
	TerminalFailures prometheus.Counter

	// Delivery metrics
	DeliveryAttempts *prometheus.CounterVec
	DeliveryLatency  *prometheus.HistogramVec
	FallbackTotal    *prometheus.CounterVec

	// Evaluation metrics
	Evaluations *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Current number of queued delivery items per priority tier",
		}, []string{"tier"}),
		QueueDelayed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_delayed",
			Help:      "Current number of delivery items waiting on a retry or schedule",
		}),
		QueueInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_in_flight",
			Help:      "Delivery items currently holding a lease, across all workers",
		}),
		ItemsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "items_in_flight",
			Help:      "Delivery items being processed by this worker process",
		}),
		ItemsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "items_enqueued_total",
			Help:      "Total number of delivery items enqueued",
		}),
		ItemsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "items_expired_total",
			Help:      "Total number of delivery items discarded past their expiry",
		}),
		TerminalFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "terminal_failures_total",
			Help:      "Delivery items that exhausted fallback and retries",
		}),
		DeliveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_attempts_total",
			Help:      "Channel send attempts by channel and outcome",
		}, []string{"channel", "status"}),
		DeliveryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one item across its channels",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		FallbackTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fallback_total",
			Help:      "Fallbacks to the next channel after a send failure",
		}, []string{"from_channel", "to_channel"}),
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evaluations_total",
			Help:      "Preference evaluations by decision reason",
		}, []string{"reason", "deliver"}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

// NewForTest builds an unregistered metrics set safe for parallel tests.
func NewForTest() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth:       f.NewGaugeVec(prometheus.GaugeOpts{Name: "queue_depth"}, []string{"tier"}),
		QueueDelayed:     f.NewGauge(prometheus.GaugeOpts{Name: "queue_delayed"}),
		QueueInFlight:    f.NewGauge(prometheus.GaugeOpts{Name: "queue_in_flight"}),
		ItemsInFlight:    f.NewGauge(prometheus.GaugeOpts{Name: "items_in_flight"}),
		ItemsEnqueued:    f.NewCounter(prometheus.CounterOpts{Name: "items_enqueued_total"}),
		ItemsExpired:     f.NewCounter(prometheus.CounterOpts{Name: "items_expired_total"}),
		TerminalFailures: f.NewCounter(prometheus.CounterOpts{Name: "terminal_failures_total"}),
		DeliveryAttempts: f.NewCounterVec(prometheus.CounterOpts{Name: "delivery_attempts_total"}, []string{"channel", "status"}),
		DeliveryLatency:  f.NewHistogramVec(prometheus.HistogramOpts{Name: "delivery_duration_seconds"}, []string{"channel"}),
		FallbackTotal:    f.NewCounterVec(prometheus.CounterOpts{Name: "fallback_total"}, []string{"from_channel", "to_channel"}),
		Evaluations:      f.NewCounterVec(prometheus.CounterOpts{Name: "evaluations_total"}, []string{"reason", "deliver"}),
		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "database_operations_total",
		}, []string{"operation", "status"}),
		DatabaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "database_operation_duration_seconds",
		}, []string{"operation"}),
	}
}
