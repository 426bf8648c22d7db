package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "puzzlehunt"

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	RequestCounter       *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	NotificationsSent    *prometheus.CounterVec
	NotificationQueue    prometheus.Gauge
	PollerCycles         prometheus.Counter
	PollerAnnouncements  *prometheus.CounterVec
	PollerItemErrors     *prometheus.CounterVec
	SubmissionsProcessed *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		NotificationsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "sent_total",
				Help:      "Outbound notifications by category and result (success, error, dropped)",
			},
			[]string{"category", "result"},
		),
		NotificationQueue: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "queue_depth",
				Help:      "Messages waiting for a dispatcher worker",
			},
		),
		PollerCycles: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "cycles_total",
				Help:      "Completed availability scans",
			},
		),
		PollerAnnouncements: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "announcements_total",
				Help:      "Issues and hints announced, by kind",
			},
			[]string{"kind"},
		),
		PollerItemErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "item_errors_total",
				Help:      "Items skipped because their evaluation or dispatch failed",
			},
			[]string{"kind"},
		),
		SubmissionsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "answers",
				Name:      "submissions_total",
				Help:      "Answer submissions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// NewNop returns collectors registered nowhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
