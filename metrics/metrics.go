package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type CoordinatorMetrics struct {
	Notifications *prometheus.CounterVec
	NotifyLatency *prometheus.HistogramVec
	Failures      *prometheus.CounterVec
	ActiveGroups  prometheus.Gauge
	GroupLifetime prometheus.Histogram
	HandlerPanics prometheus.Counter
}

// New registers the coordinator metrics on reg. A nil reg leaves them
// unregistered, which is what tests want.
func New(reg prometheus.Registerer) *CoordinatorMetrics {
	m := &CoordinatorMetrics{
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txgroup",
			Name:      "notifications_total",
			Help:      "Unit notifications by requested state and outcome.",
		}, []string{"state", "outcome"}),
		NotifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "txgroup",
			Name:      "notify_duration_ms",
			Help:      "Unit notification latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"state"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txgroup",
			Name:      "notify_failures_total",
			Help:      "Notification failures handled, by kind.",
		}, []string{"kind"}),
		ActiveGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "txgroup",
			Name:      "active_groups",
			Help:      "Groups begun and not yet closed.",
		}),
		GroupLifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txgroup",
			Name:      "group_lifetime_ms",
			Help:      "Time from begin to close in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txgroup",
			Name:      "failure_handler_panics_total",
			Help:      "Panics recovered inside the notification failure handler.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Notifications, m.NotifyLatency, m.Failures, m.ActiveGroups, m.GroupLifetime, m.HandlerPanics)
	}

	return m
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
