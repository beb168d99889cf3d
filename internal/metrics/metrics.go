package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	capturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errtrack",
			Name:      "captures_total",
			Help:      "Total captured errors, partitioned by type and severity.",
		},
		[]string{"type", "severity"},
	)

	dropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errtrack",
			Name:      "drops_total",
			Help:      "Captures discarded before persistence, partitioned by reason.",
		},
		[]string{"reason"},
	)

	captureDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "errtrack",
			Name:      "capture_seconds",
			Help:      "Capture pipeline latency in seconds, from intake to persisted.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	autoResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errtrack",
			Name:      "autoresolve_total",
			Help:      "Auto-resolution attempts, partitioned by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errtrack",
			Name:      "alerts_total",
			Help:      "Operational alerts emitted, partitioned by severity.",
		},
		[]string{"severity"},
	)
)

// Register attaches errtrack collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		capturesTotal,
		dropsTotal,
		captureDurationSeconds,
		autoResolveTotal,
		alertsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCapture records a persisted capture with its pipeline latency.
func ObserveCapture(errType, severity string, duration time.Duration) {
	capturesTotal.WithLabelValues(errType, severity).Inc()
	if duration < 0 {
		duration = 0
	}
	captureDurationSeconds.Observe(duration.Seconds())
}

// ObserveDrop records a capture discarded before persistence.
func ObserveDrop(reason string) {
	dropsTotal.WithLabelValues(reason).Inc()
}

// ObserveAutoResolve records a strategy attempt and its outcome.
func ObserveAutoResolve(strategy string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	autoResolveTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveAlert records an emitted alert.
func ObserveAlert(severity string) {
	alertsTotal.WithLabelValues(severity).Inc()
}
