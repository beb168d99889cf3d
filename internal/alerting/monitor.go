package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claimstack/errtrack/internal/metrics"
	"github.com/claimstack/errtrack/internal/models"
)

const (
	ruleErrorRate     = "error_rate"
	ruleCriticalBurst = "critical_burst"
)

// MetricsSource provides the live metrics the monitor evaluates. The store
// satisfies it.
type MetricsSource interface {
	GetMetrics(ctx context.Context) (models.ErrorMetrics, error)
}

// Config sets the thresholds and the re-emission cooldown.
type Config struct {
	// ErrorRateThreshold is errors per minute over the trailing hour.
	ErrorRateThreshold float64
	// CriticalThreshold is the tolerated count of critical errors in the
	// trailing hour.
	CriticalThreshold int
	// Cooldown suppresses re-emission of the same rule within the window.
	// Zero restores the reference heartbeat behaviour of alerting on every
	// breaching capture.
	Cooldown time.Duration
}

// Monitor checks metrics after every persisted capture.
type Monitor struct {
	source MetricsSource
	sinks  []Sink
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewMonitor constructs a monitor delivering to the given sinks.
func NewMonitor(source MetricsSource, cfg Config, logger *slog.Logger, sinks ...Sink) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if len(sinks) == 0 {
		sinks = []Sink{LogSink{Logger: logger}}
	}
	return &Monitor{
		source:   source,
		sinks:    sinks,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// SetClock overrides the time source used for cooldown bookkeeping.
func (m *Monitor) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Check evaluates thresholds for the just-captured error. Faults while
// fetching metrics or delivering alerts are logged and swallowed; capture is
// never interrupted.
func (m *Monitor) Check(ctx context.Context, captured *models.ErrorDetails) {
	if m.source == nil {
		return
	}
	current, err := m.source.GetMetrics(ctx)
	if err != nil {
		m.logger.Warn("alerting metrics fetch failed", slog.Any("error", err))
		return
	}

	if m.cfg.ErrorRateThreshold > 0 && current.ErrorRate > m.cfg.ErrorRateThreshold {
		m.emit(ctx, Alert{
			Rule:     ruleErrorRate,
			Severity: AlertWarning,
			Message: fmt.Sprintf("error rate %.2f/min exceeds threshold %.2f/min",
				current.ErrorRate, m.cfg.ErrorRateThreshold),
			Metric:    current.ErrorRate,
			Threshold: m.cfg.ErrorRateThreshold,
		})
	}

	if captured != nil && captured.Severity == models.SeverityCritical {
		if m.cfg.CriticalThreshold > 0 && current.CriticalLastHour > m.cfg.CriticalThreshold {
			m.emit(ctx, Alert{
				Rule:     ruleCriticalBurst,
				Severity: AlertCritical,
				Message: fmt.Sprintf("%d critical errors in the last hour exceeds threshold %d",
					current.CriticalLastHour, m.cfg.CriticalThreshold),
				Metric:    float64(current.CriticalLastHour),
				Threshold: float64(m.cfg.CriticalThreshold),
			})
		}
	}
}

func (m *Monitor) emit(ctx context.Context, alert Alert) {
	now := m.now().UTC()

	if m.cfg.Cooldown > 0 {
		m.mu.Lock()
		if last, ok := m.lastSent[alert.Rule]; ok && now.Sub(last) < m.cfg.Cooldown {
			m.mu.Unlock()
			return
		}
		m.lastSent[alert.Rule] = now
		m.mu.Unlock()
	}

	alert.ID = uuid.NewString()
	alert.TriggeredAt = now
	metrics.ObserveAlert(string(alert.Severity))

	for _, sink := range m.sinks {
		if err := sink.Send(ctx, alert); err != nil {
			m.logger.Warn("alert delivery failed",
				slog.String("rule", alert.Rule), slog.Any("error", err))
		}
	}
}
