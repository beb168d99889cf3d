// Package alerting compares live error metrics against configured thresholds
// and emits operational alerts to a monitoring sink.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// AlertSeverity grades an operational alert.
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is the structured payload delivered to the monitoring sink. It
// carries the triggering metric and the threshold it breached.
type Alert struct {
	ID          string        `json:"id"`
	Rule        string        `json:"rule"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	Metric      float64       `json:"metric"`
	Threshold   float64       `json:"threshold"`
	TriggeredAt time.Time     `json:"triggeredAt"`
}

// Sink delivers alerts to a monitoring system. Delivery failures are logged
// by the monitor, never retried, and never interrupt capture.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// LogSink writes alerts to the logger. The default when no webhook is
// configured.
type LogSink struct {
	Logger *slog.Logger
}

// Send logs the alert at a level matching its severity.
func (s LogSink) Send(_ context.Context, alert Alert) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		slog.String("rule", alert.Rule),
		slog.Float64("metric", alert.Metric),
		slog.Float64("threshold", alert.Threshold),
	}
	if alert.Severity == AlertCritical {
		logger.Error(alert.Message, attrs...)
	} else {
		logger.Warn(alert.Message, attrs...)
	}
	return nil
}

// WebhookSink posts alerts as JSON to a monitoring endpoint.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink builds a sink targeting url with a bounded timeout.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Send posts the alert, treating any non-2xx response as a failure.
func (s *WebhookSink) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert sink responded %d", resp.StatusCode)
	}
	return nil
}
