package tracker

import (
	"fmt"
	"net/http"
	"time"

	"github.com/claimstack/errtrack/internal/models"
)

// Transport is an http.RoundTripper that observes every outgoing call: it
// records an http breadcrumb regardless of outcome and captures an API error
// for any response status >= 400 or transport failure. Instrumentation is an
// opt-in composition at the client boundary, not a patch of a shared default.
type Transport struct {
	Base    http.RoundTripper
	Tracker *Tracker
}

// NewTransport wraps base (or http.DefaultTransport when nil) with capture
// instrumentation.
func NewTransport(t *Tracker, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Tracker: t}
}

// RoundTrip implements http.RoundTripper.
func (tr *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := tr.Base.RoundTrip(req)
	duration := time.Since(start)

	crumbData := map[string]any{
		"url":        req.URL.String(),
		"method":     req.Method,
		"durationMs": duration.Milliseconds(),
	}
	level := models.LevelInfo
	if err != nil {
		crumbData["error"] = err.Error()
		level = models.LevelError
	} else {
		crumbData["status"] = resp.StatusCode
		if resp.StatusCode >= 400 {
			level = models.LevelError
		}
	}
	tr.Tracker.AddBreadcrumb(models.CategoryHTTP,
		fmt.Sprintf("%s %s", req.Method, req.URL.String()), level, crumbData)

	if err != nil {
		tr.Tracker.CaptureAPIError(req.Context(), APIError{
			Endpoint: req.URL.String(),
			Method:   req.Method,
			Message:  fmt.Sprintf("%s %s failed: %v", req.Method, req.URL.String(), err),
		})
		return nil, err
	}

	if resp.StatusCode >= 400 {
		tr.Tracker.CaptureAPIError(req.Context(), APIError{
			Endpoint:   req.URL.String(),
			Method:     req.Method,
			StatusCode: resp.StatusCode,
		})
	}

	return resp, nil
}
