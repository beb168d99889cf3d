// Package tracker is the capture layer: it assembles full error records from
// the various entry points and hands them to the store, the auto-resolution
// engine, and the alerting monitor.
package tracker

import (
	"context"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claimstack/errtrack/internal/breadcrumbs"
	"github.com/claimstack/errtrack/internal/fingerprint"
	"github.com/claimstack/errtrack/internal/metrics"
	"github.com/claimstack/errtrack/internal/models"
	"github.com/claimstack/errtrack/internal/sanitize"
	"github.com/claimstack/errtrack/internal/utils"
)

// Drop reasons reported to metrics.
const (
	dropIgnored    = "ignored"
	dropSampled    = "sampled"
	dropBeforeSend = "before_send"
)

// Persister writes records downstream. The store satisfies it.
type Persister interface {
	Persist(ctx context.Context, record *models.ErrorDetails) error
}

// ResolutionRunner attempts automated remediation. The resolution engine
// satisfies it.
type ResolutionRunner interface {
	Run(ctx context.Context, record *models.ErrorDetails) bool
}

// AlertChecker evaluates alert thresholds after persistence. The alerting
// monitor satisfies it.
type AlertChecker interface {
	Check(ctx context.Context, captured *models.ErrorDetails)
}

// Forwarder ships records to a remote collector. The ingest client satisfies
// it; it is optional.
type Forwarder interface {
	Forward(ctx context.Context, record *models.ErrorDetails) error
}

// BeforeSendFunc can rewrite or veto a record just before persistence.
// Returning nil aborts the capture with no side effects.
type BeforeSendFunc func(record *models.ErrorDetails) *models.ErrorDetails

// Config controls capture behaviour.
type Config struct {
	Environment string
	Version     string
	// SampleRate is the probability an eligible error is captured, in
	// [0, 1]. Zero drops everything, one keeps everything.
	SampleRate float64
	// IgnorePatterns discard matching messages before any other work.
	// Each pattern matches as a literal substring and, when it compiles,
	// as a regular expression.
	IgnorePatterns []string
	MaxBreadcrumbs int
	BeforeSend     BeforeSendFunc
}

// Event is the input to Capture. Severity, when set, overrides the
// classifier.
type Event struct {
	Type     models.ErrorType
	Name     string
	Message  string
	Stack    string
	Source   *models.SourceLocation
	Severity models.Severity

	// HTTPStatus feeds severity classification when the error came from an
	// HTTP exchange. Zero means not applicable.
	HTTPStatus int

	UserID         string
	SessionID      string
	RequestID      string
	RequestURL     string
	RequestMethod  string
	RequestHeaders map[string]string
	RequestBody    string

	Metadata map[string]any
	Tags     []string
}

type ignoreRule struct {
	literal string
	pattern *regexp.Regexp
}

// Tracker is an explicit, dependency-injected capture pipeline instance.
// Construct one at startup and pass it by reference; there is no package
// singleton.
type Tracker struct {
	cfg         Config
	store       Persister
	resolutions ResolutionRunner
	alerts      AlertChecker
	forward     Forwarder
	crumbs      *breadcrumbs.Tracker
	sanitizer   *sanitize.Sanitizer
	logger      *slog.Logger
	latencies   *utils.LatencyTracker

	ignores   []ignoreRule
	now       func() time.Time
	randFloat func() float64

	wg sync.WaitGroup
}

// Option tweaks optional tracker collaborators.
type Option func(*Tracker)

// WithForwarder ships every persisted record to a remote collector as well.
func WithForwarder(f Forwarder) Option {
	return func(t *Tracker) { t.forward = f }
}

// WithResolutions wires the auto-resolution engine.
func WithResolutions(r ResolutionRunner) Option {
	return func(t *Tracker) { t.resolutions = r }
}

// WithAlerts wires the alerting monitor.
func WithAlerts(a AlertChecker) Option {
	return func(t *Tracker) { t.alerts = a }
}

// New constructs a Tracker over the given store.
func New(cfg Config, store Persister, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate < 0 {
		cfg.SampleRate = 0
	}
	if cfg.SampleRate > 1 {
		cfg.SampleRate = 1
	}

	sanitizer := sanitize.New(nil)
	t := &Tracker{
		cfg:       cfg,
		store:     store,
		crumbs:    breadcrumbs.New(cfg.MaxBreadcrumbs, sanitizer),
		sanitizer: sanitizer,
		logger:    logger,
		latencies: utils.NewLatencyTracker(1024),
		ignores:   compileIgnores(cfg.IgnorePatterns),
		now:       time.Now,
		randFloat: rand.Float64,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func compileIgnores(patterns []string) []ignoreRule {
	rules := make([]ignoreRule, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		rule := ignoreRule{literal: p}
		if compiled, err := regexp.Compile(p); err == nil {
			rule.pattern = compiled
		}
		rules = append(rules, rule)
	}
	return rules
}

// SetClock overrides the time source for deterministic tests.
func (t *Tracker) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
		t.crumbs.SetClock(now)
	}
}

// SetSampler overrides the random source used by the sampling gate.
func (t *Tracker) SetSampler(randFloat func() float64) {
	if randFloat != nil {
		t.randFloat = randFloat
	}
}

// Capture runs the full pipeline for an event and returns the generated
// error id. An empty id means the event was discarded (ignored, sampled out,
// or vetoed by BeforeSend) with zero side effects; callers must not treat
// that as failure. Persistence, auto-resolution, and alerting run as
// fire-and-forget follow-ups so the calling site is never blocked on I/O.
func (t *Tracker) Capture(ctx context.Context, event Event) string {
	start := t.now()

	if t.ignored(event.Message) {
		metrics.ObserveDrop(dropIgnored)
		return ""
	}
	if t.cfg.SampleRate < 1 && t.randFloat() >= t.cfg.SampleRate {
		metrics.ObserveDrop(dropSampled)
		return ""
	}

	record := t.assemble(event)

	if t.cfg.BeforeSend != nil {
		record = t.cfg.BeforeSend(record)
		if record == nil {
			metrics.ObserveDrop(dropBeforeSend)
			return ""
		}
	}

	t.dispatch(record, start)
	return record.ID
}

func (t *Tracker) ignored(message string) bool {
	for _, rule := range t.ignores {
		if strings.Contains(message, rule.literal) {
			return true
		}
		if rule.pattern != nil && rule.pattern.MatchString(message) {
			return true
		}
	}
	return false
}

func (t *Tracker) assemble(event Event) *models.ErrorDetails {
	now := t.now().UTC()

	severity := event.Severity
	if !models.ValidSeverity(string(severity)) {
		severity = fingerprint.ClassifySeverity(event.Type, event.Name, event.Message, event.HTTPStatus)
	}

	errCtx := models.ErrorContext{
		Timestamp:     now,
		Environment:   t.cfg.Environment,
		Version:       t.cfg.Version,
		UserID:        event.UserID,
		SessionID:     event.SessionID,
		RequestID:     event.RequestID,
		RequestURL:    event.RequestURL,
		RequestMethod: event.RequestMethod,
		RequestBody:   event.RequestBody,
	}
	if len(event.RequestHeaders) > 0 {
		errCtx.RequestHeaders = t.sanitizer.SanitizeStrings(event.RequestHeaders)
	}

	record := &models.ErrorDetails{
		ID:              uuid.NewString(),
		Fingerprint:     fingerprint.Compute(event.Type, event.Name, event.Message, event.Source),
		Type:            event.Type,
		Severity:        severity,
		Name:            event.Name,
		Message:         event.Message,
		Stack:           event.Stack,
		Source:          event.Source,
		Context:         errCtx,
		Tags:            append([]string(nil), event.Tags...),
		Breadcrumbs:     t.crumbs.Snapshot(),
		FirstOccurrence: now,
		LastOccurrence:  now,
		OccurrenceCount: 1,
	}
	if len(event.Metadata) > 0 {
		record.Metadata = t.sanitizer.Sanitize(event.Metadata)
	}
	return record
}

// dispatch hands the record downstream without blocking the caller. The
// telemetry layer is fail-safe: every fault is logged and swallowed.
func (t *Tracker) dispatch(record *models.ErrorDetails, start time.Time) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("capture pipeline panicked", slog.Any("panic", r))
			}
		}()

		ctx := context.Background()

		if t.store != nil {
			if err := t.store.Persist(ctx, record); err != nil {
				t.logger.Warn("failed to persist error record",
					slog.String("errorId", record.ID), slog.Any("error", err))
				return
			}
		}

		duration := t.now().Sub(start)
		metrics.ObserveCapture(string(record.Type), string(record.Severity), duration)
		t.latencies.Observe(duration)
		if count := t.latencies.Count(); count >= 50 && count%50 == 0 {
			t.logger.Info("capture latency",
				slog.Duration("p95", t.latencies.Percentile(95)),
				slog.Int("samples", count))
		}

		if t.forward != nil {
			if err := t.forward.Forward(ctx, record); err != nil {
				t.logger.Warn("failed to forward error record",
					slog.String("errorId", record.ID), slog.Any("error", err))
			}
		}

		if t.resolutions != nil {
			t.resolutions.Run(ctx, record)
		}
		if t.alerts != nil {
			t.alerts.Check(ctx, record)
		}
	}()
}

// AddBreadcrumb records a contextual event for attachment to future errors.
func (t *Tracker) AddBreadcrumb(category models.BreadcrumbCategory, message string, level models.BreadcrumbLevel, data map[string]any) {
	t.crumbs.Add(category, message, level, data)
}

// Breadcrumbs exposes the breadcrumb buffer, mainly for passive sources.
func (t *Tracker) Breadcrumbs() *breadcrumbs.Tracker {
	return t.crumbs
}

// Flush waits for in-flight captures to drain, up to the timeout. It reports
// whether everything finished in time.
func (t *Tracker) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
