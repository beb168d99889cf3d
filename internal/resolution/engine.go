// Package resolution tries configured remediation strategies against
// unresolved errors until one succeeds or the list is exhausted.
package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/claimstack/errtrack/internal/metrics"
	"github.com/claimstack/errtrack/internal/models"
)

// Resolver persists the resolution outcome. The store satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, id string, resolution models.Resolution) (bool, error)
}

// Engine walks an ordered strategy list for each unresolved error.
type Engine struct {
	enabled    bool
	strategies []Strategy
	resolver   Resolver
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine constructs the engine. A disabled engine ignores every record.
func NewEngine(enabled bool, strategies []Strategy, resolver Resolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		enabled:    enabled,
		strategies: strategies,
		resolver:   resolver,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source for resolution timestamps.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Run attempts remediation for the record. The first strategy reporting
// success marks the error auto-resolved and stops the walk; failures are
// logged and the walk proceeds. Exhausting the list leaves the record
// pending, to be retried on its next occurrence. Run reports whether the
// record was resolved.
func (e *Engine) Run(ctx context.Context, record *models.ErrorDetails) bool {
	if !e.enabled || record == nil || record.Resolved {
		return false
	}

	for _, strategy := range e.strategies {
		if !strategy.Applies(record) {
			continue
		}

		err := e.apply(ctx, strategy, record)
		metrics.ObserveAutoResolve(strategy.Name(), err == nil)
		if err != nil {
			e.logger.Debug("resolution strategy failed",
				slog.String("strategy", strategy.Name()),
				slog.String("errorId", record.ID),
				slog.Any("error", err))
			continue
		}

		resolution := models.Resolution{
			Type:        models.ResolutionAuto,
			Description: fmt.Sprintf("Auto-resolved using %s", strategy.Name()),
			Timestamp:   e.now().UTC(),
		}
		if e.resolver != nil {
			if _, resolveErr := e.resolver.Resolve(ctx, record.ID, resolution); resolveErr != nil {
				e.logger.Warn("failed to persist auto-resolution",
					slog.String("errorId", record.ID), slog.Any("error", resolveErr))
			}
		}
		record.Resolved = true
		record.Resolution = &resolution
		e.logger.Info("error auto-resolved",
			slog.String("errorId", record.ID),
			slog.String("strategy", strategy.Name()))
		return true
	}

	return false
}

// apply shields the engine from panicking strategies; a panic counts as a
// failed attempt.
func (e *Engine) apply(ctx context.Context, strategy Strategy, record *models.ErrorDetails) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return strategy.Apply(ctx, record)
}
