package resolution

import (
	"context"
	"errors"
	"strings"

	"github.com/claimstack/errtrack/internal/models"
)

// Strategy is a named remediation action attempted against an unresolved
// error. Applies gates a strategy to the error shapes it understands; Apply
// performs the remediation and returns nil on success. Strategies that mutate
// shared state must tolerate concurrent invocation for different errors.
type Strategy interface {
	Name() string
	Applies(record *models.ErrorDetails) bool
	Apply(ctx context.Context, record *models.ErrorDetails) error
}

// Strategy names understood by the configuration.
const (
	StrategyRetry          = "retry"
	StrategyFallback       = "fallback"
	StrategyCacheClear     = "cache_clear"
	StrategyServiceRestart = "service_restart"
)

var errNoHook = errors.New("no handler wired for strategy")

// RetryFunc re-attempts the failed downstream operation. Success is whatever
// the downstream system reports.
type RetryFunc func(ctx context.Context, record *models.ErrorDetails) error

// retryStrategy is the generic re-attempt remediation.
type retryStrategy struct {
	retry RetryFunc
}

// NewRetryStrategy builds the retry strategy around the given hook.
func NewRetryStrategy(retry RetryFunc) Strategy {
	return &retryStrategy{retry: retry}
}

func (s *retryStrategy) Name() string { return StrategyRetry }

func (s *retryStrategy) Applies(*models.ErrorDetails) bool { return true }

func (s *retryStrategy) Apply(ctx context.Context, record *models.ErrorDetails) error {
	if s.retry == nil {
		return errNoHook
	}
	return s.retry(ctx, record)
}

// SwitchFunc moves AI traffic to an alternate provider. It must be safe to
// call concurrently; switching twice to the same provider is a no-op.
type SwitchFunc func(ctx context.Context, record *models.ErrorDetails) error

// fallbackStrategy switches AI providers. It only applies to ai-typed errors.
type fallbackStrategy struct {
	switchProvider SwitchFunc
}

// NewFallbackStrategy builds the provider-fallback strategy.
func NewFallbackStrategy(switchProvider SwitchFunc) Strategy {
	return &fallbackStrategy{switchProvider: switchProvider}
}

func (s *fallbackStrategy) Name() string { return StrategyFallback }

func (s *fallbackStrategy) Applies(record *models.ErrorDetails) bool {
	return record.Type == models.TypeAI
}

func (s *fallbackStrategy) Apply(ctx context.Context, record *models.ErrorDetails) error {
	if s.switchProvider == nil {
		return errNoHook
	}
	return s.switchProvider(ctx, record)
}

// ClearFunc flushes the cache region implicated by the error. It must be
// idempotent.
type ClearFunc func(ctx context.Context, record *models.ErrorDetails) error

// cacheClearStrategy flushes stale cache state. It only applies to database-
// or cache-flavoured errors.
type cacheClearStrategy struct {
	clear ClearFunc
}

// NewCacheClearStrategy builds the cache-clear strategy.
func NewCacheClearStrategy(clear ClearFunc) Strategy {
	return &cacheClearStrategy{clear: clear}
}

func (s *cacheClearStrategy) Name() string { return StrategyCacheClear }

func (s *cacheClearStrategy) Applies(record *models.ErrorDetails) bool {
	if record.Type == models.TypeDatabase {
		return true
	}
	return strings.Contains(strings.ToLower(record.Message), "cache")
}

func (s *cacheClearStrategy) Apply(ctx context.Context, record *models.ErrorDetails) error {
	if s.clear == nil {
		return errNoHook
	}
	return s.clear(ctx, record)
}

// RestartFunc restarts the implicated downstream service.
type RestartFunc func(ctx context.Context, record *models.ErrorDetails) error

// serviceRestartStrategy bounces a downstream service. Without a wired hook
// it always declines, which keeps the engine moving down the list.
type serviceRestartStrategy struct {
	restart RestartFunc
}

// NewServiceRestartStrategy builds the service-restart strategy.
func NewServiceRestartStrategy(restart RestartFunc) Strategy {
	return &serviceRestartStrategy{restart: restart}
}

func (s *serviceRestartStrategy) Name() string { return StrategyServiceRestart }

func (s *serviceRestartStrategy) Applies(record *models.ErrorDetails) bool {
	return record.Type == models.TypeDatabase || record.Type == models.TypeNetwork || record.Type == models.TypeAPI
}

func (s *serviceRestartStrategy) Apply(ctx context.Context, record *models.ErrorDetails) error {
	if s.restart == nil {
		return errNoHook
	}
	return s.restart(ctx, record)
}

// Hooks carries the environment-specific handlers the built-in strategies
// delegate to. Nil hooks make the corresponding strategy decline.
type Hooks struct {
	Retry          RetryFunc
	SwitchProvider SwitchFunc
	ClearCache     ClearFunc
	Restart        RestartFunc
}

// BuildStrategies maps configured strategy names to built-ins, preserving
// order. Unknown names are skipped and reported.
func BuildStrategies(names []string, hooks Hooks) (strategies []Strategy, unknown []string) {
	for _, name := range names {
		switch name {
		case StrategyRetry:
			strategies = append(strategies, NewRetryStrategy(hooks.Retry))
		case StrategyFallback:
			strategies = append(strategies, NewFallbackStrategy(hooks.SwitchProvider))
		case StrategyCacheClear:
			strategies = append(strategies, NewCacheClearStrategy(hooks.ClearCache))
		case StrategyServiceRestart:
			strategies = append(strategies, NewServiceRestartStrategy(hooks.Restart))
		default:
			unknown = append(unknown, name)
		}
	}
	return strategies, unknown
}
