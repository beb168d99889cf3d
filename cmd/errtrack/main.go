package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claimstack/errtrack/internal/alerting"
	"github.com/claimstack/errtrack/internal/api"
	"github.com/claimstack/errtrack/internal/cache"
	"github.com/claimstack/errtrack/internal/config"
	"github.com/claimstack/errtrack/internal/ingest"
	"github.com/claimstack/errtrack/internal/metrics"
	"github.com/claimstack/errtrack/internal/resolution"
	"github.com/claimstack/errtrack/internal/store"
	"github.com/claimstack/errtrack/internal/tracker"
	"github.com/claimstack/errtrack/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting errtrack",
		slog.String("address", cfg.Server.Address),
		slog.String("environment", cfg.Tracker.Environment))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var provider cache.Provider
	switch cfg.Store.Backend {
	case "redis":
		redisProvider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Store.Addr,
			Username:     cfg.Store.Username,
			Password:     cfg.Store.Password,
			DB:           cfg.Store.DB,
			PoolSize:     cfg.Store.PoolSize,
			DialTimeout:  cfg.Store.DialTimeout,
			ReadTimeout:  cfg.Store.ReadTimeout,
			WriteTimeout: cfg.Store.WriteTimeout,
		})
		if err != nil {
			logger.Error("redis store unavailable", slog.Any("error", err))
			os.Exit(1)
		}
		provider = redisProvider
	case "memory":
		provider = cache.NewMemoryProvider()
	default:
		provider = cache.NoopProvider{}
	}
	defer provider.Close()

	errorStore := store.New(provider, cfg.Store.TTL, logger)

	strategies, unknown := resolution.BuildStrategies(cfg.Resolution.Strategies, resolution.Hooks{})
	if len(unknown) > 0 {
		logger.Warn("ignoring unknown resolution strategies", slog.Any("strategies", unknown))
	}
	engine := resolution.NewEngine(cfg.Resolution.Enabled, strategies, errorStore, logger)

	sinks := []alerting.Sink{alerting.LogSink{Logger: logger}}
	if cfg.Alerting.WebhookURL != "" {
		sinks = append(sinks, alerting.NewWebhookSink(cfg.Alerting.WebhookURL, cfg.Alerting.WebhookTimeout))
	}
	monitor := alerting.NewMonitor(errorStore, alerting.Config{
		ErrorRateThreshold: cfg.Alerting.ErrorRateThreshold,
		CriticalThreshold:  cfg.Alerting.CriticalThreshold,
		Cooldown:           cfg.Alerting.Cooldown,
	}, logger, sinks...)

	trackerOpts := []tracker.Option{
		tracker.WithResolutions(engine),
		tracker.WithAlerts(monitor),
	}
	if cfg.Forward.CollectorURL != "" {
		trackerOpts = append(trackerOpts,
			tracker.WithForwarder(ingest.NewClient(cfg.Forward.CollectorURL, cfg.Forward.Timeout)))
	}
	errorTracker := tracker.New(tracker.Config{
		Environment:    cfg.Tracker.Environment,
		Version:        cfg.Tracker.Version,
		SampleRate:     cfg.Tracker.SampleRate,
		IgnorePatterns: cfg.Tracker.IgnorePatterns,
		MaxBreadcrumbs: cfg.Tracker.MaxBreadcrumbs,
	}, errorStore, logger, trackerOpts...)

	server := api.NewServer(errorTracker, errorStore, logger, api.Config{
		Address: cfg.Server.Address,
		Version: cfg.Tracker.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Let in-flight captures land before the process exits.
	if !errorTracker.Flush(cfg.Server.GracefulTimeout) {
		logger.Warn("capture pipeline did not drain before shutdown")
	}
	logger.Info("errtrack stopped")
}
