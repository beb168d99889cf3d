// Package api exposes the collector's HTTP surface: the tagged-action ingest
// endpoint, the dashboard query endpoint, and the CSV export.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/claimstack/errtrack/internal/models"
	"github.com/claimstack/errtrack/internal/tracker"
)

// Capturer is the slice of the tracker the ingest endpoint needs.
type Capturer interface {
	Capture(ctx context.Context, event tracker.Event) string
	CaptureAPIError(ctx context.Context, apiErr tracker.APIError) string
	AddBreadcrumb(category models.BreadcrumbCategory, message string, level models.BreadcrumbLevel, data map[string]any)
}

// Reader is the slice of the store the query endpoints need.
type Reader interface {
	Get(ctx context.Context, id string) (*models.ErrorDetails, error)
	GetAggregations(ctx context.Context, timeRange models.TimeRange, filter models.AggregationFilter) ([]models.ErrorAggregation, error)
	GetMetrics(ctx context.Context) (models.ErrorMetrics, error)
	Resolve(ctx context.Context, id string, resolution models.Resolution) (bool, error)
	ExportCSV(ctx context.Context, timeRange models.TimeRange) ([]byte, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Address string
	Version string
}

// Server serves the collector API over echo.
type Server struct {
	echo    *echo.Echo
	capture Capturer
	reader  Reader
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

// NewServer wires routes and middleware over the given collaborators.
func NewServer(capture Capturer, reader Reader, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				slog.String("method", c.Request().Method),
				slog.String("uri", c.Request().RequestURI),
				slog.Int("status", c.Response().Status),
				slog.Duration("duration", time.Since(start)),
				slog.String("requestId", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		capture: capture,
		reader:  reader,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	s.echo.POST("/api/errors", s.handleIngest)
	s.echo.GET("/api/errors", s.handleQuery)
	s.echo.GET("/api/errors/export", s.handleExport)
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() *echo.Echo { return s.echo }

// SetClock overrides the time source for deterministic tests.
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	s.logger.Info("starting http server", slog.String("addr", s.cfg.Address))
	return s.echo.Start(s.cfg.Address)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
