package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/claimstack/errtrack/internal/models"
	"github.com/claimstack/errtrack/internal/store"
	"github.com/claimstack/errtrack/internal/tracker"
)

type captureResult struct {
	Success bool   `json:"success"`
	ErrorID string `json:"errorId,omitempty"`
}

type queryMeta struct {
	Timestamp string `json:"timestamp"`
	Scope     string `json:"scope"`
	TimeRange string `json:"timeRange"`
	Version   string `json:"version"`
}

type queryResponse struct {
	Aggregations []models.ErrorAggregation `json:"aggregations,omitempty"`
	Metrics      *models.ErrorMetrics      `json:"metrics,omitempty"`
	Error        *models.ErrorDetails      `json:"error,omitempty"`
	Meta         queryMeta                 `json:"meta"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

// handleIngest accepts the tagged-action envelope. Each action decodes into
// exactly one typed payload; the switch below is exhaustive over that set.
func (s *Server) handleIngest(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}

	payload, err := decodeIngest(body)
	if err != nil {
		s.logger.Warn("rejected ingest request", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()

	switch p := payload.(type) {
	case CaptureErrorPayload:
		id := s.capture.Capture(ctx, tracker.Event{
			Type:           models.ErrorType(p.Type),
			Name:           p.Name,
			Message:        p.Message,
			Stack:          p.Stack,
			Source:         p.Source,
			Severity:       models.Severity(p.Severity),
			UserID:         p.UserID,
			SessionID:      p.SessionID,
			RequestID:      p.RequestID,
			RequestURL:     p.RequestURL,
			RequestMethod:  p.RequestMethod,
			RequestHeaders: p.RequestHeaders,
			Metadata:       p.Metadata,
			Tags:           p.Tags,
		})
		return c.JSON(http.StatusOK, captureResult{Success: true, ErrorID: id})

	case CaptureAPIErrorPayload:
		id := s.capture.CaptureAPIError(ctx, tracker.APIError{
			Endpoint:     p.Endpoint,
			Method:       p.Method,
			StatusCode:   p.StatusCode,
			Message:      p.Message,
			RequestBody:  p.RequestBody,
			ResponseBody: p.ResponseBody,
			UserID:       p.UserID,
			SessionID:    p.SessionID,
			RequestID:    p.RequestID,
		})
		return c.JSON(http.StatusOK, captureResult{Success: true, ErrorID: id})

	case AddBreadcrumbPayload:
		s.capture.AddBreadcrumb(
			models.BreadcrumbCategory(p.Category), p.Message,
			models.BreadcrumbLevel(p.Level), p.Data)
		return c.JSON(http.StatusOK, captureResult{Success: true})

	case ResolveErrorPayload:
		description := p.Description
		if description == "" {
			description = "Manually resolved"
		}
		found, err := s.reader.Resolve(ctx, p.ErrorID, models.Resolution{
			Type:        models.ResolutionManual,
			Description: description,
			Timestamp:   s.now().UTC(),
			ResolvedBy:  p.ResolvedBy,
		})
		if err != nil {
			s.logger.Error("resolve failed",
				slog.String("errorId", p.ErrorID), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, "resolve failed")
		}
		if !found {
			return echo.NewHTTPError(http.StatusNotFound, "unknown error id")
		}
		return c.JSON(http.StatusOK, captureResult{Success: true, ErrorID: p.ErrorID})

	default:
		// decodeIngest only emits the four payload types above.
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action")
	}
}

// handleQuery serves the dashboard read path. scope=all returns aggregations
// plus rollup metrics; scope=details returns a single record by errorId.
func (s *Server) handleQuery(c echo.Context) error {
	ctx := c.Request().Context()

	scope := c.QueryParam("scope")
	if scope == "" {
		scope = "all"
	}

	timeRange, err := models.ParseTimeRange(c.QueryParam("timeRange"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	meta := queryMeta{
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Scope:     scope,
		TimeRange: string(timeRange),
		Version:   s.cfg.Version,
	}

	switch scope {
	case "all":
		filter, err := parseFilter(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		aggregations, err := s.reader.GetAggregations(ctx, timeRange, filter)
		if err != nil {
			s.logger.Error("aggregation query failed", slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
		}
		metrics, err := s.reader.GetMetrics(ctx)
		if err != nil {
			s.logger.Error("metrics query failed", slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
		}
		return c.JSON(http.StatusOK, queryResponse{
			Aggregations: aggregations,
			Metrics:      &metrics,
			Meta:         meta,
		})

	case "details":
		id := c.QueryParam("errorId")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "errorId is required for scope=details")
		}
		record, err := s.reader.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown error id")
		}
		if err != nil {
			s.logger.Error("record query failed",
				slog.String("errorId", id), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
		}
		return c.JSON(http.StatusOK, queryResponse{Error: record, Meta: meta})

	default:
		return echo.NewHTTPError(http.StatusBadRequest, "scope must be all or details")
	}
}

func parseFilter(c echo.Context) (models.AggregationFilter, error) {
	var filter models.AggregationFilter

	if t := c.QueryParam("type"); t != "" {
		if !models.ValidType(t) {
			return filter, fmt.Errorf("unknown type %q", t)
		}
		filter.Type = models.ErrorType(t)
	}
	if sev := c.QueryParam("severity"); sev != "" {
		if !models.ValidSeverity(sev) {
			return filter, fmt.Errorf("unknown severity %q", sev)
		}
		filter.Severity = models.Severity(sev)
	}
	switch c.QueryParam("resolved") {
	case "":
	case "true":
		resolved := true
		filter.Resolved = &resolved
	case "false":
		resolved := false
		filter.Resolved = &resolved
	default:
		return filter, fmt.Errorf("resolved must be true or false")
	}
	return filter, nil
}

// handleExport streams the aggregation table as a CSV download.
func (s *Server) handleExport(c echo.Context) error {
	timeRange, err := models.ParseTimeRange(c.QueryParam("timeRange"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	data, err := s.reader.ExportCSV(c.Request().Context(), timeRange)
	if err != nil {
		s.logger.Error("csv export failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "export failed")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="errors.csv"`)
	return c.Blob(http.StatusOK, "text/csv", data)
}
