package tracker

import (
	"context"
	"fmt"

	"github.com/claimstack/errtrack/internal/models"
)

// APIError describes a failed API exchange for CaptureAPIError.
type APIError struct {
	Endpoint     string
	Method       string
	StatusCode   int
	Message      string
	RequestBody  string
	ResponseBody string
	UserID       string
	SessionID    string
	RequestID    string
}

// CaptureAPIError captures a failed API call, populating request/response
// metadata and api tags before delegating to Capture.
func (t *Tracker) CaptureAPIError(ctx context.Context, apiErr APIError) string {
	message := apiErr.Message
	if message == "" {
		message = fmt.Sprintf("%s %s failed with status %d", apiErr.Method, apiErr.Endpoint, apiErr.StatusCode)
	}

	return t.Capture(ctx, Event{
		Type:          models.TypeAPI,
		Name:          "APIError",
		Message:       message,
		HTTPStatus:    apiErr.StatusCode,
		UserID:        apiErr.UserID,
		SessionID:     apiErr.SessionID,
		RequestID:     apiErr.RequestID,
		RequestURL:    apiErr.Endpoint,
		RequestMethod: apiErr.Method,
		Metadata: map[string]any{
			"endpoint":     apiErr.Endpoint,
			"method":       apiErr.Method,
			"statusCode":   apiErr.StatusCode,
			"requestBody":  apiErr.RequestBody,
			"responseBody": apiErr.ResponseBody,
		},
		Tags: []string{"api", "http"},
	})
}

// AIError describes a failed AI-provider call for CaptureAIError.
type AIError struct {
	Provider     string
	Model        string
	Operation    string
	Message      string
	TokensUsed   int
	CostEstimate float64
	UserID       string
	SessionID    string
}

// CaptureAIError captures an AI-provider failure with provider, model, token,
// and cost metadata.
func (t *Tracker) CaptureAIError(ctx context.Context, aiErr AIError) string {
	message := aiErr.Message
	if message == "" {
		message = fmt.Sprintf("AI operation %s failed on %s/%s", aiErr.Operation, aiErr.Provider, aiErr.Model)
	}

	return t.Capture(ctx, Event{
		Type:      models.TypeAI,
		Name:      "AIProviderError",
		Message:   message,
		UserID:    aiErr.UserID,
		SessionID: aiErr.SessionID,
		Metadata: map[string]any{
			"provider":     aiErr.Provider,
			"model":        aiErr.Model,
			"operation":    aiErr.Operation,
			"tokensUsed":   aiErr.TokensUsed,
			"costEstimate": aiErr.CostEstimate,
		},
		Tags: []string{"ai", aiErr.Provider},
	})
}

// DatabaseError describes a failed data-layer operation for
// CaptureDatabaseError.
type DatabaseError struct {
	Query      string
	Table      string
	Operation  string
	DurationMS int64
	Message    string
	UserID     string
	SessionID  string
}

// CaptureDatabaseError captures a data-layer failure with query, table,
// operation, and duration metadata.
func (t *Tracker) CaptureDatabaseError(ctx context.Context, dbErr DatabaseError) string {
	message := dbErr.Message
	if message == "" {
		message = fmt.Sprintf("database %s on %s failed", dbErr.Operation, dbErr.Table)
	}

	return t.Capture(ctx, Event{
		Type:      models.TypeDatabase,
		Name:      "DatabaseError",
		Message:   message,
		UserID:    dbErr.UserID,
		SessionID: dbErr.SessionID,
		Metadata: map[string]any{
			"query":      dbErr.Query,
			"table":      dbErr.Table,
			"operation":  dbErr.Operation,
			"durationMs": dbErr.DurationMS,
		},
		Tags: []string{"database", dbErr.Table},
	})
}
