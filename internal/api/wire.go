package api

import (
	"encoding/json"
	"fmt"

	"github.com/claimstack/errtrack/internal/models"
)

// Ingest actions. The set is closed: anything else is a client error.
const (
	ActionCaptureError    = "capture_error"
	ActionCaptureAPIError = "capture_api_error"
	ActionAddBreadcrumb   = "add_breadcrumb"
	ActionResolveError    = "resolve_error"
)

// CaptureErrorPayload carries a generic error capture.
type CaptureErrorPayload struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Message  string `json:"message"`
	Stack    string `json:"stack,omitempty"`
	Severity string `json:"severity,omitempty"`

	Source *models.SourceLocation `json:"source,omitempty"`

	UserID         string            `json:"userId,omitempty"`
	SessionID      string            `json:"sessionId,omitempty"`
	RequestID      string            `json:"requestId,omitempty"`
	RequestURL     string            `json:"url,omitempty"`
	RequestMethod  string            `json:"method,omitempty"`
	RequestHeaders map[string]string `json:"headers,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
}

// CaptureAPIErrorPayload carries a failed API exchange.
type CaptureAPIErrorPayload struct {
	Endpoint     string `json:"endpoint"`
	Method       string `json:"method"`
	StatusCode   int    `json:"statusCode"`
	Message      string `json:"message,omitempty"`
	RequestBody  string `json:"requestBody,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`
	UserID       string `json:"userId,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// AddBreadcrumbPayload carries a contextual event.
type AddBreadcrumbPayload struct {
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Level    string         `json:"level"`
	Data     map[string]any `json:"data,omitempty"`
}

// ResolveErrorPayload marks a stored error resolved.
type ResolveErrorPayload struct {
	ErrorID     string `json:"errorId"`
	ResolvedBy  string `json:"resolvedBy,omitempty"`
	Description string `json:"description,omitempty"`
}

// ingestRequest is the raw envelope; the action field selects which payload
// the remaining bytes decode into.
type ingestRequest struct {
	Action string `json:"action"`
}

// decodeIngest turns a request body into exactly one typed payload. Unknown
// or missing actions are rejected rather than passed through.
func decodeIngest(body []byte) (any, error) {
	var envelope ingestRequest
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}

	switch envelope.Action {
	case ActionCaptureError:
		var payload CaptureErrorPayload
		if err := json.Unmarshal(body, &wrapper{"error", &payload}); err != nil {
			return nil, err
		}
		if !models.ValidType(payload.Type) {
			return nil, fmt.Errorf("unknown error type %q", payload.Type)
		}
		return payload, nil
	case ActionCaptureAPIError:
		var payload CaptureAPIErrorPayload
		if err := json.Unmarshal(body, &wrapper{"request", &payload}); err != nil {
			return nil, err
		}
		return payload, nil
	case ActionAddBreadcrumb:
		var payload AddBreadcrumbPayload
		if err := json.Unmarshal(body, &wrapper{"breadcrumb", &payload}); err != nil {
			return nil, err
		}
		return payload, nil
	case ActionResolveError:
		var payload ResolveErrorPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		if payload.ErrorID == "" {
			return nil, fmt.Errorf("errorId is required")
		}
		return payload, nil
	case "":
		return nil, fmt.Errorf("action is required")
	default:
		return nil, fmt.Errorf("unknown action %q", envelope.Action)
	}
}

// wrapper decodes a payload that may arrive either nested under a named key
// or flattened at the top level of the envelope.
type wrapper struct {
	key  string
	dest any
}

func (w *wrapper) UnmarshalJSON(data []byte) error {
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err != nil {
		return err
	}
	if nested, ok := keyed[w.key]; ok {
		return json.Unmarshal(nested, w.dest)
	}
	return json.Unmarshal(data, w.dest)
}
