package models

import "time"

// ErrorType enumerates the failure domains the tracker understands.
type ErrorType string

const (
	TypeJavaScript ErrorType = "javascript"
	TypeAPI        ErrorType = "api"
	TypeDatabase   ErrorType = "database"
	TypeAI         ErrorType = "ai"
	TypeNetwork    ErrorType = "network"
	TypeValidation ErrorType = "validation"
	TypeSecurity   ErrorType = "security"
	TypeBusiness   ErrorType = "business"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidType reports whether the given string is a known error type.
func ValidType(t string) bool {
	switch ErrorType(t) {
	case TypeJavaScript, TypeAPI, TypeDatabase, TypeAI, TypeNetwork, TypeValidation, TypeSecurity, TypeBusiness:
		return true
	}
	return false
}

// ValidSeverity reports whether the given string is a known severity.
func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SourceLocation pinpoints where in the host application an error originated.
type SourceLocation struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Function string `json:"function,omitempty"`
}

// ErrorContext carries the ambient environment captured alongside an error.
// It is immutable once attached to a record.
type ErrorContext struct {
	Timestamp      time.Time         `json:"timestamp"`
	Environment    string            `json:"environment"`
	UserID         string            `json:"userId,omitempty"`
	SessionID      string            `json:"sessionId,omitempty"`
	RequestID      string            `json:"requestId,omitempty"`
	RequestURL     string            `json:"requestUrl,omitempty"`
	RequestMethod  string            `json:"requestMethod,omitempty"`
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`
	RequestBody    string            `json:"requestBody,omitempty"`
	Version        string            `json:"version,omitempty"`
}

// ResolutionType distinguishes automatic from manual resolution.
type ResolutionType string

const (
	ResolutionAuto   ResolutionType = "auto"
	ResolutionManual ResolutionType = "manual"
)

// Resolution records how and when an error was closed out.
type Resolution struct {
	Type        ResolutionType `json:"type"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	ResolvedBy  string         `json:"resolvedBy,omitempty"`
}

// ErrorDetails is the full record persisted for a captured error.
type ErrorDetails struct {
	ID          string          `json:"id"`
	Fingerprint string          `json:"fingerprint"`
	Type        ErrorType       `json:"type"`
	Severity    Severity        `json:"severity"`
	Name        string          `json:"name"`
	Message     string          `json:"message"`
	Stack       string          `json:"stack,omitempty"`
	Source      *SourceLocation `json:"source,omitempty"`
	Context     ErrorContext    `json:"context"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Breadcrumbs []Breadcrumb    `json:"breadcrumbs,omitempty"`

	FirstOccurrence time.Time   `json:"firstOccurrence"`
	LastOccurrence  time.Time   `json:"lastOccurrence"`
	OccurrenceCount int         `json:"occurrenceCount"`
	Resolved        bool        `json:"resolved"`
	Resolution      *Resolution `json:"resolution,omitempty"`
}
