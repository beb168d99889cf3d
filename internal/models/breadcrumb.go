package models

import "time"

// BreadcrumbCategory labels the kind of contextual event recorded.
type BreadcrumbCategory string

const (
	CategoryNavigation BreadcrumbCategory = "navigation"
	CategoryUser       BreadcrumbCategory = "user"
	CategoryHTTP       BreadcrumbCategory = "http"
	CategoryConsole    BreadcrumbCategory = "console"
	CategoryQuery      BreadcrumbCategory = "query"
	CategoryAuth       BreadcrumbCategory = "auth"
)

// BreadcrumbLevel grades a breadcrumb's significance.
type BreadcrumbLevel string

const (
	LevelInfo    BreadcrumbLevel = "info"
	LevelWarning BreadcrumbLevel = "warning"
	LevelError   BreadcrumbLevel = "error"
)

// Breadcrumb is a timestamped contextual event recorded before an error,
// used to reconstruct the sequence leading to failure.
type Breadcrumb struct {
	Timestamp time.Time          `json:"timestamp"`
	Category  BreadcrumbCategory `json:"category"`
	Message   string             `json:"message"`
	Level     BreadcrumbLevel    `json:"level"`
	Data      map[string]any     `json:"data,omitempty"`
}
