package fingerprint

import (
	"strings"

	"github.com/claimstack/errtrack/internal/models"
)

// criticalSignals are message fragments indicating the downstream system is
// down rather than misbehaving.
var criticalSignals = []string{
	"connection refused",
	"econnrefused",
	"timeout",
	"timed out",
	"internal server error",
	"500",
	"502",
	"503",
	"504",
}

// ClassifySeverity applies the default severity decision table. Rules are
// checked in priority order; the first match wins. httpStatus of zero means
// no HTTP status is known. Callers may override the result with an explicit
// severity.
func ClassifySeverity(errType models.ErrorType, name, message string, httpStatus int) models.Severity {
	lowerName := strings.ToLower(name)
	lowerMessage := strings.ToLower(message)

	if strings.Contains(lowerName, "referenceerror") || strings.Contains(lowerName, "typeerror") {
		return models.SeverityCritical
	}
	if httpStatus >= 500 {
		return models.SeverityCritical
	}
	for _, signal := range criticalSignals {
		if strings.Contains(lowerMessage, signal) {
			return models.SeverityCritical
		}
	}

	if errType == models.TypeAI || errType == models.TypeDatabase {
		return models.SeverityHigh
	}
	if httpStatus == 401 || httpStatus == 403 {
		return models.SeverityHigh
	}

	if httpStatus == 400 || httpStatus == 404 {
		return models.SeverityMedium
	}
	if errType == models.TypeAPI {
		return models.SeverityMedium
	}

	return models.SeverityLow
}
