package fingerprint

import (
	"testing"

	"github.com/claimstack/errtrack/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "timestamp, path id, and url",
			in:   "User 1699999999999 failed at /users/482 via https://api.x.com/y",
			want: "User [timestamp] failed at /users/[id] via [url]",
		},
		{
			name: "uuid",
			in:   "session 550e8400-e29b-41d4-a716-446655440000 expired",
			want: "session [uuid] expired",
		},
		{
			name: "short numbers untouched",
			in:   "retried 3 times in 250ms",
			want: "retried 3 times in 250ms",
		},
		{
			name: "url with numeric path not re-matched",
			in:   "fetch https://api.claims.io/claims/12345 failed",
			want: "fetch [url] failed",
		},
		{
			name: "multiple path ids",
			in:   "denied /claims/99 then /policies/4821",
			want: "denied /claims/[id] then /policies/[id]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestComputeDeterminism(t *testing.T) {
	source := &models.SourceLocation{File: "claims.js", Line: 42}

	variants := []string{
		"User 1699999999999 not found",
		"User 1700000000123 not found",
	}
	base := Compute(models.TypeAPI, "NotFoundError", variants[0], source)
	for _, msg := range variants[1:] {
		if got := Compute(models.TypeAPI, "NotFoundError", msg, source); got != base {
			t.Fatalf("dynamic message content changed fingerprint: %q vs %q", got, base)
		}
	}

	uuidVariants := []string{
		"claim 550e8400-e29b-41d4-a716-446655440000 rejected",
		"claim 7c9e6679-7425-40de-944b-e07fc1f90ae7 rejected",
	}
	a := Compute(models.TypeBusiness, "ClaimError", uuidVariants[0], nil)
	b := Compute(models.TypeBusiness, "ClaimError", uuidVariants[1], nil)
	if a != b {
		t.Fatalf("uuid content changed fingerprint: %q vs %q", a, b)
	}

	if len(base) != Length {
		t.Fatalf("fingerprint length = %d, want %d", len(base), Length)
	}
}

func TestComputeNonCollision(t *testing.T) {
	source := &models.SourceLocation{File: "claims.js", Line: 42}
	base := Compute(models.TypeAPI, "NotFoundError", "claim missing", source)

	if got := Compute(models.TypeDatabase, "NotFoundError", "claim missing", source); got == base {
		t.Fatal("different type collided")
	}
	if got := Compute(models.TypeAPI, "ValidationError", "claim missing", source); got == base {
		t.Fatal("different name collided")
	}
	if got := Compute(models.TypeAPI, "NotFoundError", "claim missing", &models.SourceLocation{File: "policies.js", Line: 42}); got == base {
		t.Fatal("different file collided")
	}
	if got := Compute(models.TypeAPI, "NotFoundError", "claim missing", &models.SourceLocation{File: "claims.js", Line: 43}); got == base {
		t.Fatal("different line collided")
	}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name       string
		errType    models.ErrorType
		errName    string
		message    string
		httpStatus int
		want       models.Severity
	}{
		{"http 500", models.TypeAPI, "APIError", "request failed", 500, models.SeverityCritical},
		{"reference error", models.TypeJavaScript, "ReferenceError", "x is not defined", 0, models.SeverityCritical},
		{"type error", models.TypeJavaScript, "TypeError", "cannot read prop", 0, models.SeverityCritical},
		{"connection refused", models.TypeNetwork, "FetchError", "connect ECONNREFUSED 10.0.0.2:5432", 0, models.SeverityCritical},
		{"db timeout", models.TypeDatabase, "QueryError", "Connection timeout to db-7, query took 30021ms", 0, models.SeverityCritical},
		{"http 401", models.TypeAPI, "APIError", "unauthorized", 401, models.SeverityHigh},
		{"http 403", models.TypeAPI, "APIError", "forbidden", 403, models.SeverityHigh},
		{"ai provider", models.TypeAI, "ProviderError", "model unavailable", 0, models.SeverityHigh},
		{"database plain", models.TypeDatabase, "QueryError", "syntax error", 0, models.SeverityHigh},
		{"http 404", models.TypeNetwork, "FetchError", "missing", 404, models.SeverityMedium},
		{"http 400", models.TypeNetwork, "FetchError", "bad request", 400, models.SeverityMedium},
		{"plain api", models.TypeAPI, "APIError", "unexpected shape", 0, models.SeverityMedium},
		{"plain message", models.TypeJavaScript, "Error", "something odd", 0, models.SeverityLow},
		{"validation", models.TypeValidation, "ValidationError", "field required", 0, models.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySeverity(tt.errType, tt.errName, tt.message, tt.httpStatus)
			if got != tt.want {
				t.Fatalf("ClassifySeverity(%s, %s, %q, %d) = %s, want %s",
					tt.errType, tt.errName, tt.message, tt.httpStatus, got, tt.want)
			}
		})
	}
}
