package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimstack/errtrack/internal/cache"
	"github.com/claimstack/errtrack/internal/store"
	"github.com/claimstack/errtrack/internal/tracker"
)

type testServer struct {
	server  *Server
	tracker *tracker.Tracker
	store   *store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.New(cache.NewMemoryProvider(), store.DefaultTTL, nil)
	tr := tracker.New(tracker.Config{Environment: "test", SampleRate: 1}, st, nil)
	srv := NewServer(tr, st, nil, Config{Address: ":0", Version: "1.0.0"})
	return &testServer{server: srv, tracker: tr, store: st}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func (ts *testServer) drain(t *testing.T) {
	t.Helper()
	require.True(t, ts.tracker.Flush(2*time.Second))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngestCaptureError(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/errors", `{
		"action": "capture_error",
		"type": "javascript",
		"name": "TypeError",
		"message": "cannot read properties of undefined",
		"userId": "user-a",
		"metadata": {"password": "p@ss"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result captureResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	require.NotEmpty(t, result.ErrorID)
	ts.drain(t)

	// The stored record is queryable and sanitized.
	rec = ts.do(t, http.MethodGet, "/api/errors?scope=details&errorId="+result.ErrorID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "p@ss")
	assert.Contains(t, rec.Body.String(), "[REDACTED]")

	var response struct {
		Error struct {
			ID       string `json:"id"`
			Severity string `json:"severity"`
		} `json:"error"`
		Meta queryMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, result.ErrorID, response.Error.ID)
	assert.Equal(t, "critical", response.Error.Severity)
	assert.Equal(t, "details", response.Meta.Scope)
	assert.Equal(t, "1.0.0", response.Meta.Version)
}

func TestIngestCaptureErrorNested(t *testing.T) {
	ts := newTestServer(t)

	// Forwarded records arrive nested under an error key.
	rec := ts.do(t, http.MethodPost, "/api/errors", `{
		"action": "capture_error",
		"error": {"type": "api", "name": "APIError", "message": "upstream failed"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result captureResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ErrorID)
}

func TestIngestCaptureAPIError(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/errors", `{
		"action": "capture_api_error",
		"endpoint": "/api/claims",
		"method": "POST",
		"statusCode": 500
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ts.drain(t)

	rec = ts.do(t, http.MethodGet, "/api/errors?scope=all&type=api", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Aggregations []struct {
			Type   string `json:"type"`
			Impact string `json:"impact"`
		} `json:"aggregations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Aggregations, 1)
	assert.Equal(t, "api", response.Aggregations[0].Type)
	assert.Equal(t, "critical", response.Aggregations[0].Impact)
}

func TestIngestAddBreadcrumb(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/errors", `{
		"action": "add_breadcrumb",
		"breadcrumb": {"category": "navigation", "message": "/claims", "level": "info"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	crumbs := ts.tracker.Breadcrumbs().Snapshot()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "/claims", crumbs[0].Message)
}

func TestIngestResolveError(t *testing.T) {
	ts := newTestServer(t)

	id := ts.tracker.Capture(httptest.NewRequest(http.MethodPost, "/", nil).Context(), tracker.Event{
		Type: "api", Name: "APIError", Message: "upstream failed",
	})
	require.NotEmpty(t, id)
	ts.drain(t)

	rec := ts.do(t, http.MethodPost, "/api/errors",
		`{"action": "resolve_error", "errorId": "`+id+`", "resolvedBy": "oncall"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/errors?scope=details&errorId="+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resolved":true`)
	assert.Contains(t, rec.Body.String(), `"resolvedBy":"oncall"`)
}

func TestIngestResolveUnknownID(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/errors",
		`{"action": "resolve_error", "errorId": "nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestRejectsBadEnvelopes(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown action", `{"action": "detonate"}`},
		{"missing action", `{"type": "api"}`},
		{"invalid json", `{`},
		{"unknown error type", `{"action": "capture_error", "type": "cosmic", "name": "X", "message": "y"}`},
		{"resolve without id", `{"action": "resolve_error"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/errors", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestQueryScopeAll(t *testing.T) {
	ts := newTestServer(t)

	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	ts.tracker.Capture(ctx, tracker.Event{Type: "database", Name: "DatabaseError", Message: "Connection timeout to db-7, query took 30021ms"})
	ts.tracker.Capture(ctx, tracker.Event{Type: "api", Name: "APIError", Message: "claim fetch failed"})
	ts.drain(t)

	rec := ts.do(t, http.MethodGet, "/api/errors?timeRange=24h", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Aggregations []json.RawMessage `json:"aggregations"`
		Metrics      *struct {
			TotalErrors int `json:"totalErrors"`
		} `json:"metrics"`
		Meta queryMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Len(t, response.Aggregations, 2)
	require.NotNil(t, response.Metrics)
	assert.Equal(t, 2, response.Metrics.TotalErrors)
	assert.Equal(t, "all", response.Meta.Scope)
	assert.Equal(t, "24h", response.Meta.TimeRange)
}

func TestQueryValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"bad time range", "/api/errors?timeRange=90d", http.StatusBadRequest},
		{"bad scope", "/api/errors?scope=everything", http.StatusBadRequest},
		{"bad resolved", "/api/errors?resolved=maybe", http.StatusBadRequest},
		{"bad type", "/api/errors?type=cosmic", http.StatusBadRequest},
		{"details without id", "/api/errors?scope=details", http.StatusBadRequest},
		{"details unknown id", "/api/errors?scope=details&errorId=nope", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tc.target, "")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t)

	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	ts.tracker.Capture(ctx, tracker.Event{Type: "api", Name: "APIError", Message: "claim fetch failed"})
	ts.drain(t)

	rec := ts.do(t, http.MethodGet, "/api/errors/export?timeRange=24h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "errors.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "fingerprint,count,affectedUsers,trend,impact,firstSeen,lastSeen", lines[0])
}
