package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimstack/errtrack/internal/cache"
	"github.com/claimstack/errtrack/internal/models"
	"github.com/claimstack/errtrack/internal/sanitize"
	"github.com/claimstack/errtrack/internal/store"
)

type fakePersister struct {
	mu      sync.Mutex
	records []*models.ErrorDetails
	err     error
}

func (f *fakePersister) Persist(_ context.Context, record *models.ErrorDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakePersister) all() []*models.ErrorDetails {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.ErrorDetails(nil), f.records...)
}

func newTracker(t *testing.T, cfg Config, persister Persister, opts ...Option) *Tracker {
	t.Helper()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1
	}
	return New(cfg, persister, nil, opts...)
}

func mustFlush(t *testing.T, tr *Tracker) {
	t.Helper()
	require.True(t, tr.Flush(2*time.Second), "tracker did not drain in time")
}

func TestCaptureAssemblesRecord(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{Environment: "test", Version: "1.4.2"}, persister)

	tr.AddBreadcrumb(models.CategoryNavigation, "/claims", models.LevelInfo, nil)

	id := tr.Capture(context.Background(), Event{
		Type:    models.TypeJavaScript,
		Name:    "TypeError",
		Message: "cannot read properties of undefined",
		UserID:  "user-a",
		Metadata: map[string]any{
			"password": "p@ss",
			"city":     "Tampa",
		},
		Tags: []string{"ui"},
	})
	require.NotEmpty(t, id)
	mustFlush(t, tr)

	records := persister.all()
	require.Len(t, records, 1)
	record := records[0]

	assert.Equal(t, id, record.ID)
	assert.NotEmpty(t, record.Fingerprint)
	assert.Equal(t, models.SeverityCritical, record.Severity, "TypeError classifies critical")
	assert.Equal(t, "test", record.Context.Environment)
	assert.Equal(t, "1.4.2", record.Context.Version)
	assert.Equal(t, "user-a", record.Context.UserID)
	assert.Equal(t, sanitize.RedactedValue, record.Metadata["password"])
	assert.Equal(t, "Tampa", record.Metadata["city"])
	require.Len(t, record.Breadcrumbs, 1)
	assert.Equal(t, "/claims", record.Breadcrumbs[0].Message)
	assert.Equal(t, 1, record.OccurrenceCount)
}

func TestCaptureExplicitSeverityOverridesClassifier(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{}, persister)

	tr.Capture(context.Background(), Event{
		Type:     models.TypeJavaScript,
		Name:     "TypeError",
		Message:  "would classify critical",
		Severity: models.SeverityLow,
	})
	mustFlush(t, tr)

	records := persister.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.SeverityLow, records[0].Severity)
}

func TestCaptureIgnorePatterns(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{
		IgnorePatterns: []string{"ResizeObserver", `^Script error\.?$`},
	}, persister)

	assert.Empty(t, tr.Capture(context.Background(), Event{
		Type: models.TypeJavaScript, Name: "Error",
		Message: "ResizeObserver loop limit exceeded",
	}))
	assert.Empty(t, tr.Capture(context.Background(), Event{
		Type: models.TypeJavaScript, Name: "Error",
		Message: "Script error.",
	}))
	assert.NotEmpty(t, tr.Capture(context.Background(), Event{
		Type: models.TypeJavaScript, Name: "Error",
		Message: "genuine failure",
	}))
	mustFlush(t, tr)

	assert.Len(t, persister.all(), 1)
}

func TestCaptureSamplingBoundaries(t *testing.T) {
	t.Run("rate zero drops everything", func(t *testing.T) {
		persister := &fakePersister{}
		tr := New(Config{SampleRate: 0}, persister, nil)
		tr.SetSampler(func() float64 { return 0 })

		for i := 0; i < 10; i++ {
			assert.Empty(t, tr.Capture(context.Background(), Event{
				Type: models.TypeAPI, Name: "APIError", Message: "x",
			}))
		}
		mustFlush(t, tr)
		assert.Empty(t, persister.all())
	})

	t.Run("rate one keeps everything", func(t *testing.T) {
		persister := &fakePersister{}
		tr := New(Config{SampleRate: 1}, persister, nil)
		tr.SetSampler(func() float64 { return 0.999999 })

		for i := 0; i < 10; i++ {
			assert.NotEmpty(t, tr.Capture(context.Background(), Event{
				Type: models.TypeAPI, Name: "APIError", Message: "x",
			}))
		}
		mustFlush(t, tr)
		assert.Len(t, persister.all(), 10)
	})
}

func TestCaptureBeforeSend(t *testing.T) {
	t.Run("veto aborts with no side effects", func(t *testing.T) {
		persister := &fakePersister{}
		tr := newTracker(t, Config{
			BeforeSend: func(*models.ErrorDetails) *models.ErrorDetails { return nil },
		}, persister)

		assert.Empty(t, tr.Capture(context.Background(), Event{
			Type: models.TypeAPI, Name: "APIError", Message: "x",
		}))
		mustFlush(t, tr)
		assert.Empty(t, persister.all())
	})

	t.Run("transform rewrites the record", func(t *testing.T) {
		persister := &fakePersister{}
		tr := newTracker(t, Config{
			BeforeSend: func(record *models.ErrorDetails) *models.ErrorDetails {
				record.Tags = append(record.Tags, "scrubbed")
				return record
			},
		}, persister)

		tr.Capture(context.Background(), Event{Type: models.TypeAPI, Name: "APIError", Message: "x"})
		mustFlush(t, tr)

		records := persister.all()
		require.Len(t, records, 1)
		assert.Contains(t, records[0].Tags, "scrubbed")
	})
}

func TestCaptureCountsPerFingerprint(t *testing.T) {
	provider := cache.NewMemoryProvider()
	st := store.New(provider, store.DefaultTTL, nil)
	tr := newTracker(t, Config{Environment: "test"}, st)

	const n = 4
	for i := 0; i < n; i++ {
		// Dynamic ids must still land in one aggregation.
		id := tr.Capture(context.Background(), Event{
			Type:    models.TypeAPI,
			Name:    "NotFoundError",
			Message: fmt.Sprintf("claim not found at /claims/%d", 100+i),
		})
		require.NotEmpty(t, id)
	}
	mustFlush(t, tr)

	aggs, err := st.GetAggregations(context.Background(), models.Range24h, models.AggregationFilter{})
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, n, aggs[0].Count)
}

func TestCaptureSurvivesPersistFailure(t *testing.T) {
	persister := &fakePersister{err: errors.New("store down")}
	tr := newTracker(t, Config{}, persister)

	// Fail-safe contract: the caller still gets an id and no panic escapes.
	id := tr.Capture(context.Background(), Event{Type: models.TypeAPI, Name: "APIError", Message: "x"})
	assert.NotEmpty(t, id)
	mustFlush(t, tr)
}

func TestCaptureAPIErrorAdapter(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{}, persister)

	tr.CaptureAPIError(context.Background(), APIError{
		Endpoint:   "/api/claims",
		Method:     http.MethodPost,
		StatusCode: 500,
	})
	mustFlush(t, tr)

	records := persister.all()
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, models.TypeAPI, record.Type)
	assert.Equal(t, models.SeverityCritical, record.Severity)
	assert.Equal(t, "/api/claims", record.Metadata["endpoint"])
	assert.Equal(t, 500, record.Metadata["statusCode"])
	assert.Contains(t, record.Tags, "api")
}

func TestCaptureAIErrorAdapter(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{}, persister)

	tr.CaptureAIError(context.Background(), AIError{
		Provider:     "openai",
		Model:        "gpt-4o",
		Operation:    "damage-analysis",
		Message:      "rate limited",
		TokensUsed:   2048,
		CostEstimate: 0.12,
	})
	mustFlush(t, tr)

	records := persister.all()
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, models.TypeAI, record.Type)
	assert.Equal(t, models.SeverityHigh, record.Severity)
	assert.Equal(t, "openai", record.Metadata["provider"])
	assert.Equal(t, 2048, record.Metadata["tokensUsed"])
	assert.Contains(t, record.Tags, "ai")
	assert.Contains(t, record.Tags, "openai")
}

func TestCaptureDatabaseErrorAdapter(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{}, persister)

	tr.CaptureDatabaseError(context.Background(), DatabaseError{
		Query:      "SELECT * FROM claims WHERE id = $1",
		Table:      "claims",
		Operation:  "select",
		DurationMS: 30021,
		Message:    "Connection timeout to db-7, query took 30021ms",
	})
	mustFlush(t, tr)

	records := persister.all()
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, models.TypeDatabase, record.Type)
	assert.Equal(t, models.SeverityCritical, record.Severity, "timeout signal escalates past the database default")
	assert.Equal(t, "claims", record.Metadata["table"])
	assert.Contains(t, record.Tags, "database")
}

func TestTransportBreadcrumbsAndCapture(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{}, persister)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewTransport(tr, nil)}

	resp, err := client.Get(server.URL + "/ok")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = client.Get(server.URL + "/boom")
	require.NoError(t, err)
	resp.Body.Close()

	mustFlush(t, tr)

	// One breadcrumb per call regardless of outcome.
	crumbs := tr.Breadcrumbs().Snapshot()
	require.Len(t, crumbs, 2)
	assert.Equal(t, models.CategoryHTTP, crumbs[0].Category)
	assert.Equal(t, models.LevelInfo, crumbs[0].Level)
	assert.Equal(t, models.LevelError, crumbs[1].Level)

	// Only the >= 400 response captured an error.
	records := persister.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.TypeAPI, records[0].Type)
	assert.Equal(t, 502, records[0].Metadata["statusCode"])
}

func TestCapturePanic(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{}, persister)

	func() {
		defer tr.Recover(context.Background())
		panic("claim pipeline exploded")
	}()
	mustFlush(t, tr)

	records := persister.all()
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, models.TypeJavaScript, record.Type)
	assert.Equal(t, "panic", record.Name)
	assert.Equal(t, models.SeverityCritical, record.Severity)
	assert.Contains(t, record.Message, "claim pipeline exploded")
	assert.NotEmpty(t, record.Stack)
}

func TestGoCapturesBackgroundPanics(t *testing.T) {
	persister := &fakePersister{}
	tr := newTracker(t, Config{}, persister)

	tr.Go(func() {
		panic("background job failed")
	})

	// The capture happens on the goroutine's way out, so wait for the
	// record rather than racing its dispatch registration.
	require.Eventually(t, func() bool {
		return len(persister.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	records := persister.all()
	assert.Contains(t, records[0].Message, "background job failed")
}
