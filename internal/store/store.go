// Package store persists error records and maintains per-fingerprint rolling
// aggregations on top of the cache provider contract.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/claimstack/errtrack/internal/cache"
	"github.com/claimstack/errtrack/internal/models"
	"github.com/claimstack/errtrack/internal/utils"
)

const (
	errorKeyPrefix = "errtrack:error:"
	aggKeyPrefix   = "errtrack:agg:"
	indexKey       = "errtrack:fingerprints"

	// DefaultTTL is the retention applied to records and aggregations.
	DefaultTTL = 7 * 24 * time.Hour

	// trendWindow sizes the two comparison windows for trend detection.
	// It spans a full hour so that any two occurrences within an hour of
	// each other land in the recent window and register as movement.
	trendWindow = time.Hour

	maxSimilarErrors = 5
	lockStripes      = 64
)

// ErrNotFound signals a lookup for an id or fingerprint that is not stored.
var ErrNotFound = errors.New("error record not found")

// indexEntry is the per-fingerprint row of the fingerprint index.
type indexEntry struct {
	LastSeen time.Time        `json:"lastSeen"`
	Type     models.ErrorType `json:"type"`
	Name     string           `json:"name"`
}

// Store writes records and aggregations through a cache.Provider.
//
// Aggregation updates are read-modify-write; the store routes every update
// for a fingerprint through one of a fixed set of striped mutexes so
// concurrent captures of the same fingerprint cannot lose increments within
// the process. SetNX guards first-writer creation across processes.
type Store struct {
	provider cache.Provider
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stripes [lockStripes]sync.Mutex
	indexMu sync.Mutex
}

// New creates a Store over the given provider. A zero ttl falls back to
// DefaultTTL.
func New(provider cache.Provider, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		provider: provider,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests use it to steer windows.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Persist writes the record keyed by id with TTL and folds it into the
// aggregation keyed by its fingerprint.
func (s *Store) Persist(ctx context.Context, record *models.ErrorDetails) error {
	if record == nil || record.ID == "" {
		return utils.NewAppError("store.Persist", "record missing id", nil)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return utils.NewAppError("store.Persist", "encode record", err)
	}
	if err := s.provider.Set(ctx, errorKeyPrefix+record.ID, payload, s.ttl); err != nil {
		return utils.NewAppError("store.Persist", "write record", err)
	}

	if err := s.updateAggregation(ctx, record); err != nil {
		return err
	}
	return s.updateIndex(ctx, record)
}

func (s *Store) updateAggregation(ctx context.Context, record *models.ErrorDetails) error {
	stripe := &s.stripes[stripeFor(record.Fingerprint)]
	stripe.Lock()
	defer stripe.Unlock()

	occurredAt := record.Context.Timestamp
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	key := aggKeyPrefix + record.Fingerprint
	agg, err := s.loadAggregation(ctx, record.Fingerprint)
	switch {
	case errors.Is(err, ErrNotFound):
		fresh := models.ErrorAggregation{
			Fingerprint:      record.Fingerprint,
			Type:             record.Type,
			Name:             record.Name,
			Count:            1,
			FirstSeen:        occurredAt,
			LastSeen:         occurredAt,
			Trend:            models.TrendStable,
			Impact:           record.Severity,
			SuggestedActions: SuggestedActions(record.Type),
			Activity:         s.recordActivity(nil, occurredAt),
		}
		if record.Context.UserID != "" {
			fresh.AffectedUsers = []string{record.Context.UserID}
		}
		fresh.ErrorRate = s.occurrenceRate(fresh.Activity)
		fresh.SimilarErrors = s.similarFingerprints(ctx, record)

		payload, marshalErr := json.Marshal(&fresh)
		if marshalErr != nil {
			return utils.NewAppError("store.Persist", "encode aggregation", marshalErr)
		}
		created, nxErr := s.provider.SetNX(ctx, key, payload, s.ttl)
		if nxErr != nil {
			return utils.NewAppError("store.Persist", "create aggregation", nxErr)
		}
		if created {
			return nil
		}
		// Another process created it between our read and write; fall
		// through to the update path.
		agg, err = s.loadAggregation(ctx, record.Fingerprint)
		if err != nil {
			return utils.NewAppError("store.Persist", "reload aggregation", err)
		}
	case err != nil:
		return utils.NewAppError("store.Persist", "read aggregation", err)
	}

	agg.Count++
	agg.LastSeen = occurredAt
	if record.Context.UserID != "" && !agg.HasUser(record.Context.UserID) {
		agg.AffectedUsers = append(agg.AffectedUsers, record.Context.UserID)
	}
	if severityRank(record.Severity) > severityRank(agg.Impact) {
		agg.Impact = record.Severity
	}
	agg.Activity = s.recordActivity(agg.Activity, occurredAt)
	agg.Trend = s.computeTrend(agg.Activity)
	agg.ErrorRate = s.occurrenceRate(agg.Activity)
	agg.SimilarErrors = s.similarFingerprints(ctx, record)

	payload, err := json.Marshal(agg)
	if err != nil {
		return utils.NewAppError("store.Persist", "encode aggregation", err)
	}
	if err := s.provider.Set(ctx, key, payload, s.ttl); err != nil {
		return utils.NewAppError("store.Persist", "write aggregation", err)
	}
	return nil
}

// recordActivity folds an occurrence into the per-minute buckets and prunes
// buckets too old for the trend comparison. The result stays bounded at two
// windows of minutes no matter how hot the fingerprint runs.
func (s *Store) recordActivity(activity []models.ActivityBucket, occurredAt time.Time) []models.ActivityBucket {
	cutoff := s.now().UTC().Add(-2 * trendWindow)
	kept := activity[:0]
	for _, bucket := range activity {
		if bucket.Minute.After(cutoff) {
			kept = append(kept, bucket)
		}
	}

	minute := occurredAt.UTC().Truncate(time.Minute)
	for i := range kept {
		if kept[i].Minute.Equal(minute) {
			kept[i].Count++
			return kept
		}
	}
	return append(kept, models.ActivityBucket{Minute: minute, Count: 1})
}

// computeTrend compares the occurrence count of the most recent window to the
// window before it.
func (s *Store) computeTrend(activity []models.ActivityBucket) models.TrendDirection {
	now := s.now().UTC()
	recentStart := now.Add(-trendWindow)
	priorStart := now.Add(-2 * trendWindow)

	recent, prior := 0, 0
	for _, bucket := range activity {
		switch {
		case bucket.Minute.After(recentStart):
			recent += bucket.Count
		case bucket.Minute.After(priorStart):
			prior += bucket.Count
		}
	}

	switch {
	case recent > prior:
		return models.TrendIncreasing
	case recent < prior:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

// occurrenceRate returns occurrences per minute over the trailing hour.
func (s *Store) occurrenceRate(activity []models.ActivityBucket) float64 {
	cutoff := s.now().UTC().Add(-time.Hour)
	count := 0
	for _, bucket := range activity {
		if bucket.Minute.After(cutoff) {
			count += bucket.Count
		}
	}
	return float64(count) / 60.0
}

func (s *Store) similarFingerprints(ctx context.Context, record *models.ErrorDetails) []string {
	entries, err := s.readIndex(ctx)
	if err != nil {
		return nil
	}
	similar := make([]string, 0, maxSimilarErrors)
	for fp, entry := range entries {
		if fp == record.Fingerprint {
			continue
		}
		if entry.Type == record.Type && entry.Name == record.Name {
			similar = append(similar, fp)
			if len(similar) == maxSimilarErrors {
				break
			}
		}
	}
	sort.Strings(similar)
	return similar
}

func (s *Store) updateIndex(ctx context.Context, record *models.ErrorDetails) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	entries, err := s.readIndex(ctx)
	if err != nil {
		return utils.NewAppError("store.Persist", "read index", err)
	}

	occurredAt := record.Context.Timestamp
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}
	entries[record.Fingerprint] = indexEntry{
		LastSeen: occurredAt,
		Type:     record.Type,
		Name:     record.Name,
	}

	// Prune entries past retention so the index does not grow unbounded.
	cutoff := s.now().UTC().Add(-s.ttl)
	for fp, entry := range entries {
		if entry.LastSeen.Before(cutoff) {
			delete(entries, fp)
		}
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return utils.NewAppError("store.Persist", "encode index", err)
	}
	if err := s.provider.Set(ctx, indexKey, payload, s.ttl); err != nil {
		return utils.NewAppError("store.Persist", "write index", err)
	}
	return nil
}

func (s *Store) readIndex(ctx context.Context) (map[string]indexEntry, error) {
	raw, err := s.provider.Get(ctx, indexKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return make(map[string]indexEntry), nil
	}
	if err != nil {
		return nil, err
	}
	entries := make(map[string]indexEntry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns the stored record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.ErrorDetails, error) {
	raw, err := s.provider.Get(ctx, errorKeyPrefix+id)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, utils.NewAppError("store.Get", "read record", err)
	}
	var record models.ErrorDetails
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, utils.NewAppError("store.Get", "decode record", err)
	}
	return &record, nil
}

func (s *Store) loadAggregation(ctx context.Context, fp string) (*models.ErrorAggregation, error) {
	raw, err := s.provider.Get(ctx, aggKeyPrefix+fp)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var agg models.ErrorAggregation
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil, err
	}
	return &agg, nil
}

// GetAggregation returns a single aggregation by fingerprint.
func (s *Store) GetAggregation(ctx context.Context, fp string) (*models.ErrorAggregation, error) {
	agg, err := s.loadAggregation(ctx, fp)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, utils.NewAppError("store.GetAggregation", "read aggregation", err)
	}
	return agg, nil
}

// GetAggregations returns aggregations whose last occurrence falls inside the
// time range, filtered and sorted by count descending.
func (s *Store) GetAggregations(ctx context.Context, timeRange models.TimeRange, filter models.AggregationFilter) ([]models.ErrorAggregation, error) {
	entries, err := s.readIndex(ctx)
	if err != nil {
		return nil, utils.NewAppError("store.GetAggregations", "read index", err)
	}

	cutoff := s.now().UTC().Add(-timeRange.Window())
	result := make([]models.ErrorAggregation, 0, len(entries))
	for fp, entry := range entries {
		if entry.LastSeen.Before(cutoff) {
			continue
		}
		agg, err := s.loadAggregation(ctx, fp)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("skipping unreadable aggregation",
				slog.String("fingerprint", fp), slog.Any("error", err))
			continue
		}
		if !filter.Matches(*agg) {
			continue
		}
		result = append(result, *agg)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Fingerprint < result[j].Fingerprint
	})
	return result, nil
}

// GetMetrics summarises every live aggregation.
func (s *Store) GetMetrics(ctx context.Context) (models.ErrorMetrics, error) {
	aggs, err := s.GetAggregations(ctx, models.Range30d, models.AggregationFilter{})
	if err != nil {
		return models.ErrorMetrics{}, err
	}

	now := s.now().UTC()
	hourCutoff := now.Add(-time.Hour)
	metrics := models.ErrorMetrics{
		ByType:      make(map[models.ErrorType]int),
		BySeverity:  make(map[models.Severity]int),
		GeneratedAt: now,
	}

	lastHour := 0
	for _, agg := range aggs {
		metrics.TotalErrors += agg.Count
		metrics.ByType[agg.Type] += agg.Count
		metrics.BySeverity[agg.Impact] += agg.Count
		if agg.Impact == models.SeverityCritical {
			metrics.CriticalErrors += agg.Count
		}
		if agg.Resolved {
			metrics.ResolvedErrors += agg.Count
		}
		for _, bucket := range agg.Activity {
			if bucket.Minute.After(hourCutoff) {
				lastHour += bucket.Count
				if agg.Impact == models.SeverityCritical {
					metrics.CriticalLastHour += bucket.Count
				}
			}
		}
	}
	metrics.ErrorRate = float64(lastHour) / 60.0
	return metrics, nil
}

// Resolve marks the record resolved with the given metadata. It reports false
// when no record exists for id. Resolution is terminal: resolving an already
// resolved record leaves the original resolution in place.
func (s *Store) Resolve(ctx context.Context, id string, resolution models.Resolution) (bool, error) {
	record, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if record.Resolved {
		return true, nil
	}

	record.Resolved = true
	record.Resolution = &resolution

	payload, err := json.Marshal(record)
	if err != nil {
		return false, utils.NewAppError("store.Resolve", "encode record", err)
	}
	if err := s.provider.Set(ctx, errorKeyPrefix+id, payload, s.ttl); err != nil {
		return false, utils.NewAppError("store.Resolve", "write record", err)
	}

	s.markAggregationResolved(ctx, record.Fingerprint)
	return true, nil
}

func (s *Store) markAggregationResolved(ctx context.Context, fp string) {
	stripe := &s.stripes[stripeFor(fp)]
	stripe.Lock()
	defer stripe.Unlock()

	agg, err := s.loadAggregation(ctx, fp)
	if err != nil {
		return
	}
	if agg.Resolved {
		return
	}
	agg.Resolved = true
	payload, err := json.Marshal(agg)
	if err != nil {
		return
	}
	if err := s.provider.Set(ctx, aggKeyPrefix+fp, payload, s.ttl); err != nil {
		s.logger.Warn("failed to mark aggregation resolved",
			slog.String("fingerprint", fp), slog.Any("error", err))
	}
}

func stripeFor(fingerprint string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return int(h.Sum32() % lockStripes)
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 3
	case models.SeverityHigh:
		return 2
	case models.SeverityMedium:
		return 1
	default:
		return 0
	}
}

// SuggestedActions returns the ranked remediation hints for an error type.
func SuggestedActions(errType models.ErrorType) []string {
	switch errType {
	case models.TypeDatabase:
		return []string{
			"Check connection pool saturation",
			"Inspect slow query log for the offending statement",
			"Verify indexes on the queried tables",
		}
	case models.TypeAI:
		return []string{
			"Switch to the fallback provider",
			"Check provider status page and rate limits",
			"Reduce prompt or context size",
		}
	case models.TypeAPI, models.TypeNetwork:
		return []string{
			"Retry with exponential backoff",
			"Check upstream service health",
			"Verify request payload against the API contract",
		}
	case models.TypeSecurity:
		return []string{
			"Review auth token expiry and refresh flow",
			"Audit recent permission changes",
		}
	case models.TypeValidation:
		return []string{
			"Compare submitted fields against the form schema",
		}
	default:
		return []string{
			"Review recent deployments for regressions",
			"Check breadcrumbs for the triggering sequence",
		}
	}
}
