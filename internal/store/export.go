package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/claimstack/errtrack/internal/models"
	"github.com/claimstack/errtrack/internal/utils"
)

// csvHeader is the fixed column layout the dashboard's download action expects.
var csvHeader = []string{"fingerprint", "count", "affectedUsers", "trend", "impact", "firstSeen", "lastSeen"}

// ExportCSV renders every aggregation inside the time range as CSV, one row
// per aggregation.
func (s *Store) ExportCSV(ctx context.Context, timeRange models.TimeRange) ([]byte, error) {
	aggs, err := s.GetAggregations(ctx, timeRange, models.AggregationFilter{})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, utils.NewAppError("store.ExportCSV", "write header", err)
	}
	for _, agg := range aggs {
		row := []string{
			agg.Fingerprint,
			strconv.Itoa(agg.Count),
			strconv.Itoa(len(agg.AffectedUsers)),
			string(agg.Trend),
			string(agg.Impact),
			agg.FirstSeen.UTC().Format(time.RFC3339),
			agg.LastSeen.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, utils.NewAppError("store.ExportCSV", "write row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, utils.NewAppError("store.ExportCSV", "flush", err)
	}
	return buf.Bytes(), nil
}
