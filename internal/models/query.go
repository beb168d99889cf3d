package models

import (
	"fmt"
	"time"
)

// TimeRange is the set of lookback windows the query API accepts.
type TimeRange string

const (
	Range1h  TimeRange = "1h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

// ParseTimeRange validates a query-string time range, defaulting to 24h.
func ParseTimeRange(value string) (TimeRange, error) {
	if value == "" {
		return Range24h, nil
	}
	switch TimeRange(value) {
	case Range1h, Range24h, Range7d, Range30d:
		return TimeRange(value), nil
	}
	return "", fmt.Errorf("invalid time range %q", value)
}

// Window returns the lookback duration for the range.
func (r TimeRange) Window() time.Duration {
	switch r {
	case Range1h:
		return time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// AggregationFilter narrows aggregation queries. Zero values match everything.
type AggregationFilter struct {
	Type     ErrorType
	Severity Severity
	Resolved *bool
}

// Matches reports whether the aggregation passes the filter.
func (f AggregationFilter) Matches(agg ErrorAggregation) bool {
	if f.Type != "" && agg.Type != f.Type {
		return false
	}
	if f.Severity != "" && agg.Impact != f.Severity {
		return false
	}
	if f.Resolved != nil && agg.Resolved != *f.Resolved {
		return false
	}
	return true
}
