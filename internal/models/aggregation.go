package models

import "time"

// TrendDirection describes how a fingerprint's occurrence rate is moving.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// ErrorAggregation is the rolling per-fingerprint summary the dashboard reads.
type ErrorAggregation struct {
	Fingerprint   string         `json:"fingerprint"`
	Type          ErrorType      `json:"type"`
	Name          string         `json:"name"`
	Count         int            `json:"count"`
	AffectedUsers []string       `json:"affectedUsers"`
	FirstSeen     time.Time      `json:"firstSeen"`
	LastSeen      time.Time      `json:"lastSeen"`
	Trend         TrendDirection `json:"trend"`
	ErrorRate     float64        `json:"errorRate"`
	Impact        Severity       `json:"impact"`
	Resolved      bool           `json:"resolved"`

	SimilarErrors    []string `json:"similarErrors,omitempty"`
	SuggestedActions []string `json:"suggestedActions,omitempty"`

	// Activity holds per-minute occurrence counts for the trailing trend
	// window, pruned by the store. Trend and error rate derive from it, so
	// high-volume fingerprints stay exact without an unbounded timestamp
	// list.
	Activity []ActivityBucket `json:"activity,omitempty"`
}

// ActivityBucket counts the occurrences that landed within one minute.
type ActivityBucket struct {
	Minute time.Time `json:"minute"`
	Count  int       `json:"count"`
}

// HasUser reports whether the given user already counts toward the aggregation.
func (a *ErrorAggregation) HasUser(userID string) bool {
	for _, u := range a.AffectedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// ErrorMetrics summarises the whole error population for dashboards and alerting.
type ErrorMetrics struct {
	TotalErrors      int               `json:"totalErrors"`
	ErrorRate        float64           `json:"errorRate"`
	CriticalErrors   int               `json:"criticalErrors"`
	CriticalLastHour int               `json:"criticalLastHour"`
	ResolvedErrors   int               `json:"resolvedErrors"`
	ByType           map[ErrorType]int `json:"byType"`
	BySeverity       map[Severity]int  `json:"bySeverity"`
	GeneratedAt      time.Time         `json:"generatedAt"`
}
