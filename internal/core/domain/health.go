package domain

import "time"

// HealthVerdict summarizes sync reliability at a point in time
type HealthVerdict string

const (
	HealthHealthy  HealthVerdict = "healthy"
	HealthDegraded HealthVerdict = "degraded"
	HealthCritical HealthVerdict = "critical"
)

// IssueSeverity ranks a health issue
type IssueSeverity string

const (
	SeverityLow    IssueSeverity = "low"
	SeverityMedium IssueSeverity = "medium"
	SeverityHigh   IssueSeverity = "high"
)

// HealthIssue is a single timestamped finding with an actionable
// recommendation.
type HealthIssue struct {
	Severity       IssueSeverity `json:"severity"`
	Message        string        `json:"message"`
	Recommendation string        `json:"recommendation"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Health is a derived verdict. It is recomputed from scratch on every
// call and never persisted.
type Health struct {
	Verdict         HealthVerdict `json:"verdict"`
	Issues          []HealthIssue `json:"issues,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
	CheckedAt       time.Time     `json:"checked_at"`
}
