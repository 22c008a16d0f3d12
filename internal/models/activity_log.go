package models

import "time"

// ActivityType represents the type of activity being logged.
type ActivityType string

const (
	ActivityTypePollCycle  ActivityType = "poll_cycle"
	ActivityTypePollFailed ActivityType = "poll_failed"
)

// ActivityLog represents one recorded poll cycle.
type ActivityLog struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	ActivityType ActivityType           `json:"activity_type"`
	Platform     string                 `json:"platform,omitempty"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details,omitempty"`
	SourceCount  *int                   `json:"source_count,omitempty"`
	DurationMs   *int                   `json:"duration_ms,omitempty"`
}

// CycleSummary aggregates mirrored poll cycles over a window.
type CycleSummary struct {
	Since         time.Time  `json:"since"`
	Platform      string     `json:"platform,omitempty"`
	Cycles        int64      `json:"cycles"`
	Failed        int64      `json:"failed"`
	Alerts        int64      `json:"alerts"`
	AvgDurationMs float64    `json:"avg_duration_ms"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
}
