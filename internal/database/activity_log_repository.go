package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/alertwatch/internal/models"
)

// ActivityLogRepository mirrors poll cycle records into Postgres.
type ActivityLogRepository struct {
	db *sql.DB
}

// NewActivityLogRepository creates a repository on the mirror's pool.
func NewActivityLogRepository(m *Mirror) *ActivityLogRepository {
	return &ActivityLogRepository{db: m.DB()}
}

const insertActivityLog = `
	INSERT INTO activity_logs (id, timestamp, activity_type, platform, message, details, source_count, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// Log records one poll cycle. Missing id and timestamp are filled in; an
// empty platform is stored as NULL.
func (r *ActivityLogRepository) Log(ctx context.Context, entry models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var details []byte
	if len(entry.Details) > 0 {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("encode activity details: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, insertActivityLog,
		entry.ID,
		entry.Timestamp,
		string(entry.ActivityType),
		sql.NullString{String: entry.Platform, Valid: entry.Platform != ""},
		entry.Message,
		details,
		entry.SourceCount,
		entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

// Empty filters match every row.
const listActivityLogs = `
	SELECT id, timestamp, activity_type, platform, message, details, source_count, duration_ms
	FROM activity_logs
	WHERE ($1::text = '' OR activity_type = $1)
	  AND ($2::text = '' OR platform = $2)
	ORDER BY timestamp DESC
	LIMIT $3
`

// List returns the newest records first, optionally filtered by activity
// type and platform. The caller bounds limit.
func (r *ActivityLogRepository) List(ctx context.Context, limit int, activityType string, platform string) ([]models.ActivityLog, error) {
	rows, err := r.db.QueryContext(ctx, listActivityLogs, activityType, platform, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	defer rows.Close()

	logs := []models.ActivityLog{}
	for rows.Next() {
		var (
			entry    models.ActivityLog
			platform sql.NullString
			details  []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.ActivityType,
			&platform,
			&entry.Message,
			&details,
			&entry.SourceCount,
			&entry.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}

		entry.Platform = platform.String
		entry.Timestamp = entry.Timestamp.UTC()
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decode activity details %s: %w", entry.ID, err)
			}
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

const summarizeCycles = `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE activity_type = $3),
		COALESCE(SUM(source_count), 0),
		COALESCE(AVG(duration_ms), 0),
		MAX(timestamp) FILTER (WHERE activity_type = $3)
	FROM activity_logs
	WHERE timestamp >= $1
	  AND ($2::text = '' OR platform = $2)
`

// Summary aggregates the cycles recorded since the given time. Alerts counts
// deliveries, including those made before a cycle aborted.
func (r *ActivityLogRepository) Summary(ctx context.Context, platform string, since time.Time) (models.CycleSummary, error) {
	summary := models.CycleSummary{Since: since.UTC(), Platform: platform}

	var lastFailure sql.NullTime
	err := r.db.QueryRowContext(ctx, summarizeCycles, since, platform, string(models.ActivityTypePollFailed)).Scan(
		&summary.Cycles,
		&summary.Failed,
		&summary.Alerts,
		&summary.AvgDurationMs,
		&lastFailure,
	)
	if err != nil {
		return models.CycleSummary{}, fmt.Errorf("summarize activity logs: %w", err)
	}

	if lastFailure.Valid {
		t := lastFailure.Time.UTC()
		summary.LastFailureAt = &t
	}
	return summary, nil
}
