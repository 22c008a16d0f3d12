package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/STRATINT/alertwatch/internal/models"
)

// ActivityLister reads mirrored poll cycles.
type ActivityLister interface {
	List(ctx context.Context, limit int, activityType string, platform string) ([]models.ActivityLog, error)
	Summary(ctx context.Context, platform string, since time.Time) (models.CycleSummary, error)
}

const (
	defaultSummaryWindow = 24 * time.Hour
	maxSummaryWindow     = 30 * 24 * time.Hour
)

type ActivityLogHandlers struct {
	repo   ActivityLister
	logger *slog.Logger
}

func NewActivityLogHandlers(repo ActivityLister, logger *slog.Logger) *ActivityLogHandlers {
	return &ActivityLogHandlers{
		repo:   repo,
		logger: logger,
	}
}

// ListActivities handles GET /api/activity-logs
func (h *ActivityLogHandlers) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	activityType := r.URL.Query().Get("activity_type")
	platform := r.URL.Query().Get("platform")

	logs, err := h.repo.List(r.Context(), limit, activityType, platform)
	if err != nil {
		h.logger.Error("failed to list activity logs", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to retrieve activity logs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

// Summary handles GET /api/activity-logs/summary?hours=N&platform=P
func (h *ActivityLogHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	window := defaultSummaryWindow
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			respondError(w, http.StatusBadRequest, ValidationError{Field: "hours", Message: "must be a positive integer"}.Error())
			return
		}
		window = min(time.Duration(hours)*time.Hour, maxSummaryWindow)
	}

	summary, err := h.repo.Summary(r.Context(), r.URL.Query().Get("platform"), time.Now().Add(-window))
	if err != nil {
		h.logger.Error("failed to summarize activity logs", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to summarize activity logs")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
