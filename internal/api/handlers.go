package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/STRATINT/alertwatch/internal/database"
	"github.com/STRATINT/alertwatch/internal/ingestion"
	"github.com/STRATINT/alertwatch/internal/models"
	"github.com/STRATINT/alertwatch/internal/scheduler"
)

// PollerStatusProvider reports the poll loop state.
type PollerStatusProvider interface {
	Status() scheduler.PollerStatus
}

// SourceStatusProvider reports the retrieval collaborator health.
type SourceStatusProvider interface {
	Status() ingestion.ConnectorStatus
}

// RecentAlertReader reads the tail of the alert log.
type RecentAlertReader interface {
	Recent(n int) ([]models.Alert, error)
}

// DatabaseHealth reports on the activity mirror connection.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Stats() database.PoolStats
}

// Handler serves the read-only ops endpoints.
type Handler struct {
	account string
	poller  PollerStatusProvider
	source  SourceStatusProvider
	alerts  RecentAlertReader
	db      DatabaseHealth
	logger  *slog.Logger
	started time.Time
}

// NewHandler creates the ops handler. db is nil when the mirror is off.
func NewHandler(account string, poller PollerStatusProvider, source SourceStatusProvider, alerts RecentAlertReader, db DatabaseHealth, logger *slog.Logger) *Handler {
	return &Handler{
		account: account,
		poller:  poller,
		source:  source,
		alerts:  alerts,
		db:      db,
		logger:  logger,
		started: time.Now(),
	}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Account  string                    `json:"account"`
	Uptime   string                    `json:"uptime"`
	Poller   scheduler.PollerStatus    `json:"poller"`
	Source   ingestion.ConnectorStatus `json:"source"`
	Database *database.PoolStats       `json:"database,omitempty"`
}

// HealthHandler handles GET /healthz. It fails only when a configured
// database is unreachable; a failing source is reported by /api/status.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatusHandler handles GET /api/status.
func (h *Handler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Account: h.account,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		Poller:  h.poller.Status(),
		Source:  h.source.Status(),
	}
	if h.db != nil {
		stats := h.db.Stats()
		resp.Database = &stats
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetRecentAlertsHandler handles GET /api/alerts/recent?limit=N.
func (h *Handler) GetRecentAlertsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 20, 500)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := h.alerts.Recent(limit)
	if err != nil {
		h.logger.Error("failed to read alert log", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to read alert log")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
