package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/alertwatch/internal/ingestion"
	"github.com/STRATINT/alertwatch/internal/metrics"
	"github.com/STRATINT/alertwatch/internal/models"
	"github.com/STRATINT/alertwatch/internal/notify"
)

// AlertFetcher returns the new alerts of one retrieval.
type AlertFetcher interface {
	FetchNew(ctx context.Context, seen *ingestion.SeenSet) ([]models.Alert, error)
}

// AlertStore is the persisted alert log.
type AlertStore interface {
	Append(alert models.Alert) error
	LoadIDs(fn func(models.PostID)) (loaded, skipped int, err error)
}

// ActivityRecorder mirrors cycle outcomes somewhere durable.
type ActivityRecorder interface {
	Log(ctx context.Context, log models.ActivityLog) error
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration

	// PersistBeforeNotify appends each alert to the log before handing it to
	// the notifier. The default notifies first.
	PersistBeforeNotify bool

	// Platform labels activity records, e.g. "x-api:112Greece".
	Platform string
}

// PollerStatus is a snapshot of the poll loop.
type PollerStatus struct {
	Running       bool      `json:"running"`
	Cycles        int64     `json:"cycles"`
	FailedCycles  int64     `json:"failed_cycles"`
	AlertsTotal   int64     `json:"alerts_total"`
	SeenIDs       int       `json:"seen_ids"`
	SeenEvicted   int64     `json:"seen_evicted"`
	LastCycleAt   time.Time `json:"last_cycle_at,omitzero"`
	LastSuccessAt time.Time `json:"last_success_at,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
	NextCycleAt   time.Time `json:"next_cycle_at,omitzero"`
}

// Poller alternates between one poll cycle and a fixed sleep until its
// context is cancelled.
type Poller struct {
	fetcher  AlertFetcher
	seen     *ingestion.SeenSet
	store    AlertStore
	notifier notify.Notifier
	cfg      PollerConfig
	logger   *slog.Logger

	metrics  *metrics.Collector
	recorder ActivityRecorder

	mu     sync.Mutex
	status PollerStatus
}

// NewPoller creates a poller. seen is shared with the caller so the ops
// surface can read its size.
func NewPoller(
	fetcher AlertFetcher,
	seen *ingestion.SeenSet,
	store AlertStore,
	notifier notify.Notifier,
	cfg PollerConfig,
	logger *slog.Logger,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &Poller{
		fetcher:  fetcher,
		seen:     seen,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithMetrics enables Prometheus reporting of cycle outcomes.
func (p *Poller) WithMetrics(c *metrics.Collector) *Poller {
	p.metrics = c
	return p
}

// WithRecorder mirrors each cycle into r. Recorder failures are logged and
// never affect the cycle.
func (p *Poller) WithRecorder(r ActivityRecorder) *Poller {
	p.recorder = r
	return p
}

// Restore seeds the seen set with every id in the alert log. Malformed lines
// are skipped; a missing log is an empty history.
func (p *Poller) Restore() error {
	loaded, skipped, err := p.store.LoadIDs(func(id models.PostID) {
		p.seen.Add(id)
	})
	if err != nil {
		return fmt.Errorf("restore seen ids: %w", err)
	}

	if skipped > 0 {
		p.logger.Warn("skipped malformed alert log lines", "skipped", skipped)
	}
	p.logger.Info("restored seen ids from alert log", "loaded", loaded, "seen", p.seen.Len())

	if p.metrics != nil {
		p.metrics.SetSeen(p.seen.Len())
	}
	return nil
}

// Start runs cycles until ctx is cancelled. The first cycle runs
// immediately. Call Restore first.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("starting poller", "interval", p.cfg.Interval, "fetch_timeout", p.cfg.FetchTimeout)

	p.mu.Lock()
	p.status.Running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.status.Running = false
		p.status.NextCycleAt = time.Time{}
		p.mu.Unlock()
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping due to context cancellation")
			return
		case <-timer.C:
		}

		p.RunCycle(ctx)

		if ctx.Err() != nil {
			p.logger.Info("poller stopping due to context cancellation")
			return
		}

		p.mu.Lock()
		p.status.NextCycleAt = time.Now().Add(p.cfg.Interval)
		p.mu.Unlock()

		timer.Reset(p.cfg.Interval)
	}
}

// RunCycle performs one fetch and delivers its alerts. Errors are logged and
// recorded, never returned; the count of delivered alerts is.
func (p *Poller) RunCycle(ctx context.Context) int {
	cycleID := uuid.New().String()
	start := time.Now()
	log := p.logger.With("cycle_id", cycleID)

	delivered, outcome, err := p.cycle(ctx, log)
	duration := time.Since(start)

	p.mu.Lock()
	p.status.Cycles++
	p.status.AlertsTotal += int64(delivered)
	p.status.LastCycleAt = start
	if err != nil {
		p.status.FailedCycles++
		p.status.LastError = err.Error()
	} else {
		p.status.LastSuccessAt = start
		p.status.LastError = ""
	}
	p.mu.Unlock()

	if err != nil {
		log.Error("poll cycle failed",
			"outcome", outcome,
			"delivered", delivered,
			"duration", duration,
			"error", err)
	} else {
		log.Info("poll cycle completed",
			"delivered", delivered,
			"seen", p.seen.Len(),
			"duration", duration)
	}

	if p.metrics != nil {
		p.metrics.ObserveCycle(outcome, delivered, p.seen.Len(), duration, start)
	}

	p.record(ctx, cycleID, start, outcome, delivered, duration, err)

	return delivered
}

func (p *Poller) cycle(ctx context.Context, log *slog.Logger) (int, string, error) {
	fetchCtx := ctx
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}

	alerts, err := p.fetcher.FetchNew(fetchCtx, p.seen)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("fetch timed out after %s: %w", p.cfg.FetchTimeout, err)
		}
		return 0, metrics.OutcomeFetchError, err
	}

	if len(alerts) == 0 {
		log.Debug("no new alerts")
	}

	for i, alert := range alerts {
		if outcome, err := p.deliver(ctx, alert); err != nil {
			if remaining := len(alerts) - i - 1; remaining > 0 {
				log.Warn("dropping remaining alerts of this cycle", "remaining", remaining)
			}
			return i, outcome, fmt.Errorf("alert %s: %w", alert.ID, err)
		}
		log.Info("alert delivered", "id", alert.ID.String(), "core_message", alert.CoreMessage)
	}

	return len(alerts), metrics.OutcomeOK, nil
}

func (p *Poller) deliver(ctx context.Context, alert models.Alert) (string, error) {
	if p.cfg.PersistBeforeNotify {
		if err := p.store.Append(alert); err != nil {
			return metrics.OutcomeLogError, err
		}
		if err := p.notifier.Notify(ctx, alert); err != nil {
			return metrics.OutcomeNotifyError, err
		}
		return metrics.OutcomeOK, nil
	}

	if err := p.notifier.Notify(ctx, alert); err != nil {
		return metrics.OutcomeNotifyError, err
	}
	if err := p.store.Append(alert); err != nil {
		return metrics.OutcomeLogError, err
	}
	return metrics.OutcomeOK, nil
}

func (p *Poller) record(ctx context.Context, cycleID string, at time.Time, outcome string, delivered int, duration time.Duration, cycleErr error) {
	if p.recorder == nil {
		return
	}

	entry := models.ActivityLog{
		Timestamp:    at.UTC(),
		ActivityType: models.ActivityTypePollCycle,
		Platform:     p.cfg.Platform,
		Message:      fmt.Sprintf("poll cycle delivered %d alert(s)", delivered),
		Details: map[string]interface{}{
			"cycle_id": cycleID,
			"outcome":  outcome,
			"seen":     p.seen.Len(),
		},
		SourceCount: &delivered,
	}
	ms := int(duration.Milliseconds())
	entry.DurationMs = &ms

	if cycleErr != nil {
		entry.ActivityType = models.ActivityTypePollFailed
		entry.Message = cycleErr.Error()
	}

	// The cycle context may already be cancelled at shutdown.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.recorder.Log(recCtx, entry); err != nil {
		p.logger.Warn("failed to record poll cycle", "cycle_id", cycleID, "error", err)
	}
}

// Status returns a snapshot of the poll loop.
func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	s := p.status
	p.mu.Unlock()

	s.SeenIDs = p.seen.Len()
	s.SeenEvicted = p.seen.Evicted()
	return s
}
