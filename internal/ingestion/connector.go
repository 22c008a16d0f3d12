package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/STRATINT/alertwatch/internal/models"
)

// PostSource is the retrieval collaborator: it returns the most recent posts
// of an account, newest first, each with an id, a timestamp and a text body.
// Implementations report transient failures (network, rate limit, markup
// changes) as errors; wrap them in RetryableError when a quick retry may help.
type PostSource interface {
	// Name returns a short identifier used as the alert origin tag.
	Name() string

	// RecentPosts returns up to limit posts of account.
	RecentPosts(ctx context.Context, account string, limit int) ([]models.RawPost, error)
}

// ConnectorStatus represents the current state of a source.
type ConnectorStatus struct {
	Name           string        `json:"name"`
	Healthy        bool          `json:"healthy"`
	LastFetch      time.Time     `json:"last_fetch"`
	LastError      string        `json:"last_error,omitempty"`
	TotalFetched   int64         `json:"total_fetched"`
	TotalErrors    int64         `json:"total_errors"`
	AverageLatency time.Duration `json:"average_latency"`
}

// statusTracker records fetch outcomes for one source.
type statusTracker struct {
	mu     sync.Mutex
	status ConnectorStatus
}

func newStatusTracker(name string) *statusTracker {
	return &statusTracker{status: ConnectorStatus{Name: name, Healthy: true}}
}

func (s *statusTracker) record(fetched int, latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastFetch = time.Now()
	s.status.TotalFetched += int64(fetched)

	if err != nil {
		s.status.Healthy = false
		s.status.LastError = err.Error()
		s.status.TotalErrors++
	} else {
		s.status.Healthy = true
		s.status.LastError = ""
	}

	// Simple moving average
	if s.status.AverageLatency == 0 {
		s.status.AverageLatency = latency
	} else {
		s.status.AverageLatency = (s.status.AverageLatency + latency) / 2
	}
}

func (s *statusTracker) snapshot() ConnectorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
