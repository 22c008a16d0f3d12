package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/STRATINT/alertwatch/internal/extract"
	"github.com/STRATINT/alertwatch/internal/models"
)

// FetchError reports a failed retrieval. It only affects the current poll
// cycle; the caller is expected to log it and try again next cycle.
type FetchError struct {
	Source  string
	Account string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s from %s: %v", e.Account, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Account  string
	MaxBatch int
	Retry    RetryPolicy
}

// Fetcher turns the recent posts of an account into new alerts.
type Fetcher struct {
	source   PostSource
	account  string
	maxBatch int
	retry    RetryPolicy
	logger   *slog.Logger
	status   *statusTracker
}

// NewFetcher creates a fetcher reading account through source.
func NewFetcher(source PostSource, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 30
	}
	return &Fetcher{
		source:   source,
		account:  cfg.Account,
		maxBatch: cfg.MaxBatch,
		retry:    cfg.Retry,
		logger:   logger,
		status:   newStatusTracker(source.Name()),
	}
}

// Origin is the tag stored in Alert.Source.
func (f *Fetcher) Origin() string {
	return f.source.Name() + ":" + f.account
}

// Status returns the retrieval health of the underlying source.
func (f *Fetcher) Status() ConnectorStatus {
	return f.status.snapshot()
}

// FetchNew retrieves up to MaxBatch recent posts and returns, in retrieval
// order, an alert for every post that carries the activation marker, is not
// in seen, and yields a non-empty core message. Accepted ids are added to seen
// immediately, so duplicates within one batch are emitted once.
//
// An empty result with a nil error means there was nothing new. Retrieval
// failures are returned as *FetchError and leave seen untouched.
func (f *Fetcher) FetchNew(ctx context.Context, seen *SeenSet) ([]models.Alert, error) {
	start := time.Now()

	posts, err := f.retrieve(ctx)
	f.status.record(len(posts), time.Since(start), err)
	if err != nil {
		return nil, &FetchError{Source: f.source.Name(), Account: f.account, Err: err}
	}

	if len(posts) > f.maxBatch {
		posts = posts[:f.maxBatch]
	}

	origin := f.Origin()
	alerts := make([]models.Alert, 0)

	for _, post := range posts {
		if !extract.Qualifies(post.Text) {
			continue
		}
		if seen.Has(post.ID) {
			continue
		}

		core := extract.CoreMessage(post.Text)
		if core == "" {
			f.logger.Debug("qualifying post reduced to empty message", "id", post.ID)
			continue
		}

		seen.Add(post.ID)
		alerts = append(alerts, models.NewAlert(post, core, origin))
	}

	f.logger.Debug("fetched posts",
		"source", f.source.Name(),
		"account", f.account,
		"posts", len(posts),
		"new_alerts", len(alerts),
		"duration", time.Since(start))

	return alerts, nil
}

func (f *Fetcher) retrieve(ctx context.Context) (posts []models.RawPost, err error) {
	err = Retry(ctx, f.retry, func(ctx context.Context) (callErr error) {
		// Browser automation reports some failures by panicking.
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("source panicked: %v", r)
			}
		}()

		posts, callErr = f.source.RecentPosts(ctx, f.account, f.maxBatch)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}
