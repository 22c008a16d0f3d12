package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/STRATINT/alertwatch/internal/alertlog"
	"github.com/STRATINT/alertwatch/internal/api"
	"github.com/STRATINT/alertwatch/internal/auth"
	"github.com/STRATINT/alertwatch/internal/cloudsql"
	"github.com/STRATINT/alertwatch/internal/config"
	"github.com/STRATINT/alertwatch/internal/database"
	"github.com/STRATINT/alertwatch/internal/ingestion"
	"github.com/STRATINT/alertwatch/internal/logging"
	"github.com/STRATINT/alertwatch/internal/metrics"
	"github.com/STRATINT/alertwatch/internal/models"
	"github.com/STRATINT/alertwatch/internal/notify"
	"github.com/STRATINT/alertwatch/internal/scheduler"
	"github.com/STRATINT/alertwatch/internal/server"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "hash-password:", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("alertwatch exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := auth.ValidateConfig(cfg.Auth); err != nil {
		return err
	}

	logger.Info("starting alertwatch",
		"account", cfg.Monitor.Account,
		"source", cfg.Source.Kind,
		"interval", cfg.Monitor.PollInterval,
		"max_batch", cfg.Monitor.MaxBatch,
		"log_path", cfg.Monitor.LogPath,
		"api_auth", cfg.Auth.Enabled())

	source, closeSource, err := buildSource(ctx, cfg.Source, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSource(); err != nil {
			logger.Warn("failed to release source", "error", err)
		}
	}()

	notifier, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		return err
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return err
	}

	retry := ingestion.DefaultRetryPolicy()
	retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("retrying fetch", "attempt", attempt, "wait", wait, "error", err)
	}

	fetcher := ingestion.NewFetcher(source, ingestion.FetcherConfig{
		Account:  cfg.Monitor.Account,
		MaxBatch: cfg.Monitor.MaxBatch,
		Retry:    retry,
	}, logger)

	seen := ingestion.NewSeenSet(cfg.Monitor.SeenCapacity)
	store := alertlog.New(cfg.Monitor.LogPath)

	poller := scheduler.NewPoller(fetcher, seen, store, notifier, scheduler.PollerConfig{
		Interval:            cfg.Monitor.PollInterval,
		FetchTimeout:        cfg.Monitor.FetchTimeout,
		PersistBeforeNotify: cfg.Monitor.PersistBeforeNotify,
		Platform:            fetcher.Origin(),
	}, logger).WithMetrics(collector)

	routes := api.Routes{Metrics: collector, Auth: cfg.Auth}
	if cfg.Auth.Enabled() {
		routes.Login = auth.NewLoginHandler(cfg.Auth, logger)
	}

	dbURL, err := cloudsql.BuildDatabaseURL(cfg.Database)
	if err != nil {
		return err
	}
	var dbHealth api.DatabaseHealth
	if dbURL != "" {
		logger.Info("database configuration", "config", cloudsql.GetConnectionConfig(cfg.Database))
		mirror, err := openMirror(ctx, database.Config{URL: dbURL, PingTimeout: cfg.Database.PingTimeout}, logger)
		if err != nil {
			// The mirror is optional; alerts keep flowing without it.
			logger.Warn("activity mirror disabled", "error", err)
		} else {
			defer mirror.Close()
			dbHealth = mirror
			repo := database.NewActivityLogRepository(mirror)
			poller.WithRecorder(repo)
			routes.Activity = api.NewActivityLogHandlers(repo, logger)
		}
	}

	if err := poller.Restore(); err != nil {
		return err
	}

	var srv *server.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		routes.Handler = api.NewHandler(cfg.Monitor.Account, poller, fetcher, store, dbHealth, logger)
		srv = server.New(cfg.Server, logger, api.NewRouter(routes))
		go func() {
			serverErr <- srv.Start()
		}()
	}

	pollerDone := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(pollerDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serverErr:
		srv = nil
		stop()
	}

	<-pollerDone

	if srv != nil {
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Warn("server shutdown failed", "error", err)
		}
	}

	logger.Info("alertwatch stopped")
	return runErr
}

func openMirror(ctx context.Context, cfg database.Config, logger *slog.Logger) (*database.Mirror, error) {
	logger.Info("connecting to database")
	mirror, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := mirror.Migrate(ctx, logger); err != nil {
		mirror.Close()
		return nil, err
	}

	logger.Info("database connected")
	return mirror, nil
}

// buildSource selects the retrieval collaborator. The returned close func
// releases any session it holds.
func buildSource(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (ingestion.PostSource, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case models.SourceKindXAPI:
		return ingestion.NewXAPIConnector(cfg.APIBaseURL, cfg.BearerToken, logger), noop, nil
	case models.SourceKindRSS:
		return ingestion.NewRSSConnector(cfg.RSSFeedURL, logger), noop, nil
	case models.SourceKindBrowser:
		b := ingestion.NewBrowserConnector(ingestion.BrowserConfig{
			RemoteURL:  cfg.BrowserRemoteURL,
			CookieFile: cfg.CookieFile,
			Headless:   cfg.Headless,
			Logger:     logger,
		})
		if err := b.Start(ctx); err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, errors.New("unsupported source kind: " + string(cfg.Kind))
	}
}

func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}

	if len(cfg.SpeechCommand) > 0 {
		speech, err := notify.NewSpeechNotifier(cfg.SpeechCommand, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, speech)
	}

	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookTimeout, logger))
	}

	return notifiers, nil
}

// hashPassword reads a password from the first line of in and writes its
// bcrypt hash, ready for ADMIN_PASSWORD_HASH.
func hashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
