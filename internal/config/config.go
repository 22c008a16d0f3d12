package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/STRATINT/alertwatch/internal/models"
)

// Config represents runtime configuration derived from environment variables
// and an optional YAML file.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Monitor  MonitorConfig
	Source   SourceConfig
	Notify   NotifyConfig
	Database DatabaseConfig
	Auth     AuthConfig
}

// ServerConfig holds the ops HTTP server runtime parameters.
type ServerConfig struct {
	Enabled         bool
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// MonitorConfig controls the poll loop.
type MonitorConfig struct {
	Account             string
	PollInterval        time.Duration
	MaxBatch            int
	FetchTimeout        time.Duration
	LogPath             string
	SeenCapacity        int
	PersistBeforeNotify bool
}

// SourceConfig selects and configures the post retrieval mechanism.
type SourceConfig struct {
	Kind             models.SourceKind
	BearerToken      string
	APIBaseURL       string
	RSSFeedURL       string
	BrowserRemoteURL string
	CookieFile       string
	Headless         bool
}

// NotifyConfig configures what happens to each new alert.
type NotifyConfig struct {
	WebhookURL     string
	WebhookTimeout time.Duration
	SpeechCommand  []string
}

// DatabaseConfig configures the optional Postgres activity mirror. Either
// URL or a Cloud SQL instance may be given; with neither the mirror is off.
type DatabaseConfig struct {
	URL                    string
	InstanceConnectionName string
	User                   string
	Password               string
	Name                   string
	PingTimeout            time.Duration
}

// AuthConfig protects the ops API with bearer tokens. An empty JWTSecret
// leaves the API open.
type AuthConfig struct {
	JWTSecret         string
	AdminPasswordHash string
	TokenDuration     time.Duration
}

// Enabled reports whether the ops API requires a token.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultAccount        = "112Greece"
	defaultPollInterval   = 10 * time.Minute
	defaultMaxBatch       = 30
	defaultFetchTimeout   = 60 * time.Second
	defaultLogPath        = "alerts_log.jsonl"
	defaultSeenCapacity   = 10000
	defaultAPIBaseURL     = "https://api.twitter.com"
	defaultWebhookTimeout = 10 * time.Second
	defaultTokenDuration  = 24 * time.Hour
	defaultDBPingTimeout  = 5 * time.Second

	minJWTSecretLength = 16
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:         true,
			Port:            defaultPort,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Monitor: MonitorConfig{
			Account:      defaultAccount,
			PollInterval: defaultPollInterval,
			MaxBatch:     defaultMaxBatch,
			FetchTimeout: defaultFetchTimeout,
			LogPath:      defaultLogPath,
			SeenCapacity: defaultSeenCapacity,
		},
		Source: SourceConfig{
			Kind:       models.SourceKindXAPI,
			APIBaseURL: defaultAPIBaseURL,
			Headless:   true,
		},
		Notify: NotifyConfig{
			WebhookTimeout: defaultWebhookTimeout,
		},
		Database: DatabaseConfig{
			PingTimeout: defaultDBPingTimeout,
		},
		Auth: AuthConfig{
			TokenDuration: defaultTokenDuration,
		},
	}
}

// Load reads configuration from environment variables, applying defaults when
// values are not provided. When CONFIG_FILE is set, the YAML file is applied
// first and environment variables override it.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("invalid CONFIG_FILE: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	if v := getEnv("PORT", ""); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}

	if v := os.Getenv("SERVER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_ENABLED: %w", err)
		}
		cfg.Server.Enabled = b
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout},
		{"POLL_INTERVAL_SECONDS", &cfg.Monitor.PollInterval},
		{"FETCH_TIMEOUT_SECONDS", &cfg.Monitor.FetchTimeout},
		{"WEBHOOK_TIMEOUT_SECONDS", &cfg.Notify.WebhookTimeout},
		{"ADMIN_TOKEN_TTL_SECONDS", &cfg.Auth.TokenDuration},
		{"DB_PING_TIMEOUT_SECONDS", &cfg.Database.PingTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := parseSeconds(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("ALERT_ACCOUNT"); v != "" {
		cfg.Monitor.Account = strings.TrimPrefix(v, "@")
	}

	if v := os.Getenv("MAX_BATCH"); v != "" {
		n, err := parseCount(v)
		if err != nil || n == 0 {
			return fmt.Errorf("invalid MAX_BATCH: must be a positive integer")
		}
		cfg.Monitor.MaxBatch = n
	}

	if v := os.Getenv("SEEN_CAPACITY"); v != "" {
		n, err := parseCount(v)
		if err != nil {
			return fmt.Errorf("invalid SEEN_CAPACITY: %w", err)
		}
		cfg.Monitor.SeenCapacity = n
	}

	cfg.Monitor.LogPath = getEnv("ALERT_LOG_PATH", cfg.Monitor.LogPath)

	if v := os.Getenv("PERSIST_BEFORE_NOTIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PERSIST_BEFORE_NOTIFY: %w", err)
		}
		cfg.Monitor.PersistBeforeNotify = b
	}

	if v := os.Getenv("SOURCE_KIND"); v != "" {
		cfg.Source.Kind = models.SourceKind(v)
	}
	cfg.Source.BearerToken = getEnv("X_BEARER_TOKEN", cfg.Source.BearerToken)
	cfg.Source.APIBaseURL = getEnv("X_API_BASE_URL", cfg.Source.APIBaseURL)
	cfg.Source.RSSFeedURL = getEnv("RSS_FEED_URL", cfg.Source.RSSFeedURL)
	cfg.Source.BrowserRemoteURL = getEnv("BROWSER_REMOTE_URL", cfg.Source.BrowserRemoteURL)
	cfg.Source.CookieFile = getEnv("BROWSER_COOKIE_FILE", cfg.Source.CookieFile)

	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BROWSER_HEADLESS: %w", err)
		}
		cfg.Source.Headless = b
	}

	cfg.Notify.WebhookURL = getEnv("WEBHOOK_URL", cfg.Notify.WebhookURL)
	if v := os.Getenv("SPEECH_COMMAND"); v != "" {
		cfg.Notify.SpeechCommand = strings.Fields(v)
	}

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.InstanceConnectionName = getEnv("INSTANCE_CONNECTION_NAME", cfg.Database.InstanceConnectionName)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)

	cfg.Auth.JWTSecret = getEnv("ADMIN_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", cfg.Auth.AdminPasswordHash)

	return nil
}

func (c Config) validate() error {
	if c.Monitor.Account == "" {
		return fmt.Errorf("invalid ALERT_ACCOUNT: must not be empty")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("invalid POLL_INTERVAL_SECONDS: must be positive")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
	}
	if c.Monitor.LogPath == "" {
		return fmt.Errorf("invalid ALERT_LOG_PATH: must not be empty")
	}

	if c.Database.PingTimeout <= 0 {
		return fmt.Errorf("invalid DB_PING_TIMEOUT_SECONDS: must be positive")
	}

	if c.Auth.Enabled() {
		if len(c.Auth.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("invalid ADMIN_JWT_SECRET: must be at least %d characters", minJWTSecretLength)
		}
		if c.Auth.AdminPasswordHash == "" {
			return fmt.Errorf("ADMIN_PASSWORD_HASH is required when ADMIN_JWT_SECRET is set")
		}
		if c.Auth.TokenDuration <= 0 {
			return fmt.Errorf("invalid ADMIN_TOKEN_TTL_SECONDS: must be positive")
		}
	}

	switch c.Source.Kind {
	case models.SourceKindXAPI:
		if c.Source.BearerToken == "" {
			return fmt.Errorf("X_BEARER_TOKEN is required when SOURCE_KIND=%s", c.Source.Kind)
		}
	case models.SourceKindRSS:
		if c.Source.RSSFeedURL == "" {
			return fmt.Errorf("RSS_FEED_URL is required when SOURCE_KIND=%s", c.Source.Kind)
		}
	case models.SourceKindBrowser:
	default:
		return fmt.Errorf("invalid SOURCE_KIND: must be one of x-api, rss, browser")
	}

	return nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
