package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/STRATINT/alertwatch/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("X_BEARER_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if !cfg.Server.Enabled {
		t.Error("expected ops server to be enabled by default")
	}
	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("expected default shutdown timeout %v, got %v", defaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.Monitor.Account != defaultAccount {
		t.Errorf("expected default account %q, got %q", defaultAccount, cfg.Monitor.Account)
	}
	if cfg.Monitor.PollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", defaultPollInterval, cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.MaxBatch != defaultMaxBatch {
		t.Errorf("expected default max batch %d, got %d", defaultMaxBatch, cfg.Monitor.MaxBatch)
	}
	if cfg.Monitor.LogPath != defaultLogPath {
		t.Errorf("expected default log path %q, got %q", defaultLogPath, cfg.Monitor.LogPath)
	}
	if cfg.Monitor.SeenCapacity != defaultSeenCapacity {
		t.Errorf("expected default seen capacity %d, got %d", defaultSeenCapacity, cfg.Monitor.SeenCapacity)
	}
	if cfg.Monitor.PersistBeforeNotify {
		t.Error("expected notify-before-persist ordering by default")
	}
	if cfg.Source.Kind != models.SourceKindXAPI {
		t.Errorf("expected default source kind %q, got %q", models.SourceKindXAPI, cfg.Source.Kind)
	}
	if cfg.Source.APIBaseURL != defaultAPIBaseURL {
		t.Errorf("expected default API base URL %q, got %q", defaultAPIBaseURL, cfg.Source.APIBaseURL)
	}
	if !cfg.Source.Headless {
		t.Error("expected headless browser by default")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":           "9090",
		"SERVER_ENABLED":        "false",
		"LOG_LEVEL":             "debug",
		"LOG_FORMAT":            "text",
		"ALERT_ACCOUNT":         "@civilprotection",
		"POLL_INTERVAL_SECONDS": "120",
		"MAX_BATCH":             "50",
		"FETCH_TIMEOUT_SECONDS": "15",
		"ALERT_LOG_PATH":        "/var/lib/alertwatch/alerts.jsonl",
		"SEEN_CAPACITY":         "0",
		"PERSIST_BEFORE_NOTIFY": "true",
		"SOURCE_KIND":           "rss",
		"RSS_FEED_URL":          "https://nitter.example/112Greece/rss",
		"SPEECH_COMMAND":        "espeak -v el",
		"DATABASE_URL":          "postgres://localhost/alerts",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.Server.Enabled {
		t.Error("expected ops server to be disabled")
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.Monitor.Account != "civilprotection" {
		t.Errorf("expected leading @ to be stripped, got %q", cfg.Monitor.Account)
	}
	if cfg.Monitor.PollInterval != 2*time.Minute {
		t.Errorf("expected poll interval 2m, got %v", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.MaxBatch != 50 {
		t.Errorf("expected max batch 50, got %d", cfg.Monitor.MaxBatch)
	}
	if cfg.Monitor.FetchTimeout != 15*time.Second {
		t.Errorf("expected fetch timeout 15s, got %v", cfg.Monitor.FetchTimeout)
	}
	if cfg.Monitor.LogPath != overrides["ALERT_LOG_PATH"] {
		t.Errorf("unexpected log path %q", cfg.Monitor.LogPath)
	}
	if cfg.Monitor.SeenCapacity != 0 {
		t.Errorf("expected unbounded seen set, got %d", cfg.Monitor.SeenCapacity)
	}
	if !cfg.Monitor.PersistBeforeNotify {
		t.Error("expected persist-before-notify ordering")
	}
	if cfg.Source.Kind != models.SourceKindRSS {
		t.Errorf("expected rss source, got %q", cfg.Source.Kind)
	}
	if !reflect.DeepEqual(cfg.Notify.SpeechCommand, []string{"espeak", "-v", "el"}) {
		t.Errorf("unexpected speech command %v", cfg.Notify.SpeechCommand)
	}
	if cfg.Database.URL != overrides["DATABASE_URL"] {
		t.Errorf("unexpected database URL %q", cfg.Database.URL)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS":     "-1",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "abc",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "3.5",
		"LOG_LEVEL":                       "verbose",
		"LOG_FORMAT":                      "xml",
		"POLL_INTERVAL_SECONDS":           "0",
		"MAX_BATCH":                       "0",
		"SEEN_CAPACITY":                   "-5",
		"PERSIST_BEFORE_NOTIFY":           "sometimes",
		"SOURCE_KIND":                     "snscrape",
		"BROWSER_HEADLESS":                "maybe",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("X_BEARER_TOKEN", "token")
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestLoadRequiresSourceCredentials(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr string
	}{
		{kind: "x-api", wantErr: "X_BEARER_TOKEN"},
		{kind: "rss", wantErr: "RSS_FEED_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("SOURCE_KIND", tt.kind)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s without credentials", tt.kind)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}

	clearConfigEnv(t)
	t.Setenv("SOURCE_KIND", "browser")
	if _, err := Load(); err != nil {
		t.Fatalf("browser source should not need credentials: %v", err)
	}
}

func TestLoadAuth(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("X_BEARER_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Auth.Enabled() {
		t.Error("expected ops API auth to be disabled by default")
	}
	if cfg.Auth.TokenDuration != defaultTokenDuration {
		t.Errorf("expected default token duration %v, got %v", defaultTokenDuration, cfg.Auth.TokenDuration)
	}

	t.Setenv("ADMIN_JWT_SECRET", "short")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ADMIN_JWT_SECRET") {
		t.Fatalf("expected short secret to be rejected, got %v", err)
	}

	t.Setenv("ADMIN_JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("ADMIN_PASSWORD_HASH", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ADMIN_PASSWORD_HASH") {
		t.Fatalf("expected missing hash to be rejected, got %v", err)
	}

	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("ADMIN_TOKEN_TTL_SECONDS", "3600")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.Auth.Enabled() || cfg.Auth.TokenDuration != time.Hour {
		t.Errorf("unexpected auth config %+v", cfg.Auth)
	}
}

func TestLoadCloudSQLSettings(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("X_BEARER_TOKEN", "token")
	t.Setenv("INSTANCE_CONNECTION_NAME", "proj:europe-west1:alerts")
	t.Setenv("DB_USER", "alertwatch")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "alerts")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	want := DatabaseConfig{
		InstanceConnectionName: "proj:europe-west1:alerts",
		User:                   "alertwatch",
		Password:               "pw",
		Name:                   "alerts",
		PingTimeout:            defaultDBPingTimeout,
	}
	if cfg.Database != want {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
}

func TestLoadDatabasePingTimeout(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("X_BEARER_TOKEN", "token")

	t.Setenv("DB_PING_TIMEOUT_SECONDS", "2")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Database.PingTimeout != 2*time.Second {
		t.Errorf("expected 2s ping timeout, got %v", cfg.Database.PingTimeout)
	}

	t.Setenv("DB_PING_TIMEOUT_SECONDS", "0")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DB_PING_TIMEOUT_SECONDS") {
		t.Fatalf("expected zero ping timeout to be rejected, got %v", err)
	}
}

func TestLoadFromFileWithEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "alertwatch.yaml")
	content := `
server:
  enabled: false
  port: "9100"
logging:
  level: warn
  format: text
monitor:
  account: "@112Greece"
  poll_interval_seconds: 300
  max_batch: 10
  seen_capacity: 500
source:
  kind: browser
  cookie_file: /tmp/cookies.json
  headless: false
notify:
  webhook_url: https://hooks.example/alerts
  speech_command: ["espeak", "-v", "el"]
auth:
  token_ttl_seconds: 600
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_BATCH", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Enabled {
		t.Error("expected file to disable ops server")
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("expected port from file, got %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != slog.LevelWarn || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.Monitor.Account != "112Greece" {
		t.Errorf("unexpected account %q", cfg.Monitor.Account)
	}
	if cfg.Monitor.PollInterval != 5*time.Minute {
		t.Errorf("expected poll interval from file, got %v", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.MaxBatch != 25 {
		t.Errorf("expected env to override max batch, got %d", cfg.Monitor.MaxBatch)
	}
	if cfg.Auth.TokenDuration != 10*time.Minute {
		t.Errorf("expected token ttl from file, got %v", cfg.Auth.TokenDuration)
	}
	if cfg.Monitor.SeenCapacity != 500 {
		t.Errorf("expected seen capacity from file, got %d", cfg.Monitor.SeenCapacity)
	}
	if cfg.Source.Kind != models.SourceKindBrowser || cfg.Source.Headless {
		t.Errorf("unexpected source config %+v", cfg.Source)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example/alerts" {
		t.Errorf("unexpected webhook URL %q", cfg.Notify.WebhookURL)
	}
	if len(cfg.Notify.SpeechCommand) != 3 {
		t.Errorf("unexpected speech command %v", cfg.Notify.SpeechCommand)
	}
}

func TestLoadFromInvalidFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("X_BEARER_TOKEN", "token")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("monitor:\n  max_batch: -3\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative max_batch in file")
	}

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestParseSecondsRejectsInvalidInput(t *testing.T) {
	cases := []string{"-1", "abc"}

	for _, input := range cases {
		if _, err := parseSeconds(input); err == nil {
			t.Fatalf("expected error for input %q", input)
		}
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE",
		"INSTANCE_CONNECTION_NAME",
		"ADMIN_JWT_SECRET",
		"ADMIN_PASSWORD_HASH",
		"ADMIN_TOKEN_TTL_SECONDS",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
		"DB_PING_TIMEOUT_SECONDS",
		"PORT",
		"SERVER_PORT",
		"SERVER_ENABLED",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"ALERT_ACCOUNT",
		"POLL_INTERVAL_SECONDS",
		"MAX_BATCH",
		"FETCH_TIMEOUT_SECONDS",
		"ALERT_LOG_PATH",
		"SEEN_CAPACITY",
		"PERSIST_BEFORE_NOTIFY",
		"SOURCE_KIND",
		"X_BEARER_TOKEN",
		"X_API_BASE_URL",
		"RSS_FEED_URL",
		"BROWSER_REMOTE_URL",
		"BROWSER_COOKIE_FILE",
		"BROWSER_HEADLESS",
		"WEBHOOK_URL",
		"WEBHOOK_TIMEOUT_SECONDS",
		"SPEECH_COMMAND",
		"DATABASE_URL",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}
