package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/STRATINT/alertwatch/internal/models"
)

// fileConfig mirrors the YAML layout accepted through CONFIG_FILE. Durations
// are in seconds so the file and the environment use the same units.
type fileConfig struct {
	Server struct {
		Enabled                *bool  `yaml:"enabled"`
		Port                   string `yaml:"port"`
		ReadTimeoutSeconds     *int   `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds    *int   `yaml:"write_timeout_seconds"`
		ShutdownTimeoutSeconds *int   `yaml:"shutdown_timeout_seconds"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Monitor struct {
		Account             string `yaml:"account"`
		PollIntervalSeconds *int   `yaml:"poll_interval_seconds"`
		MaxBatch            *int   `yaml:"max_batch"`
		FetchTimeoutSeconds *int   `yaml:"fetch_timeout_seconds"`
		LogPath             string `yaml:"log_path"`
		SeenCapacity        *int   `yaml:"seen_capacity"`
		PersistBeforeNotify *bool  `yaml:"persist_before_notify"`
	} `yaml:"monitor"`
	Source struct {
		Kind             string `yaml:"kind"`
		BearerToken      string `yaml:"bearer_token"`
		APIBaseURL       string `yaml:"api_base_url"`
		RSSFeedURL       string `yaml:"rss_feed_url"`
		BrowserRemoteURL string `yaml:"browser_remote_url"`
		CookieFile       string `yaml:"cookie_file"`
		Headless         *bool  `yaml:"headless"`
	} `yaml:"source"`
	Notify struct {
		WebhookURL            string   `yaml:"webhook_url"`
		WebhookTimeoutSeconds *int     `yaml:"webhook_timeout_seconds"`
		SpeechCommand         []string `yaml:"speech_command"`
	} `yaml:"notify"`
	Database struct {
		URL                    string `yaml:"url"`
		InstanceConnectionName string `yaml:"instance_connection_name"`
		User                   string `yaml:"user"`
		Name                   string `yaml:"name"`
		PingTimeoutSeconds     *int   `yaml:"ping_timeout_seconds"`
	} `yaml:"database"`
	Auth struct {
		TokenTTLSeconds *int `yaml:"token_ttl_seconds"`
	} `yaml:"auth"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.Server.Enabled != nil {
		cfg.Server.Enabled = *fc.Server.Enabled
	}
	setString(&cfg.Server.Port, fc.Server.Port)
	if err := setSeconds(&cfg.Server.ReadTimeout, fc.Server.ReadTimeoutSeconds, "server.read_timeout_seconds"); err != nil {
		return err
	}
	if err := setSeconds(&cfg.Server.WriteTimeout, fc.Server.WriteTimeoutSeconds, "server.write_timeout_seconds"); err != nil {
		return err
	}
	if err := setSeconds(&cfg.Server.ShutdownTimeout, fc.Server.ShutdownTimeoutSeconds, "server.shutdown_timeout_seconds"); err != nil {
		return err
	}

	if fc.Logging.Level != "" {
		level, err := parseLogLevel(fc.Logging.Level)
		if err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
		cfg.Logging.Level = level
	}
	setString(&cfg.Logging.Format, fc.Logging.Format)

	setString(&cfg.Monitor.Account, strings.TrimPrefix(fc.Monitor.Account, "@"))
	if err := setSeconds(&cfg.Monitor.PollInterval, fc.Monitor.PollIntervalSeconds, "monitor.poll_interval_seconds"); err != nil {
		return err
	}
	if err := setSeconds(&cfg.Monitor.FetchTimeout, fc.Monitor.FetchTimeoutSeconds, "monitor.fetch_timeout_seconds"); err != nil {
		return err
	}
	if fc.Monitor.MaxBatch != nil {
		if *fc.Monitor.MaxBatch <= 0 {
			return fmt.Errorf("monitor.max_batch: must be a positive integer")
		}
		cfg.Monitor.MaxBatch = *fc.Monitor.MaxBatch
	}
	if fc.Monitor.SeenCapacity != nil {
		if *fc.Monitor.SeenCapacity < 0 {
			return fmt.Errorf("monitor.seen_capacity: must be a non-negative integer")
		}
		cfg.Monitor.SeenCapacity = *fc.Monitor.SeenCapacity
	}
	setString(&cfg.Monitor.LogPath, fc.Monitor.LogPath)
	if fc.Monitor.PersistBeforeNotify != nil {
		cfg.Monitor.PersistBeforeNotify = *fc.Monitor.PersistBeforeNotify
	}

	if fc.Source.Kind != "" {
		cfg.Source.Kind = models.SourceKind(fc.Source.Kind)
	}
	setString(&cfg.Source.BearerToken, fc.Source.BearerToken)
	setString(&cfg.Source.APIBaseURL, fc.Source.APIBaseURL)
	setString(&cfg.Source.RSSFeedURL, fc.Source.RSSFeedURL)
	setString(&cfg.Source.BrowserRemoteURL, fc.Source.BrowserRemoteURL)
	setString(&cfg.Source.CookieFile, fc.Source.CookieFile)
	if fc.Source.Headless != nil {
		cfg.Source.Headless = *fc.Source.Headless
	}

	setString(&cfg.Notify.WebhookURL, fc.Notify.WebhookURL)
	if err := setSeconds(&cfg.Notify.WebhookTimeout, fc.Notify.WebhookTimeoutSeconds, "notify.webhook_timeout_seconds"); err != nil {
		return err
	}
	if len(fc.Notify.SpeechCommand) > 0 {
		cfg.Notify.SpeechCommand = fc.Notify.SpeechCommand
	}

	setString(&cfg.Database.URL, fc.Database.URL)
	setString(&cfg.Database.InstanceConnectionName, fc.Database.InstanceConnectionName)
	setString(&cfg.Database.User, fc.Database.User)
	setString(&cfg.Database.Name, fc.Database.Name)
	if err := setSeconds(&cfg.Database.PingTimeout, fc.Database.PingTimeoutSeconds, "database.ping_timeout_seconds"); err != nil {
		return err
	}

	if err := setSeconds(&cfg.Auth.TokenDuration, fc.Auth.TokenTTLSeconds, "auth.token_ttl_seconds"); err != nil {
		return err
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, v *int, key string) error {
	if v == nil {
		return nil
	}
	if *v < 0 {
		return fmt.Errorf("%s: must be a non-negative integer", key)
	}
	*dst = time.Duration(*v) * time.Second
	return nil
}
