package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// The mirror has one writer (the poll loop, once per cycle) and one reader
// (the ops API), so the pool stays small. Idle connections are dropped well
// before Cloud SQL proxies time them out.
const (
	maxOpenConns       = 2
	maxIdleConns       = 1
	connMaxIdleTime    = 5 * time.Minute
	defaultPingTimeout = 5 * time.Second
)

// Config holds the mirror connection settings.
type Config struct {
	URL string

	// PingTimeout bounds the startup ping and every health check.
	PingTimeout time.Duration
}

// Mirror is the Postgres connection behind the activity mirror.
type Mirror struct {
	db          *sql.DB
	pingTimeout time.Duration
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Mirror, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	m := &Mirror{db: db, pingTimeout: cfg.PingTimeout}
	if err := m.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// DB returns the underlying pool.
func (m *Mirror) DB() *sql.DB {
	return m.db
}

// Close closes the pool.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Migrate applies the embedded migrations.
func (m *Mirror) Migrate(ctx context.Context, logger *slog.Logger) error {
	return RunMigrations(ctx, m.db, Migrations(), logger)
}

// Ping checks the database within the configured timeout.
func (m *Mirror) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	defer cancel()

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// PoolStats is the part of sql.DBStats worth watching for the mirror.
type PoolStats struct {
	Open           int   `json:"open_connections"`
	InUse          int   `json:"in_use"`
	Idle           int   `json:"idle"`
	WaitCount      int64 `json:"wait_count"`
	WaitDurationMs int64 `json:"wait_duration_ms"`
	IdleClosed     int64 `json:"idle_closed"`
}

// Stats returns the current pool statistics.
func (m *Mirror) Stats() PoolStats {
	s := m.db.Stats()
	return PoolStats{
		Open:           s.OpenConnections,
		InUse:          s.InUse,
		Idle:           s.Idle,
		WaitCount:      s.WaitCount,
		WaitDurationMs: s.WaitDuration.Milliseconds(),
		IdleClosed:     s.MaxIdleClosed + s.MaxIdleTimeClosed,
	}
}
