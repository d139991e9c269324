// Package storage implements the repository contracts over Postgres with
// bun. The memory subpackage provides the in-memory variants used by tests
// and standalone runs.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/flowline-ai/flowline/internal/infrastructure/logger"
	"github.com/flowline-ai/flowline/internal/infrastructure/storage/dbmodels"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sensible pool defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// NewDB opens a bun database connection and verifies it.
func NewDB(cfg *Config, log *logger.Logger) (*bun.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(30*time.Second),
		pgdriver.WithDialTimeout(10*time.Second),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())
	db.RegisterModel(
		(*dbmodels.WorkflowModel)(nil),
		(*dbmodels.ExecutionModel)(nil),
		(*dbmodels.ScheduleModel)(nil),
		(*dbmodels.CheckpointModel)(nil),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if log != nil {
		log.Info("database connection established", "max_open_conns", cfg.MaxOpenConns)
	}
	return db, nil
}
