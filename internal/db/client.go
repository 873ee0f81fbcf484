// Package db provides the SQLite metadata store for datasets, training jobs,
// evaluations and knowledge-base dataset mappings.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Client wraps the SQLite database handle.
type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewClient opens (or creates) the SQLite database at path.
func NewClient(ctx context.Context, path string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between concurrent request handlers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("sqlite database opened", "path", path)
	return &Client{db: db, logger: log}, nil
}

// Close closes the database handle.
func (c *Client) Close() error {
	c.logger.Info("closing sqlite database")
	return c.db.Close()
}

// InitSchema creates all tables if they do not exist.
func (c *Client) InitSchema(ctx context.Context) error {
	c.logger.Info("initializing database schema")
	if _, err := c.db.ExecContext(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Ping verifies the database connection, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// WipeData deletes all rows while preserving schema. Use for testing only.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all data from database")

	// Order matters due to foreign keys referencing datasets and jobs.
	tables := []string{"rag_dataset_mapping", "evaluations", "model_profiles", "training_jobs", "datasets"}

	for _, table := range tables {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
