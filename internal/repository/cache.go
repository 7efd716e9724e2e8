package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

const cacheSchemaSQL = `
CREATE TABLE IF NOT EXISTS extraction_cache (
	cache_key   TEXT PRIMARY KEY,
	raw_content TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
`

// Cache keeps raw model responses so unchanged files skip the model call on re-runs.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenCache opens or creates the SQLite cache database at path.
func OpenCache(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	if _, err := db.Exec(cacheSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	logger.Debug("cache.open", "path", path)
	return &Cache{db: db, logger: logger}, nil
}

// Get returns the cached raw content for key.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, "SELECT raw_content FROM extraction_cache WHERE cache_key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}

// Put stores raw content under key, replacing any previous value.
func (c *Cache) Put(ctx context.Context, key, raw string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO extraction_cache (cache_key, raw_content, created_at) VALUES (?, ?, ?)`,
		key, raw, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		c.logger.Warn("cache.put_failed", "key", key, "error", err)
	}
	return err
}

// Clear removes every cached response.
func (c *Cache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM extraction_cache")
	return err
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}
