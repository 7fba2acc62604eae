// Package sqlite implements the CacheStore port on a single SQLite file, for
// deployments where several railpanel processes share one build cache.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "modernc.org/sqlite"
)

// Pragmas applied to every connection. journal_mode is left to the caller
// because in-memory databases cannot use WAL.
var basePragmas = []string{
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"cache_size(-64000)",
}

const (
	writerConns = 1
	readerConns = 4
)

// DB holds separate writer and reader pools on one database. The writer is
// limited to a single connection so concurrent Puts from the worker pool
// serialize instead of failing with "database is locked".
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// Open opens the cache database at dbPath and brings its schema up to date.
// It returns the schema version it left the database at.
func Open(ctx context.Context, dbPath string) (*DB, uint, error) {
	db, err := NewDB(ctx, dbPath)
	if err != nil {
		return nil, 0, err
	}
	version, err := RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, 0, err
	}
	return db, version, nil
}

// NewDB opens (creating if needed) the WAL-mode database file at dbPath
// without touching its schema.
func NewDB(ctx context.Context, dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return connect(ctx, dsn("file:"+dbPath, "journal_mode(WAL)"), dbPath)
}

// dsn appends the base pragmas, plus any extra ones, to a SQLite URI.
func dsn(uri string, extra ...string) string {
	params := make([]string, 0, len(basePragmas)+len(extra))
	for _, p := range slices.Concat(extra, basePragmas) {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + strings.Join(params, "&")
}

func connect(ctx context.Context, dsn, path string) (*DB, error) {
	open := func(role string, conns int) (*sql.DB, error) {
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", role, err)
		}
		db.SetMaxOpenConns(conns)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping %s: %w", role, err)
		}
		return db, nil
	}

	writer, err := open("writer", writerConns)
	if err != nil {
		return nil, err
	}
	reader, err := open("reader", readerConns)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	return &DB{Writer: writer, Reader: reader, path: path}, nil
}

// Path returns the database file the DB was opened on.
func (db *DB) Path() string {
	return db.path
}

// Close closes both pools and returns the first error.
func (db *DB) Close() error {
	var firstErr error
	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}
