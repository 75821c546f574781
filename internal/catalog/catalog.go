// Package catalog records index builds in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrBuildNotFound is returned when a build id is not in the catalog.
var ErrBuildNotFound = errors.New("build not found")

// BuildRecord describes one index build.
type BuildRecord struct {
	BuildID        string
	Source         string
	Output         string
	Kind           string
	SecondaryField int
	SourceRecords  int
	FetchFailures  int
	RecordsWritten int
	Digest         string
	DurationMs     int64
	CreatedAt      time.Time
}

// Catalog stores and lists index builds.
type Catalog interface {
	// RegisterBuild adds a finished build to the catalog.
	RegisterBuild(ctx context.Context, rec *BuildRecord) error

	// GetBuild returns the build with the given id.
	GetBuild(ctx context.Context, buildID string) (*BuildRecord, error)

	// ListBuilds returns every build of output, newest first.
	ListBuilds(ctx context.Context, output string) ([]*BuildRecord, error)

	// Close closes the catalog database connection.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

const buildsDDL = `
CREATE TABLE IF NOT EXISTS index_builds (
    build_id        TEXT PRIMARY KEY,
    source          TEXT NOT NULL,
    output          TEXT NOT NULL,
    kind            TEXT NOT NULL,
    secondary_field INTEGER NOT NULL,
    source_records  INTEGER NOT NULL,
    fetch_failures  INTEGER NOT NULL,
    records_written INTEGER NOT NULL,
    digest          TEXT NOT NULL,
    duration_ms     INTEGER NOT NULL,
    created_at      INTEGER NOT NULL
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_builds_output ON index_builds(output, created_at);
`

// NewCatalog opens (creating if needed) the catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(buildsDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db, dbPath: dbPath}, nil
}

// RegisterBuild adds a finished build to the catalog.
func (c *SQLiteCatalog) RegisterBuild(ctx context.Context, rec *BuildRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO index_builds (
			build_id, source, output, kind, secondary_field,
			source_records, fetch_failures, records_written,
			digest, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BuildID, rec.Source, rec.Output, rec.Kind, rec.SecondaryField,
		rec.SourceRecords, rec.FetchFailures, rec.RecordsWritten,
		rec.Digest, rec.DurationMs, createdAt.UnixNano())
	if err != nil {
		return fmt.Errorf("catalog: failed to register build %s: %w", rec.BuildID, err)
	}
	return nil
}

const selectBuild = `
	SELECT build_id, source, output, kind, secondary_field,
	       source_records, fetch_failures, records_written,
	       digest, duration_ms, created_at
	FROM index_builds`

// GetBuild returns the build with the given id.
func (c *SQLiteCatalog) GetBuild(ctx context.Context, buildID string) (*BuildRecord, error) {
	row := c.db.QueryRowContext(ctx, selectBuild+" WHERE build_id = ?", buildID)
	rec, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: %w: %s", ErrBuildNotFound, buildID)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to read build %s: %w", buildID, err)
	}
	return rec, nil
}

// ListBuilds returns every build of output, newest first.
func (c *SQLiteCatalog) ListBuilds(ctx context.Context, output string) ([]*BuildRecord, error) {
	rows, err := c.db.QueryContext(ctx, selectBuild+" WHERE output = ? ORDER BY created_at DESC", output)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list builds: %w", err)
	}
	defer rows.Close()

	var out []*BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan build: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: error iterating builds: %w", err)
	}
	return out, nil
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBuild(s scanner) (*BuildRecord, error) {
	var rec BuildRecord
	var createdAt int64
	if err := s.Scan(
		&rec.BuildID, &rec.Source, &rec.Output, &rec.Kind, &rec.SecondaryField,
		&rec.SourceRecords, &rec.FetchFailures, &rec.RecordsWritten,
		&rec.Digest, &rec.DurationMs, &createdAt,
	); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}
