package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cases (
	run_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	version INTEGER NOT NULL,
	json TEXT NOT NULL,
	PRIMARY KEY (run_id, iteration)
);
`

// SQLite stores runs and cases in a local sqlite file as JSON blobs.
type SQLite struct {
	db *sqlx.DB
}

var _ Database = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db %s: %w", path, err)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite db: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "opened sqlite db", slog.String("path", path))
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateRun implements Database.
func (s *SQLite) CreateRun(ctx context.Context, run types.Run) error {
	if run.ID == "" {
		return ErrNoRunID
	}
	b, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, started_at, json) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at, json = excluded.json`,
		run.ID, run.StartedAt.UnixNano(), string(b),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// RecordCase implements Database.
func (s *SQLite) RecordCase(ctx context.Context, c types.Case) error {
	if c.RunID == "" {
		return ErrNoRunID
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO cases (run_id, iteration, version, json) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, iteration) DO UPDATE SET version = excluded.version, json = excluded.json`,
		c.RunID, c.Iteration, types.CurrentCaseVersion, string(b),
	)
	if err != nil {
		return fmt.Errorf("failed to record case: %w", err)
	}
	return nil
}

// GetRun implements Database.
func (s *SQLite) GetRun(ctx context.Context, runID string) (types.Run, error) {
	var blob string
	err := s.db.GetContext(ctx, &blob, `SELECT json FROM runs WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return types.Run{}, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	var run types.Run
	if err := json.Unmarshal([]byte(blob), &run); err != nil {
		return types.Run{}, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns implements Database.
func (s *SQLite) ListRuns(ctx context.Context) ([]types.Run, error) {
	var blobs []string
	if err := s.db.SelectContext(ctx, &blobs, `SELECT json FROM runs ORDER BY started_at DESC`); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]types.Run, 0, len(blobs))
	for _, blob := range blobs {
		var run types.Run
		if err := json.Unmarshal([]byte(blob), &run); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal run", slog.Any("err", err))
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

type caseRow struct {
	Iteration int    `db:"iteration"`
	Version   int    `db:"version"`
	JSON      string `db:"json"`
}

// ListCases implements Database.
func (s *SQLite) ListCases(ctx context.Context, runID string) ([]types.Case, error) {
	var rows []caseRow
	err := s.db.SelectContext(
		ctx,
		&rows,
		`SELECT iteration, version, json FROM cases WHERE run_id = ? ORDER BY iteration`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	cases := make([]types.Case, 0, len(rows))
	for _, row := range rows {
		var c types.Case
		if err := json.Unmarshal([]byte(row.JSON), &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal case (run=%s, iteration=%d): %w", runID, row.Iteration, err)
		}
		c, err = migrate(ctx, c, row.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate case (run=%s, iteration=%d): %w", runID, row.Iteration, err)
		}
		cases = append(cases, c)
	}
	return cases, nil
}
