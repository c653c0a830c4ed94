// =============================================================================
// Price Sync - Run Ledger
// =============================================================================
//
// Every engine run is appended to a local SQLite table so operators can see
// what was loaded, when, and with what outcome without searching the log.
//
// =============================================================================

package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dealerops/pricesync/internal/reconcile"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	load_type   TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	processed   INTEGER NOT NULL DEFAULT 0,
	created     INTEGER NOT NULL DEFAULT 0,
	deleted     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0,
	success     BOOLEAN NOT NULL,
	summary     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Run is one ledger row.
type Run struct {
	ID         string    `db:"id"`
	LoadType   string    `db:"load_type"`
	FileName   string    `db:"file_name"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	Processed  int       `db:"processed"`
	Created    int       `db:"created"`
	Deleted    int       `db:"deleted"`
	Skipped    int       `db:"skipped"`
	Errors     int       `db:"errors"`
	Success    bool      `db:"success"`
	Summary    string    `db:"summary"`
}

// FromResult converts an engine result into a ledger row with a fresh id.
// Multiple files are joined by commas.
func FromResult(res reconcile.Result) Run {
	names := ""
	for i, f := range res.Files {
		if i > 0 {
			names += ","
		}
		names += filepath.Base(f)
	}
	return Run{
		ID:         uuid.NewString(),
		LoadType:   string(res.LoadType),
		FileName:   names,
		StartedAt:  res.Date.UTC(),
		FinishedAt: res.Date.Add(res.Stats.Duration).UTC(),
		Processed:  res.Stats.Lines,
		Created:    res.Stats.Created,
		Deleted:    res.Stats.Deleted,
		Skipped:    res.Stats.Skipped,
		Errors:     res.Stats.Errors,
		Success:    res.Success,
		Summary:    res.Summary,
	}
}

// Ledger stores run history.
type Ledger struct {
	db *sqlx.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Record appends run. An empty ID is filled in.
func (l *Ledger) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO runs (
			id, load_type, file_name, started_at, finished_at,
			processed, created, deleted, skipped, errors, success, summary
		) VALUES (
			:id, :load_type, :file_name, :started_at, :finished_at,
			:processed, :created, :deleted, :skipped, :errors, :success, :summary
		)`
	if _, err := l.db.NamedExecContext(ctx, q, run); err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return run.ID, nil
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	const q = `SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`
	if err := l.db.SelectContext(ctx, &runs, q, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
