// Package sqlite provides the SQLite-backed iteration ledger.
//
// The ledger is a queryable side channel for reporting: the campaign
// snapshot remains the authoritative state. Uses modernc.org/sqlite
// (pure Go, no CGO) with embedded migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/quarry-labs/quarry-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// Ensure Ledger implements the interface.
var _ driven.IterationLedger = (*Ledger)(nil)

// Ledger is a SQLite-backed implementation of driven.IterationLedger.
type Ledger struct {
	db   *sql.DB
	path string
}

// NewLedger opens (or creates) the ledger database in the given data
// directory. If dataDir is empty, defaults to ~/.quarry/data/ledger.db.
func NewLedger(dataDir string) (*Ledger, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".quarry", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ledger.db")

	// WAL mode for better concurrency between writer and readers.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	l := &Ledger{db: db, path: dbPath}
	if err := l.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Record logs one committed iteration.
func (l *Ledger) Record(ctx context.Context, rec domain.IterationRecord) error {
	selectedJSON, err := json.Marshal(rec.Selected)
	if err != nil {
		return fmt.Errorf("marshalling selected keys: %w", err)
	}
	acquiredJSON, err := json.Marshal(rec.Acquired)
	if err != nil {
		return fmt.Errorf("marshalling acquired keys: %w", err)
	}
	failedJSON, err := json.Marshal(rec.Failed)
	if err != nil {
		return fmt.Errorf("marshalling failed keys: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO iterations
			(id, iteration, selected, acquired, failed,
			 new_discoveries, total_discoveries, notes, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			iteration = excluded.iteration,
			selected = excluded.selected,
			acquired = excluded.acquired,
			failed = excluded.failed,
			new_discoveries = excluded.new_discoveries,
			total_discoveries = excluded.total_discoveries,
			notes = excluded.notes,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`, rec.ID, rec.Iteration, string(selectedJSON), string(acquiredJSON), string(failedJSON),
		rec.Summary.NewDiscoveries, rec.Summary.TotalDiscoveries, rec.Summary.Notes,
		rec.StartedAt, rec.EndedAt)

	if err != nil {
		return fmt.Errorf("recording iteration: %w", err)
	}
	return nil
}

// History returns recent iteration records, most recent first.
// A non-positive limit returns all records.
func (l *Ledger) History(ctx context.Context, limit int) ([]domain.IterationRecord, error) {
	query := `
		SELECT id, iteration, selected, acquired, failed,
		       new_discoveries, total_discoveries, notes, started_at, ended_at
		FROM iterations
		ORDER BY iteration DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying iterations: %w", err)
	}
	defer rows.Close()

	var records []domain.IterationRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanIteration(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// Prune removes old records beyond the retention limit, keeping the
// most recent 'keep' records.
func (l *Ledger) Prune(ctx context.Context, keep int) error {
	_, err := l.db.ExecContext(ctx, `
		DELETE FROM iterations
		WHERE id NOT IN (
			SELECT id FROM iterations ORDER BY iteration DESC LIMIT ?
		)
	`, keep)

	if err != nil {
		return fmt.Errorf("pruning ledger: %w", err)
	}
	return nil
}

// scanIteration scans one iteration record from *sql.Rows.
func scanIteration(rows *sql.Rows) (*domain.IterationRecord, error) {
	var rec domain.IterationRecord
	var selectedJSON, acquiredJSON string
	var failedJSON, notes sql.NullString

	if err := rows.Scan(&rec.ID, &rec.Iteration, &selectedJSON, &acquiredJSON, &failedJSON,
		&rec.Summary.NewDiscoveries, &rec.Summary.TotalDiscoveries, &notes,
		&rec.StartedAt, &rec.EndedAt); err != nil {
		return nil, fmt.Errorf("scanning iteration: %w", err)
	}

	if err := json.Unmarshal([]byte(selectedJSON), &rec.Selected); err != nil {
		return nil, fmt.Errorf("unmarshalling selected keys: %w", err)
	}
	if err := json.Unmarshal([]byte(acquiredJSON), &rec.Acquired); err != nil {
		return nil, fmt.Errorf("unmarshalling acquired keys: %w", err)
	}
	if failedJSON.Valid {
		if err := json.Unmarshal([]byte(failedJSON.String), &rec.Failed); err != nil {
			return nil, fmt.Errorf("unmarshalling failed keys: %w", err)
		}
	}
	rec.Summary.Notes = notes.String

	return &rec, nil
}

// migrate runs all pending migrations.
func (l *Ledger) migrate(fsys embed.FS) error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := l.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := l.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := l.db.Exec(
			"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}
