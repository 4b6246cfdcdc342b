// Package history keeps a journal of detection runs in SQLite so past
// classifications can be inspected after the snapshot has moved on.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/parts/internal/detect"
)

// Run is one recorded detection run.
type Run struct {
	ID        string           `json:"id"`
	StartedAt time.Time        `json:"started_at"`
	Elapsed   time.Duration    `json:"elapsed"`
	Revision  string           `json:"revision,omitempty"`
	Changed   int              `json:"changed"`
	Added     int              `json:"added"`
	Removed   int              `json:"removed"`
	Committed bool             `json:"committed"`
	Outcomes  []detect.Outcome `json:"outcomes"`
}

// Journal stores runs in a SQLite database. Use ":memory:" for an
// in-memory journal.
type Journal struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		revision TEXT,
		changed INTEGER NOT NULL,
		added INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		committed INTEGER NOT NULL,
		outcomes BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append records one finished run and returns its journal id.
func (j *Journal) Append(ctx context.Context, report *detect.Report) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	outcomes, err := json.Marshal(report.Outcomes)
	if err != nil {
		return "", fmt.Errorf("marshal outcomes: %w", err)
	}

	id := uuid.NewString()
	changed, added, removed := report.Counts()
	committed := 0
	if report.Committed {
		committed = 1
	}
	_, err = j.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, elapsed_ms, revision, changed, added, removed, committed, outcomes) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, report.StartedAt.Unix(), report.Elapsed.Milliseconds(), report.Revision,
		changed, added, removed, committed, outcomes,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, started_at, elapsed_ms, revision, changed, added, removed, committed, outcomes FROM runs ORDER BY started_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedUnix, elapsedMS int64
		var committed int
		var outcomes []byte

		err := rows.Scan(&r.ID, &startedUnix, &elapsedMS, &r.Revision,
			&r.Changed, &r.Added, &r.Removed, &committed, &outcomes)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		r.StartedAt = time.Unix(startedUnix, 0)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		r.Committed = committed != 0
		if err := json.Unmarshal(outcomes, &r.Outcomes); err != nil {
			return nil, fmt.Errorf("unmarshal outcomes: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
