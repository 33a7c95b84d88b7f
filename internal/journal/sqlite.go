package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/poolkeeper/poolkeeper/internal/domain"
)

// SQLite persists events to a SQLite database so the audit trail survives
// restarts and can be queried by the ops API.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database at path and runs migrations.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}

	// WAL keeps status-API readers off the writer's back.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	j := &SQLite{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal schema: %w", err)
	}
	return j, nil
}

func (j *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id      TEXT PRIMARY KEY,
			ts      INTEGER NOT NULL,
			kind    TEXT NOT NULL,
			actor   TEXT NOT NULL DEFAULT '',
			account TEXT NOT NULL DEFAULT '',
			target  TEXT NOT NULL DEFAULT '',
			amount  INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			reason  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
	}

	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (j *SQLite) Record(ctx context.Context, event domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, ts, kind, actor, account, target, amount, outcome, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Time.UnixNano(),
		string(event.Kind),
		event.Actor,
		event.Account,
		event.Target,
		int64(event.Amount),
		string(event.Outcome),
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. Insertion order breaks
// ties between events recorded in the same instant.
func (j *SQLite) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, ts, kind, actor, account, target, amount, outcome, reason
		 FROM events ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e             domain.Event
			ts, amount    int64
			kind, outcome string
		)
		if err := rows.Scan(&e.ID, &ts, &kind, &e.Actor, &e.Account, &e.Target, &amount, &outcome, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = time.Unix(0, ts).UTC()
		e.Kind = domain.EventKind(kind)
		e.Amount = uint64(amount)
		e.Outcome = domain.Outcome(outcome)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Ping verifies the database is reachable, for readiness probes.
func (j *SQLite) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
