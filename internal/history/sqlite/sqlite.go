package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/librewallet/minerd/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_history(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at INTEGER NOT NULL,
			event TEXT NOT NULL,
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			command TEXT NOT NULL,
			endpoint TEXT NOT NULL DEFAULT '',
			started_at INTEGER NULL,
			stopped_at INTEGER NULL,
			exit_code INTEGER NOT NULL DEFAULT 0,
			error TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_run ON task_history(run_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Times are stored as unix nanoseconds so ordering and round trips do not
// depend on driver time parsing.
func nanos(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().UnixNano()
}

func fromNanos(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64).UTC()
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_history(occurred_at, event, run_id, name, pid, command, endpoint, started_at, stopped_at, exit_code, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC().UnixNano(), string(e.Type), rec.RunID, rec.Name, rec.PID, rec.Command, rec.Endpoint,
		nanos(rec.StartedAt), nanos(rec.StoppedAt), rec.ExitCode, errText)
	return err
}

// Recent returns up to limit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, event, run_id, name, pid, command, endpoint, started_at, stopped_at, exit_code, error
		FROM task_history ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var (
			occurred         int64
			evt              string
			started, stopped sql.NullInt64
			errText          sql.NullString
			e                history.Event
		)
		r := &e.Record
		if err := rows.Scan(&occurred, &evt, &r.RunID, &r.Name, &r.PID, &r.Command, &r.Endpoint, &started, &stopped, &r.ExitCode, &errText); err != nil {
			return nil, err
		}
		e.Type = history.EventType(evt)
		e.OccurredAt = time.Unix(0, occurred).UTC()
		r.StartedAt = fromNanos(started)
		r.StoppedAt = fromNanos(stopped)
		r.Error = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
