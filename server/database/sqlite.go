package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/zapctx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLite is the default local backend.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens the database at path, creating the file, its directory and
// the tables as needed. The journal runs in WAL mode with full fsync so an
// appended session survives power loss once the call returns.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite: %w", err)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	zapctx.Info(ctx, "SQLite store opened", zap.String("path", path))
	return &SQLite{db: db, path: path}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		app TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		idle INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_ms);
	CREATE INDEX IF NOT EXISTS idx_sessions_app_start ON sessions(app, start_ms);

	CREATE TABLE IF NOT EXISTS open_marker (
		id INTEGER PRIMARY KEY,
		session_id TEXT NOT NULL,
		app TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		start_ms INTEGER NOT NULL,
		last_extended_ms INTEGER NOT NULL,
		idle INTEGER NOT NULL DEFAULT 0,
		updated_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS system_events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		at_ms INTEGER NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_system_events_at ON system_events(at_ms);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) AppendClosedSession(ctx context.Context, session activity.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}
	defer logSlow(ctx, "append_session", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, app, title, category, start_ms, end_ms, idle)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		session.ID, session.AppIdentity, session.WindowTitle, session.Category,
		session.Start.UnixMilli(), session.End.UnixMilli(), boolToInt(session.Idle))
	if err != nil {
		zapctx.Error(ctx, "Failed to insert session", zap.Error(err), zap.String("session_id", session.ID))
		return fmt.Errorf("insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM open_marker WHERE id = 1 AND session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		zapctx.Debug(ctx, "Session already stored", zap.String("session_id", session.ID))
	}
	return nil
}

func (s *SQLite) UpdateOpenMarker(ctx context.Context, m activity.OpenSessionMarker) error {
	defer logSlow(ctx, "update_marker", time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO open_marker (id, session_id, app, title, start_ms, last_extended_ms, idle, updated_ms)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			app = excluded.app,
			title = excluded.title,
			start_ms = excluded.start_ms,
			last_extended_ms = excluded.last_extended_ms,
			idle = excluded.idle,
			updated_ms = excluded.updated_ms`,
		m.SessionID, m.AppIdentity, m.WindowTitle, m.Start.UnixMilli(), m.LastExtended.UnixMilli(),
		boolToInt(m.Idle), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update marker: %w", err)
	}
	return nil
}

func (s *SQLite) ClearOpenMarker(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM open_marker WHERE id = 1 AND session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}
	return nil
}

func (s *SQLite) RecoverOpenMarker(ctx context.Context) (*activity.OpenSessionMarker, error) {
	var (
		r                     markerRecord
		app, title            sql.NullString
		startMs, lastExtended sql.NullInt64
		idle                  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, app, title, start_ms, last_extended_ms, idle
		FROM open_marker WHERE id = 1`).
		Scan(&r.SessionID, &app, &title, &startMs, &lastExtended, &idle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}

	r.App, r.Title = app.String, title.String
	r.Start, r.LastExtended = msToTime(startMs.Int64), msToTime(lastExtended.Int64)
	r.Idle = idle.Int64 != 0
	m, err := r.decode()
	if err != nil {
		skipCorrupt(ctx, "open_marker", err)
		return nil, nil
	}
	return &m, nil
}

func (s *SQLite) HasSession(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) ListSessions(ctx context.Context, from, to time.Time, app string) ([]activity.Session, error) {
	query := `
		SELECT id, app, title, category, start_ms, end_ms, idle
		FROM sessions
		WHERE start_ms < ? AND end_ms > ?`
	args := []interface{}{to.UnixMilli(), from.UnixMilli()}
	if app != "" {
		query += " AND app = ?"
		args = append(args, app)
	}
	query += " ORDER BY start_ms ASC, id ASC"

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		zapctx.Error(ctx, "Failed to query sessions", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	sessions := make([]activity.Session, 0)
	for rows.Next() {
		var (
			id                       string
			appName, title, category sql.NullString
			startMs, endMs, idle     sql.NullInt64
		)
		if err := rows.Scan(&id, &appName, &title, &category, &startMs, &endMs, &idle); err != nil {
			skipCorrupt(ctx, "sessions", fmt.Errorf("%w: %v", ErrCorruptRecord, err))
			continue
		}
		session, err := sessionRecord{
			ID:       id,
			App:      appName.String,
			Title:    title.String,
			Category: category.String,
			Start:    msToTime(startMs.Int64),
			End:      msToTime(endMs.Int64),
			Idle:     idle.Int64 != 0,
		}.decode()
		if err != nil {
			skipCorrupt(ctx, "sessions", err)
			continue
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		zapctx.Error(ctx, "Error iterating session rows", zap.Error(err))
		return nil, err
	}

	logSlow(ctx, "list_sessions", start)
	zapctx.Debug(ctx, "Sessions listed",
		zap.Time("from", from), zap.Time("to", to),
		zap.String("app", app), zap.Int("count", len(sessions)))
	return sessions, nil
}

func (s *SQLite) AppendSystemEvent(ctx context.Context, e activity.SystemEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_events (id, kind, at_ms, detail) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		e.ID, string(e.Kind), e.At.UnixMilli(), e.Detail)
	if err != nil {
		return fmt.Errorf("insert system event: %w", err)
	}
	return nil
}

func (s *SQLite) ListSystemEvents(ctx context.Context, from, to time.Time) ([]activity.SystemEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, at_ms, detail FROM system_events
		WHERE at_ms >= ? AND at_ms < ?
		ORDER BY at_ms ASC, id ASC`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		zapctx.Error(ctx, "Failed to query system events", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	events := make([]activity.SystemEvent, 0)
	for rows.Next() {
		var (
			r      eventRecord
			atMs   sql.NullInt64
			kind   sql.NullString
			detail sql.NullString
		)
		if err := rows.Scan(&r.ID, &kind, &atMs, &detail); err != nil {
			skipCorrupt(ctx, "system_events", fmt.Errorf("%w: %v", ErrCorruptRecord, err))
			continue
		}
		r.Kind, r.At, r.Detail = kind.String, msToTime(atMs.Int64), detail.String
		e, err := r.decode()
		if err != nil {
			skipCorrupt(ctx, "system_events", err)
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
