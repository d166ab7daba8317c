package database

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/zapctx"
	"go.uber.org/zap"
)

// ClickHouse stores sessions in ReplacingMergeTree tables. It has no
// transactions: a session is inserted first and the marker cleared second,
// and recovery treats a marker whose session already exists as cleared.
type ClickHouse struct {
	conn driver.Conn
	now  func() time.Time

	// lastVersion is the highest marker row version issued or stored.
	lastVersion atomic.Uint64
}

func NewClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	zapctx.Info(ctx, "ClickHouse store opened",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.String("database", cfg.Database))
	return &ClickHouse{conn: conn, now: time.Now}, nil
}

func (db *ClickHouse) Close() error {
	return db.conn.Close()
}

func (db *ClickHouse) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// version orders marker rows for ReplacingMergeTree. It follows the wall
// clock but never repeats or goes backwards, even when the clock is stepped
// back.
func (db *ClickHouse) version() uint64 {
	now := uint64(db.now().UnixNano())
	for {
		last := db.lastVersion.Load()
		v := max(last+1, now)
		if db.lastVersion.CompareAndSwap(last, v) {
			return v
		}
	}
}

// observeVersion raises the version floor to v.
func (db *ClickHouse) observeVersion(v uint64) {
	for {
		last := db.lastVersion.Load()
		if v <= last || db.lastVersion.CompareAndSwap(last, v) {
			return
		}
	}
}

// loadMarkerVersion seeds the version floor from the stored marker rows so a
// restart with a clock behind the previous run still supersedes them.
func (db *ClickHouse) loadMarkerVersion(ctx context.Context) error {
	var v uint64
	if err := db.conn.QueryRow(ctx, "SELECT max(version) FROM open_marker").Scan(&v); err != nil {
		return fmt.Errorf("read marker version: %w", err)
	}
	db.observeVersion(v)
	return nil
}

func (db *ClickHouse) AppendClosedSession(ctx context.Context, s activity.Session) error {
	if err := validateSession(s); err != nil {
		return err
	}

	exists, err := db.HasSession(ctx, s.ID)
	if err != nil {
		return err
	}
	if !exists {
		query := `INSERT INTO activity_sessions
                (id, app, title, category, start_time, end_time, idle)
                VALUES (?, ?, ?, ?, ?, ?, ?)`

		start := time.Now()
		err := db.conn.Exec(ctx, query,
			s.ID, s.AppIdentity, s.WindowTitle, s.Category, s.Start, s.End, uint8(boolToInt(s.Idle)))

		duration := time.Since(start)
		if err != nil {
			zapctx.Error(ctx, "Failed to insert session to ClickHouse",
				zap.Error(err),
				zap.Duration("duration", duration),
				zap.String("session_id", s.ID),
			)
			return err
		}
		if duration > slowQueryThreshold {
			zapctx.Warn(ctx, "Slow INSERT query detected",
				zap.Duration("duration", duration),
				zap.String("table", "activity_sessions"),
			)
		}
	}

	return db.ClearOpenMarker(ctx, s.ID)
}

func (db *ClickHouse) UpdateOpenMarker(ctx context.Context, m activity.OpenSessionMarker) error {
	query := `INSERT INTO open_marker
                (slot, session_id, app, title, start_time, last_extended, idle, cleared, version)
                VALUES (1, ?, ?, ?, ?, ?, ?, 0, ?)`
	defer logSlow(ctx, "update_marker", time.Now())
	return db.conn.Exec(ctx, query,
		m.SessionID, m.AppIdentity, m.WindowTitle, m.Start, m.LastExtended,
		uint8(boolToInt(m.Idle)), db.version())
}

func (db *ClickHouse) ClearOpenMarker(ctx context.Context, sessionID string) error {
	current, err := db.currentMarker(ctx)
	if err != nil {
		return err
	}
	if current == nil || current.SessionID != sessionID {
		return nil
	}
	query := `INSERT INTO open_marker
                (slot, session_id, app, title, start_time, last_extended, idle, cleared, version)
                VALUES (1, ?, ?, ?, ?, ?, ?, 1, ?)`
	return db.conn.Exec(ctx, query,
		current.SessionID, current.App, current.Title, current.Start, current.LastExtended,
		uint8(boolToInt(current.Idle)), db.version())
}

// currentMarker returns the latest uncleared marker row, undecoded.
func (db *ClickHouse) currentMarker(ctx context.Context) (*markerRecord, error) {
	rows, err := db.conn.Query(ctx, `
                SELECT session_id, app, title, start_time, last_extended, idle, cleared
                FROM open_marker FINAL
                WHERE slot = 1`)
	if err != nil {
		zapctx.Error(ctx, "Failed to query open marker", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var (
		r       markerRecord
		idle    uint8
		cleared uint8
	)
	if err := rows.Scan(&r.SessionID, &r.App, &r.Title, &r.Start, &r.LastExtended, &idle, &cleared); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if cleared == 1 {
		return nil, nil
	}
	r.Idle = idle == 1
	return &r, nil
}

func (db *ClickHouse) RecoverOpenMarker(ctx context.Context) (*activity.OpenSessionMarker, error) {
	r, err := db.currentMarker(ctx)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	m, err := r.decode()
	if err != nil {
		skipCorrupt(ctx, "open_marker", err)
		return nil, nil
	}
	return &m, nil
}

func (db *ClickHouse) HasSession(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := db.conn.QueryRow(ctx, "SELECT count(*) FROM activity_sessions WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return count > 0, nil
}

func (db *ClickHouse) ListSessions(ctx context.Context, from, to time.Time, app string) ([]activity.Session, error) {
	query := `
                SELECT id, app, title, category, start_time, end_time, idle
                FROM activity_sessions FINAL
                WHERE start_time < ? AND end_time > ?`
	args := []interface{}{to, from}
	if app != "" {
		query += " AND app = ?"
		args = append(args, app)
	}
	query += " ORDER BY start_time ASC, id ASC"

	start := time.Now()
	rows, err := db.conn.Query(ctx, query, args...)
	if err != nil {
		zapctx.Error(ctx, "Failed to query sessions",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer rows.Close()

	sessions := make([]activity.Session, 0)
	for rows.Next() {
		var (
			r    sessionRecord
			idle uint8
		)
		if err := rows.Scan(&r.ID, &r.App, &r.Title, &r.Category, &r.Start, &r.End, &idle); err != nil {
			skipCorrupt(ctx, "activity_sessions", fmt.Errorf("%w: %v", ErrCorruptRecord, err))
			continue
		}
		r.Idle = idle == 1
		s, err := r.decode()
		if err != nil {
			skipCorrupt(ctx, "activity_sessions", err)
			continue
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		zapctx.Error(ctx, "Error iterating session rows", zap.Error(err))
		return nil, err
	}

	logSlow(ctx, "list_sessions", start)
	return sessions, nil
}

func (db *ClickHouse) AppendSystemEvent(ctx context.Context, e activity.SystemEvent) error {
	query := `INSERT INTO system_events (id, kind, at, detail) VALUES (?, ?, ?, ?)`
	return db.conn.Exec(ctx, query, e.ID, string(e.Kind), e.At, e.Detail)
}

func (db *ClickHouse) ListSystemEvents(ctx context.Context, from, to time.Time) ([]activity.SystemEvent, error) {
	rows, err := db.conn.Query(ctx, `
                SELECT id, kind, at, detail FROM system_events
                WHERE at >= ? AND at < ?
                ORDER BY at ASC, id ASC`, from, to)
	if err != nil {
		zapctx.Error(ctx, "Failed to query system events", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	events := make([]activity.SystemEvent, 0)
	for rows.Next() {
		var r eventRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.At, &r.Detail); err != nil {
			skipCorrupt(ctx, "system_events", fmt.Errorf("%w: %v", ErrCorruptRecord, err))
			continue
		}
		e, err := r.decode()
		if err != nil {
			skipCorrupt(ctx, "system_events", err)
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
