// Package database persists closed sessions, the open-session marker and
// system events. SQLite is the default backend; ClickHouse is available for
// installations that already run one.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/zapctx"
	"go.uber.org/zap"
)

var (
	// ErrCorruptRecord marks a persisted row that cannot be decoded into a
	// valid value. Readers skip such rows.
	ErrCorruptRecord = errors.New("corrupt persisted record")
	// ErrInvalidSession is returned when asked to append a session that is
	// open or has no positive duration.
	ErrInvalidSession = errors.New("invalid session")
)

const slowQueryThreshold = 100 * time.Millisecond

// Store is implemented by every backend.
type Store interface {
	// AppendClosedSession durably stores s and, in the same step, removes the
	// open marker if it refers to s. Appending an id twice is a no-op.
	AppendClosedSession(ctx context.Context, s activity.Session) error
	// UpdateOpenMarker replaces the single open marker.
	UpdateOpenMarker(ctx context.Context, m activity.OpenSessionMarker) error
	// ClearOpenMarker removes the marker if it refers to sessionID.
	ClearOpenMarker(ctx context.Context, sessionID string) error
	// RecoverOpenMarker returns the persisted marker or nil.
	RecoverOpenMarker(ctx context.Context) (*activity.OpenSessionMarker, error)
	// HasSession reports whether a closed session with id is stored.
	HasSession(ctx context.Context, id string) (bool, error)
	// ListSessions returns the sessions overlapping [from, to), optionally
	// only those of app, ordered by start.
	ListSessions(ctx context.Context, from, to time.Time, app string) ([]activity.Session, error)
	AppendSystemEvent(ctx context.Context, e activity.SystemEvent) error
	ListSystemEvents(ctx context.Context, from, to time.Time) ([]activity.SystemEvent, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver     string
	SQLitePath string
	ClickHouse ClickHouseConfig
}

type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

const (
	DriverSQLite     = "sqlite"
	DriverClickHouse = "clickhouse"
)

// Open connects to the configured backend and makes sure its schema exists.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	case DriverClickHouse:
		db, err := NewClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		if err := db.AutoSyncSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func validateSession(s activity.Session) error {
	if !s.Valid() {
		return fmt.Errorf("%w: id=%q app=%q start=%s end=%s", ErrInvalidSession,
			s.ID, s.AppIdentity, s.Start.Format(time.RFC3339Nano), s.End.Format(time.RFC3339Nano))
	}
	return nil
}

// logSlow warns about statements slower than slowQueryThreshold.
func logSlow(ctx context.Context, op string, started time.Time) {
	if d := time.Since(started); d > slowQueryThreshold {
		zapctx.Warn(ctx, "Slow query detected",
			zap.String("op", op),
			zap.Duration("duration", d))
	}
}
