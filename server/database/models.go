package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/agent/metrics"
	"github.com/ctolnik/activity-tracker/zapctx"
	"go.uber.org/zap"
)

// Rows hold raw column values as both backends scan them, before validation.

type sessionRecord struct {
	ID       string
	App      string
	Title    string
	Category string
	Start    time.Time
	End      time.Time
	Idle     bool
}

func (r sessionRecord) decode() (activity.Session, error) {
	s := activity.Session{
		ID:          r.ID,
		AppIdentity: r.App,
		WindowTitle: r.Title,
		Category:    r.Category,
		Start:       r.Start,
		End:         r.End,
		Idle:        r.Idle,
	}
	if !s.Valid() {
		return activity.Session{}, fmt.Errorf("%w: session %q", ErrCorruptRecord, r.ID)
	}
	return s, nil
}

type markerRecord struct {
	SessionID    string
	App          string
	Title        string
	Start        time.Time
	LastExtended time.Time
	Idle         bool
}

func (r markerRecord) decode() (activity.OpenSessionMarker, error) {
	if r.SessionID == "" || r.App == "" || r.Start.IsZero() || r.LastExtended.IsZero() {
		return activity.OpenSessionMarker{}, fmt.Errorf("%w: open marker %q", ErrCorruptRecord, r.SessionID)
	}
	return activity.OpenSessionMarker{
		SessionID:    r.SessionID,
		AppIdentity:  r.App,
		WindowTitle:  r.Title,
		Start:        r.Start,
		LastExtended: r.LastExtended,
		Idle:         r.Idle,
	}, nil
}

type eventRecord struct {
	ID     string
	Kind   string
	At     time.Time
	Detail string
}

func (r eventRecord) decode() (activity.SystemEvent, error) {
	switch activity.SystemEventKind(r.Kind) {
	case activity.EventStartup, activity.EventShutdown, activity.EventRecovered, activity.EventResume:
	default:
		return activity.SystemEvent{}, fmt.Errorf("%w: system event %q has kind %q", ErrCorruptRecord, r.ID, r.Kind)
	}
	if r.ID == "" || r.At.IsZero() {
		return activity.SystemEvent{}, fmt.Errorf("%w: system event %q", ErrCorruptRecord, r.ID)
	}
	return activity.SystemEvent{ID: r.ID, Kind: activity.SystemEventKind(r.Kind), At: r.At, Detail: r.Detail}, nil
}

func skipCorrupt(ctx context.Context, table string, err error) {
	metrics.CorruptRecordsTotal.Inc()
	zapctx.Warn(ctx, "Skipping corrupt row", zap.String("table", table), zap.Error(err))
}

func msToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
