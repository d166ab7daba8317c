// Package tracker wires the monitoring pipeline together: sampler, idle
// detector, session builder and the write queue in front of the store. It
// also owns crash recovery and graceful shutdown.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/agent/buffer"
	"github.com/ctolnik/activity-tracker/agent/categorize"
	"github.com/ctolnik/activity-tracker/agent/metrics"
	"github.com/ctolnik/activity-tracker/agent/monitoring"
	"github.com/ctolnik/activity-tracker/zapctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRecoveryInconsistent is logged when the persisted open marker cannot
// describe a valid session.
var ErrRecoveryInconsistent = errors.New("open marker is inconsistent")

// Store is the part of the persistence store the tracker needs.
type Store interface {
	buffer.Sink
	RecoverOpenMarker(ctx context.Context) (*activity.OpenSessionMarker, error)
	HasSession(ctx context.Context, id string) (bool, error)
}

type Config struct {
	Interval            time.Duration
	PlatformTimeout     time.Duration
	IdleThreshold       time.Duration
	IdleHysteresis      time.Duration
	SleepGap            time.Duration
	MarkerFlushInterval time.Duration
	ShutdownTimeout     time.Duration
	Queue               buffer.Config
	// Host is recorded as the detail of startup events.
	Host string
}

// Tracker runs the pipeline. HandleSample and Stop must be called from the
// sampler goroutine only; Status may be called from anywhere.
type Tracker struct {
	cfg         Config
	store       Store
	sampler     *monitoring.Sampler
	idle        *activity.IdleDetector
	builder     *activity.Builder
	categorizer *categorize.Categorizer
	queue       *buffer.WriteQueue
	now         func() time.Time

	lastMarker time.Time
	closed     atomic.Uint64
	running    atomic.Bool
	current    atomic.Pointer[CurrentSession]
}

func New(cfg Config, platform monitoring.Platform, store Store, categorizer *categorize.Categorizer) *Tracker {
	if categorizer == nil {
		categorizer = categorize.New(nil)
	}
	return &Tracker{
		cfg:         cfg,
		store:       store,
		sampler:     monitoring.NewSampler(platform, cfg.Interval, cfg.PlatformTimeout),
		idle:        activity.NewIdleDetector(cfg.IdleThreshold, cfg.IdleHysteresis),
		builder:     activity.NewBuilder(activity.Params{SleepGap: cfg.SleepGap}, uuid.NewString),
		categorizer: categorizer,
		queue:       buffer.New(store, cfg.Queue),
		now:         time.Now,
	}
}

// Run recovers any session left open by a previous run, then samples until
// ctx is cancelled and shuts down within cfg.ShutdownTimeout.
func (t *Tracker) Run(ctx context.Context) error {
	ctx = zapctx.WithComponent(ctx, "tracker")

	if err := t.Recover(ctx); err != nil {
		zapctx.Error(ctx, "Crash recovery failed, continuing without it", zap.Error(err))
	}
	t.Start(ctx)

	zapctx.Info(ctx, "Activity tracker started",
		zap.Duration("interval", t.cfg.Interval),
		zap.Duration("idle_threshold", t.cfg.IdleThreshold),
		zap.Duration("sleep_gap", t.cfg.SleepGap))

	runErr := t.sampler.Run(ctx, func(s activity.Sample) {
		t.HandleSample(ctx, s)
	})

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, t.Stop(stopCtx))
}

// Start launches the write worker and records the startup event.
func (t *Tracker) Start(ctx context.Context) {
	t.queue.Start(ctx)
	t.queue.AppendEvent(ctx, t.event(activity.EventStartup, t.now(), t.cfg.Host))
	t.running.Store(true)
}

// Recover replays writes spilled by an unclean shutdown and closes the
// session described by the open marker at its last extension. It writes to
// the store directly and must run before Start.
func (t *Tracker) Recover(ctx context.Context) error {
	if path := t.cfg.Queue.SpillPath; path != "" {
		if _, err := buffer.ReplaySpill(ctx, t.store, path); err != nil {
			zapctx.Warn(ctx, "Failed to replay spilled writes", zap.String("path", path), zap.Error(err))
		}
	}

	m, err := t.store.RecoverOpenMarker(ctx)
	if err != nil {
		return fmt.Errorf("read open marker: %w", err)
	}
	if m == nil {
		zapctx.Debug(ctx, "No open marker, previous run shut down cleanly")
		return nil
	}
	ctx = zapctx.WithFields(ctx, zap.String("session_id", m.SessionID), zap.String("app", m.AppIdentity))

	stored, err := t.store.HasSession(ctx, m.SessionID)
	if err != nil {
		return err
	}
	if stored {
		zapctx.Info(ctx, "Open marker refers to a stored session, clearing it")
		return t.store.ClearOpenMarker(ctx, m.SessionID)
	}

	s := m.Session()
	switch {
	case s.Start.Equal(s.End):
		zapctx.Debug(ctx, "Open session had no duration, clearing marker")
		return t.store.ClearOpenMarker(ctx, m.SessionID)
	case s.End.Before(s.Start):
		zapctx.Warn(ctx, "Discarding open marker",
			zap.Error(fmt.Errorf("%w: last extended %s before start %s", ErrRecoveryInconsistent,
				s.End.Format(time.RFC3339Nano), s.Start.Format(time.RFC3339Nano))))
		return t.store.ClearOpenMarker(ctx, m.SessionID)
	}
	if s.End.After(t.now()) {
		zapctx.Warn(ctx, "Open marker is in the future, closing it at its last extension anyway",
			zap.Error(ErrRecoveryInconsistent), zap.Time("last_extended", s.End))
	}

	s = t.finalize(s)
	if err := t.store.AppendClosedSession(ctx, s); err != nil {
		return fmt.Errorf("append recovered session: %w", err)
	}
	zapctx.Info(ctx, "Recovered session left open by previous run",
		zap.Time("start", s.Start), zap.Time("end", s.End), zap.Bool("idle", s.Idle))
	t.queue.AppendEvent(ctx, t.event(activity.EventRecovered, t.now(), s.ID))
	return nil
}

// HandleSample pushes one sample through the idle detector and the session
// builder and queues the resulting writes.
func (t *Tracker) HandleSample(ctx context.Context, s activity.Sample) {
	if open, ok := t.builder.Current(); ok {
		if gap := s.Timestamp.Sub(open.LastExtended); gap < 0 || gap > t.cfg.SleepGap {
			t.idle.Reset()
		}
	}

	tr := t.builder.Apply(t.idle.Classify(s))

	if tr.SleepGap {
		metrics.SleepGapsTotal.Inc()
		zapctx.Info(ctx, "Sleep gap detected, starting a new session", zap.Time("at", s.Timestamp))
		t.queue.AppendEvent(ctx, t.event(activity.EventResume, s.Timestamp, ""))
	}
	if tr.Closed != nil {
		t.closeSession(ctx, *tr.Closed)
	}

	if tr.Opened || s.Timestamp.Sub(t.lastMarker) >= t.cfg.MarkerFlushInterval {
		t.queue.UpdateMarker(ctx, tr.Open.Marker())
		t.lastMarker = s.Timestamp
	}
	t.publish(*tr.Open)
}

// Stop closes the open session at its last extension and drains the write
// queue. Writes still pending when ctx expires are spilled to disk if a spill
// path is configured; otherwise the last durable marker covers them.
func (t *Tracker) Stop(ctx context.Context) error {
	if open, ok := t.builder.Current(); ok {
		if closed := t.builder.Close(); closed != nil {
			t.closeSession(ctx, *closed)
		} else {
			t.queue.ClearMarker(ctx, open.ID)
		}
	}
	t.current.Store(nil)
	t.running.Store(false)
	t.queue.AppendEvent(ctx, t.event(activity.EventShutdown, t.now(), ""))

	if err := t.queue.Drain(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	zapctx.Info(ctx, "Activity tracker stopped",
		zap.Uint64("sessions_closed", t.closed.Load()),
		zap.Uint64("writes_dropped", t.queue.Dropped()))
	return nil
}

func (t *Tracker) closeSession(ctx context.Context, s activity.Session) {
	s = t.finalize(s)
	t.closed.Add(1)
	metrics.SessionsClosedTotal.WithLabelValues(metrics.IdleLabel(s.Idle)).Inc()
	zapctx.Debug(ctx, "Session closed",
		zap.String("session_id", s.ID),
		zap.String("app", s.AppIdentity),
		zap.String("category", s.Category),
		zap.Duration("duration", s.Duration()),
		zap.Bool("idle", s.Idle))
	t.queue.AppendSession(ctx, s)
}

// finalize stamps the category and tidies the title of a closed session.
func (t *Tracker) finalize(s activity.Session) activity.Session {
	s.Category = t.categorizer.ForSession(s)
	s.WindowTitle = categorize.CleanTitle(s.AppIdentity, s.WindowTitle)
	return s
}

func (t *Tracker) event(kind activity.SystemEventKind, at time.Time, detail string) activity.SystemEvent {
	return activity.SystemEvent{ID: uuid.NewString(), Kind: kind, At: at.Round(0), Detail: detail}
}
