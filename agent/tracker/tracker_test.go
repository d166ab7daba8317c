package tracker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/agent/buffer"
	"github.com/ctolnik/activity-tracker/agent/categorize"
	"github.com/ctolnik/activity-tracker/agent/monitoring"
	"github.com/ctolnik/activity-tracker/server/database"
	"github.com/ctolnik/activity-tracker/zapctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var epoch = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func at(ms int64) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

type memStore struct {
	mu       sync.Mutex
	sessions []activity.Session
	marker   *activity.OpenSessionMarker
	events   []activity.SystemEvent
}

func (m *memStore) AppendClosedSession(_ context.Context, s activity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.ID == s.ID {
			return nil
		}
	}
	m.sessions = append(m.sessions, s)
	if m.marker != nil && m.marker.SessionID == s.ID {
		m.marker = nil
	}
	return nil
}

func (m *memStore) UpdateOpenMarker(_ context.Context, marker activity.OpenSessionMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marker = &marker
	return nil
}

func (m *memStore) ClearOpenMarker(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marker != nil && m.marker.SessionID == id {
		m.marker = nil
	}
	return nil
}

func (m *memStore) AppendSystemEvent(_ context.Context, e activity.SystemEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) RecoverOpenMarker(context.Context) (*activity.OpenSessionMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marker == nil {
		return nil, nil
	}
	marker := *m.marker
	return &marker, nil
}

func (m *memStore) HasSession(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) eventKinds() []activity.SystemEventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]activity.SystemEventKind, 0, len(m.events))
	for _, e := range m.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func testConfig() Config {
	return Config{
		Interval:            time.Second,
		PlatformTimeout:     time.Second,
		IdleThreshold:       5 * time.Second,
		IdleHysteresis:      time.Second,
		SleepGap:            3 * time.Second,
		MarkerFlushInterval: 5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		Queue:               buffer.Config{Capacity: 64, RetryDelay: time.Millisecond},
	}
}

var nowhere = monitoring.PlatformFunc(func(context.Context) (monitoring.ForegroundContext, error) {
	return monitoring.ForegroundContext{}, monitoring.ErrNoForegroundWindow
})

func newTestTracker(cfg Config, store Store) *Tracker {
	tr := New(cfg, nowhere, store, categorize.New(nil))
	tr.now = func() time.Time { return at(60000) }
	return tr
}

func stop(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Stop(ctx))
}

func TestEditorScenarioIsPersisted(t *testing.T) {
	store := &memStore{}
	tr := newTestTracker(testConfig(), store)
	ctx := t.Context()
	tr.Start(ctx)

	for ms := int64(0); ms <= 6000; ms += 1000 {
		tr.HandleSample(ctx, activity.Sample{Timestamp: at(ms), AppIdentity: "Editor", WindowTitle: "main.go", LastInput: at(ms)})
	}
	for ms := int64(7000); ms <= 13000; ms += 1000 {
		tr.HandleSample(ctx, activity.Sample{Timestamp: at(ms), AppIdentity: "Editor", WindowTitle: "main.go", LastInput: at(1500)})
	}
	stop(t, tr)

	require.Len(t, store.sessions, 2)
	active, idle := store.sessions[0], store.sessions[1]

	assert.Equal(t, "Editor", active.AppIdentity)
	assert.False(t, active.Idle)
	assert.Equal(t, at(0), active.Start)
	assert.Equal(t, at(7000), active.End)
	assert.Equal(t, categorize.Development, active.Category)

	assert.True(t, idle.Idle)
	assert.Equal(t, at(7000), idle.Start)
	assert.Equal(t, at(13000), idle.End)
	assert.Equal(t, categorize.Idle, idle.Category)

	assert.Nil(t, store.marker)
	assert.Equal(t, []activity.SystemEventKind{activity.EventStartup, activity.EventShutdown}, store.eventKinds())
}

func TestMarkerIsRateLimited(t *testing.T) {
	tr := newTestTracker(testConfig(), &memStore{})
	ctx := t.Context()

	tr.HandleSample(ctx, activity.Sample{Timestamp: at(0), AppIdentity: "code", LastInput: at(0)})
	assert.Equal(t, at(0), tr.lastMarker)

	for ms := int64(1000); ms <= 4000; ms += 1000 {
		tr.HandleSample(ctx, activity.Sample{Timestamp: at(ms), AppIdentity: "code", LastInput: at(ms)})
	}
	assert.Equal(t, at(0), tr.lastMarker)

	tr.HandleSample(ctx, activity.Sample{Timestamp: at(5000), AppIdentity: "code", LastInput: at(5000)})
	assert.Equal(t, at(5000), tr.lastMarker)

	// A new session always writes its marker.
	tr.HandleSample(ctx, activity.Sample{Timestamp: at(6000), AppIdentity: "firefox", LastInput: at(6000)})
	assert.Equal(t, at(6000), tr.lastMarker)
	assert.Equal(t, 2, tr.queue.Len(), "the closed session and one coalesced marker")
}

func TestSleepGapSplitsAndRecordsResume(t *testing.T) {
	store := &memStore{}
	tr := newTestTracker(testConfig(), store)
	ctx := t.Context()
	tr.Start(ctx)

	for _, ms := range []int64{0, 1000, 2000, 60000, 61000} {
		tr.HandleSample(ctx, activity.Sample{Timestamp: at(ms), AppIdentity: "code", LastInput: at(ms)})
	}
	stop(t, tr)

	require.Len(t, store.sessions, 2)
	assert.Equal(t, at(2000), store.sessions[0].End, "closed at last extension, not at the resumed sample")
	assert.Equal(t, at(60000), store.sessions[1].Start)
	assert.Equal(t, at(61000), store.sessions[1].End)
	assert.Equal(t,
		[]activity.SystemEventKind{activity.EventStartup, activity.EventResume, activity.EventShutdown},
		store.eventKinds())
}

func TestSleepGapResetsIdleState(t *testing.T) {
	tr := newTestTracker(testConfig(), &memStore{})
	ctx := t.Context()

	tr.HandleSample(ctx, activity.Sample{Timestamp: at(10000), AppIdentity: "code", LastInput: at(0)})
	cur, _ := tr.builder.Current()
	require.True(t, cur.Idle)

	// After the gap, input 2s old is active although idle hysteresis would
	// have kept the pre-sleep idle state.
	tr.HandleSample(ctx, activity.Sample{Timestamp: at(100000), AppIdentity: "code", LastInput: at(98000)})
	cur, _ = tr.builder.Current()
	assert.False(t, cur.Idle)
}

func TestStopClearsMarkerOfZeroDurationSession(t *testing.T) {
	store := &memStore{}
	tr := newTestTracker(testConfig(), store)
	ctx := t.Context()
	tr.Start(ctx)

	tr.HandleSample(ctx, activity.Sample{Timestamp: at(0), AppIdentity: "code", LastInput: at(0)})
	stop(t, tr)

	assert.Empty(t, store.sessions)
	assert.Nil(t, store.marker)
}

func TestRecoverClosesOpenMarker(t *testing.T) {
	store := &memStore{marker: &activity.OpenSessionMarker{
		SessionID: "m1", AppIdentity: "firefox", WindowTitle: "Docs - Mozilla Firefox",
		Start: at(0), LastExtended: at(5000),
	}}
	tr := newTestTracker(testConfig(), store)
	ctx := t.Context()

	require.NoError(t, tr.Recover(ctx))
	require.Len(t, store.sessions, 1)
	s := store.sessions[0]
	assert.Equal(t, "m1", s.ID)
	assert.Equal(t, at(0), s.Start)
	assert.Equal(t, at(5000), s.End)
	assert.Equal(t, categorize.Browser, s.Category)
	assert.Equal(t, "Docs", s.WindowTitle)
	assert.Nil(t, store.marker)

	tr.Start(ctx)
	stop(t, tr)
	require.Len(t, store.events, 3)
	assert.Equal(t, activity.EventRecovered, store.events[0].Kind)
	assert.Equal(t, "m1", store.events[0].Detail)
}

func TestRecoverMarkerOfStoredSession(t *testing.T) {
	stored := activity.Session{ID: "m1", AppIdentity: "code", Start: at(0), End: at(5000)}
	store := &memStore{
		sessions: []activity.Session{stored},
		marker:   &activity.OpenSessionMarker{SessionID: "m1", AppIdentity: "code", Start: at(0), LastExtended: at(5000)},
	}
	tr := newTestTracker(testConfig(), store)

	require.NoError(t, tr.Recover(t.Context()))
	assert.Equal(t, []activity.Session{stored}, store.sessions)
	assert.Nil(t, store.marker)
	assert.Zero(t, tr.queue.Len())
}

func TestRecoverInconsistentMarker(t *testing.T) {
	tests := []struct {
		name     string
		last     int64
		wantWarn bool
	}{
		{"no duration", 3000, false},
		{"last extended before start", 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			ctx := zapctx.WithLogger(t.Context(), zap.New(core))
			store := &memStore{marker: &activity.OpenSessionMarker{
				SessionID: "m1", AppIdentity: "code", Start: at(3000), LastExtended: at(tt.last),
			}}
			tr := newTestTracker(testConfig(), store)

			require.NoError(t, tr.Recover(ctx))
			assert.Empty(t, store.sessions)
			assert.Nil(t, store.marker)

			warned := logs.FilterMessage("Discarding open marker").Len() == 1
			assert.Equal(t, tt.wantWarn, warned)
		})
	}
}

func TestRecoverWithoutMarker(t *testing.T) {
	store := &memStore{}
	tr := newTestTracker(testConfig(), store)
	require.NoError(t, tr.Recover(t.Context()))
	assert.Empty(t, store.sessions)
	assert.Zero(t, tr.queue.Len())
}

func TestStatus(t *testing.T) {
	tr := newTestTracker(testConfig(), &memStore{})
	ctx := t.Context()

	st := tr.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.Current)

	tr.Start(ctx)
	tr.HandleSample(ctx, activity.Sample{Timestamp: at(0), AppIdentity: "slack", WindowTitle: "general", LastInput: at(0)})
	tr.HandleSample(ctx, activity.Sample{Timestamp: at(1000), AppIdentity: "slack", LastInput: at(1000)})

	st = tr.Status()
	assert.True(t, st.Running)
	require.NotNil(t, st.Current)
	assert.Equal(t, "slack", st.Current.AppIdentity)
	assert.Equal(t, "general", st.Current.WindowTitle)
	assert.Equal(t, categorize.Communication, st.Current.Category)
	assert.Equal(t, at(1000), st.Current.LastExtended)

	stop(t, tr)
	st = tr.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.Current)
	assert.Equal(t, uint64(1), st.SessionsClosed)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &memStore{}
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	platform := monitoring.PlatformFunc(func(context.Context) (monitoring.ForegroundContext, error) {
		return monitoring.ForegroundContext{AppIdentity: "code", WindowTitle: "x", LastInput: time.Now()}, nil
	})
	tr := New(cfg, platform, store, nil)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, tr.Run(ctx))

	assert.False(t, tr.Status().Running)
	assert.Positive(t, tr.Status().Samples)
	kinds := store.eventKinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, activity.EventStartup, kinds[0])
	assert.Equal(t, activity.EventShutdown, kinds[len(kinds)-1])
	assert.Nil(t, store.marker)
	for _, s := range store.sessions {
		assert.True(t, s.Start.Before(s.End))
	}
}

func TestCrashRecoveryWithSQLite(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "activity.db")
	cfg := testConfig()
	cfg.MarkerFlushInterval = time.Second

	db, err := database.NewSQLite(ctx, path)
	require.NoError(t, err)
	first := newTestTracker(cfg, db)
	first.Start(ctx)
	for ms := int64(0); ms <= 6000; ms += 1000 {
		first.HandleSample(ctx, activity.Sample{Timestamp: at(ms), AppIdentity: "code", WindowTitle: "main.go", LastInput: at(ms)})
	}
	// Crash: flush the queue but never close the open session.
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, first.queue.Drain(drainCtx))
	require.NoError(t, db.Close())

	db, err = database.NewSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	second := newTestTracker(cfg, db)
	require.NoError(t, second.Recover(ctx))

	sessions, err := db.ListSessions(ctx, at(0), at(60000), "")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Start.Equal(at(0)))
	assert.True(t, sessions[0].End.Equal(at(6000)), "closed at the persisted last extension")

	m, err := db.RecoverOpenMarker(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)

	// Recovering twice is harmless.
	require.NoError(t, second.Recover(ctx))
	sessions, err = db.ListSessions(ctx, at(0), at(60000), "")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
