//go:build integration

package database

import (
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: CLICKHOUSE_ADDR=localhost:9000 go test -tags integration ./server/database/
func newTestClickHouse(t *testing.T) *ClickHouse {
	t.Helper()
	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		t.Skip("CLICKHOUSE_ADDR not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err, "CLICKHOUSE_ADDR must be host:port")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	db, err := NewClickHouse(t.Context(), ClickHouseConfig{
		Host:     host,
		Port:     port,
		Database: envOr("CLICKHOUSE_DATABASE", "default"),
		Username: envOr("CLICKHOUSE_USER", "default"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoSyncSchema(t.Context()))
	t.Cleanup(func() { db.Close() })
	return db
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestClickHouseSessionRoundTrip(t *testing.T) {
	db := newTestClickHouse(t)
	ctx := t.Context()

	start := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	app := "it-" + uuid.NewString()
	s := activity.Session{ID: uuid.NewString(), AppIdentity: app, WindowTitle: "t", Category: "Development", Start: start, End: start.Add(time.Minute)}

	marker := activity.OpenSessionMarker{SessionID: s.ID, AppIdentity: app, Start: s.Start, LastExtended: s.End}
	require.NoError(t, db.UpdateOpenMarker(ctx, marker))
	require.NoError(t, db.AppendClosedSession(ctx, s))
	require.NoError(t, db.AppendClosedSession(ctx, s))

	got, err := db.ListSessions(ctx, start.Add(-time.Minute), start.Add(time.Hour), app)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, s.ID, got[0].ID)
	assert.True(t, got[0].End.Equal(s.End))

	m, err := db.RecoverOpenMarker(ctx)
	require.NoError(t, err)
	if m != nil {
		assert.NotEqual(t, s.ID, m.SessionID)
	}
}

func TestClickHouseMarker(t *testing.T) {
	db := newTestClickHouse(t)
	ctx := t.Context()

	start := time.Now().UTC().Truncate(time.Millisecond)
	marker := activity.OpenSessionMarker{SessionID: uuid.NewString(), AppIdentity: "code", Start: start, LastExtended: start.Add(5 * time.Second)}
	require.NoError(t, db.UpdateOpenMarker(ctx, marker))

	m, err := db.RecoverOpenMarker(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, marker.SessionID, m.SessionID)
	assert.True(t, marker.LastExtended.Equal(m.LastExtended))

	require.NoError(t, db.ClearOpenMarker(ctx, marker.SessionID))
	m, err = db.RecoverOpenMarker(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestClickHouseSystemEvents(t *testing.T) {
	db := newTestClickHouse(t)
	ctx := t.Context()

	at := time.Now().UTC().Truncate(time.Millisecond)
	e := activity.SystemEvent{ID: uuid.NewString(), Kind: activity.EventStartup, At: at}
	require.NoError(t, db.AppendSystemEvent(ctx, e))

	events, err := db.ListSystemEvents(ctx, at, at.Add(time.Millisecond))
	require.NoError(t, err)
	found := false
	for _, got := range events {
		if got.ID == e.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestClickHouseMarkerAfterClockStepBack(t *testing.T) {
	db := newTestClickHouse(t)
	ctx := t.Context()

	start := time.Now().UTC().Truncate(time.Millisecond)
	first := activity.OpenSessionMarker{SessionID: uuid.NewString(), AppIdentity: "code", Start: start, LastExtended: start.Add(time.Second)}
	require.NoError(t, db.UpdateOpenMarker(ctx, first))

	db.now = func() time.Time { return time.Now().Add(-time.Hour) }
	second := first
	second.LastExtended = start.Add(5 * time.Second)
	require.NoError(t, db.UpdateOpenMarker(ctx, second))

	m, err := db.RecoverOpenMarker(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, second.LastExtended.Equal(m.LastExtended))

	require.NoError(t, db.ClearOpenMarker(ctx, second.SessionID))
	m, err = db.RecoverOpenMarker(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)
}
