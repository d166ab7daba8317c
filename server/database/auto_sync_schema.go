package database

import (
	"context"

	"github.com/ctolnik/activity-tracker/zapctx"
	"go.uber.org/zap"
)

// AutoSyncSchema creates the ClickHouse tables if they do not exist.
// It runs on every start and is idempotent.
func (db *ClickHouse) AutoSyncSchema(ctx context.Context) error {
	zapctx.Info(ctx, "Auto-syncing ClickHouse schema...")

	tables := []struct {
		name string
		ddl  string
	}{
		{"activity_sessions", `
CREATE TABLE IF NOT EXISTS activity_sessions (
    id String,
    app String,
    title String,
    category LowCardinality(String),
    start_time DateTime64(3, 'UTC'),
    end_time DateTime64(3, 'UTC'),
    idle UInt8,
    inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(inserted_at)
PARTITION BY toYYYYMM(start_time)
ORDER BY (start_time, id)
SETTINGS index_granularity = 8192`},
		{"open_marker", `
CREATE TABLE IF NOT EXISTS open_marker (
    slot UInt8,
    session_id String,
    app String,
    title String,
    start_time DateTime64(3, 'UTC'),
    last_extended DateTime64(3, 'UTC'),
    idle UInt8,
    cleared UInt8,
    version UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY slot`},
		{"system_events", `
CREATE TABLE IF NOT EXISTS system_events (
    id String,
    kind LowCardinality(String),
    at DateTime64(3, 'UTC'),
    detail String
) ENGINE = ReplacingMergeTree
ORDER BY (at, id)`},
	}

	for _, t := range tables {
		if err := db.conn.Exec(ctx, t.ddl); err != nil {
			zapctx.Error(ctx, "Failed to create table", zap.String("table", t.name), zap.Error(err))
			return err
		}
	}

	indexSQL := []string{
		`ALTER TABLE activity_sessions ADD INDEX IF NOT EXISTS idx_app app TYPE set(0) GRANULARITY 4`,
		`ALTER TABLE activity_sessions ADD INDEX IF NOT EXISTS idx_id id TYPE bloom_filter GRANULARITY 4`,
	}
	for _, sql := range indexSQL {
		if err := db.conn.Exec(ctx, sql); err != nil {
			zapctx.Warn(ctx, "Failed to add index", zap.Error(err))
		}
	}

	if err := db.loadMarkerVersion(ctx); err != nil {
		zapctx.Error(ctx, "Failed to load marker version", zap.Error(err))
		return err
	}

	zapctx.Info(ctx, "ClickHouse schema is up to date")
	return nil
}
