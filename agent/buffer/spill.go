package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/zapctx"
	"go.uber.org/zap"
)

// spillRecord is the on-disk form of a pending write.
type spillRecord struct {
	Kind      Kind                        `json:"kind"`
	Session   *activity.Session           `json:"session,omitempty"`
	Marker    *activity.OpenSessionMarker `json:"marker,omitempty"`
	SessionID string                      `json:"session_id,omitempty"`
	Event     *activity.SystemEvent       `json:"event,omitempty"`
}

func toRecord(w write) spillRecord {
	r := spillRecord{Kind: w.kind}
	switch w.kind {
	case KindSession:
		r.Session = &w.session
	case KindMarker:
		r.Marker = &w.marker
	case KindClearMarker:
		r.SessionID = w.sessionID
	case KindEvent:
		r.Event = &w.event
	}
	return r
}

func fromRecord(r spillRecord) (write, bool) {
	switch {
	case r.Kind == KindSession && r.Session != nil:
		return write{kind: KindSession, session: *r.Session}, true
	case r.Kind == KindMarker && r.Marker != nil:
		return write{kind: KindMarker, marker: *r.Marker}, true
	case r.Kind == KindClearMarker && r.SessionID != "":
		return write{kind: KindClearMarker, sessionID: r.SessionID}, true
	case r.Kind == KindEvent && r.Event != nil:
		return write{kind: KindEvent, event: *r.Event}, true
	}
	return write{}, false
}

// spill saves the pending writes to cfg.SpillPath.
func (q *WriteQueue) spill() error {
	q.mu.Lock()
	records := make([]spillRecord, 0, len(q.pending))
	for _, w := range q.pending {
		records = append(records, toRecord(w))
	}
	q.mu.Unlock()

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal pending writes: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(q.cfg.SpillPath), 0755); err != nil {
		return fmt.Errorf("failed to create spill directory: %w", err)
	}
	tmp := q.cfg.SpillPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write spill file: %w", err)
	}
	return os.Rename(tmp, q.cfg.SpillPath)
}

// ReplaySpill applies writes spilled by a previous run directly to sink, in
// their original order, and removes the file. It must run before the marker
// is recovered. Writes that fail are logged and skipped.
func ReplaySpill(ctx context.Context, sink Sink, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read spill file: %w", err)
	}

	var records []spillRecord
	if err := json.Unmarshal(data, &records); err != nil {
		zapctx.Error(ctx, "Discarding unreadable spill file", zap.String("path", path), zap.Error(err))
		return 0, os.Remove(path)
	}

	q := &WriteQueue{sink: sink}
	applied := 0
	for _, r := range records {
		w, ok := fromRecord(r)
		if !ok {
			zapctx.Warn(ctx, "Skipping malformed spilled write", zap.String("kind", string(r.Kind)))
			continue
		}
		if err := q.apply(ctx, w); err != nil {
			zapctx.Error(ctx, "Failed to replay spilled write", append(w.fields(), zap.Error(err))...)
			continue
		}
		applied++
	}

	zapctx.Info(ctx, "Replayed spilled writes", zap.Int("applied", applied), zap.Int("total", len(records)))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return applied, fmt.Errorf("failed to remove spill file: %w", err)
	}
	return applied, nil
}
