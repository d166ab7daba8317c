package buffer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/agent/metrics"
	"github.com/ctolnik/activity-tracker/zapctx"
	"go.uber.org/zap"
)

const (
	defaultCapacity      = 256
	defaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 30 * time.Second
)

// Kind identifies what a pending write does.
type Kind string

const (
	KindSession     Kind = "session"
	KindEvent       Kind = "event"
	KindMarker      Kind = "marker"
	KindClearMarker Kind = "clear_marker"
)

func (k Kind) isMarker() bool {
	return k == KindMarker || k == KindClearMarker
}

// Sink is the durable store behind the queue.
type Sink interface {
	AppendClosedSession(ctx context.Context, s activity.Session) error
	UpdateOpenMarker(ctx context.Context, m activity.OpenSessionMarker) error
	ClearOpenMarker(ctx context.Context, sessionID string) error
	AppendSystemEvent(ctx context.Context, e activity.SystemEvent) error
}

// WriteError is a write that still failed after every retry and was dropped.
type WriteError struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s write failed after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type write struct {
	kind      Kind
	session   activity.Session
	marker    activity.OpenSessionMarker
	sessionID string
	event     activity.SystemEvent
}

func (w write) fields() []zap.Field {
	switch w.kind {
	case KindSession:
		return []zap.Field{zap.String("kind", string(w.kind)), zap.String("session_id", w.session.ID)}
	case KindMarker:
		return []zap.Field{zap.String("kind", string(w.kind)), zap.String("session_id", w.marker.SessionID)}
	case KindClearMarker:
		return []zap.Field{zap.String("kind", string(w.kind)), zap.String("session_id", w.sessionID)}
	default:
		return []zap.Field{zap.String("kind", string(w.kind)), zap.String("event", string(w.event.Kind))}
	}
}

// Config holds write queue configuration
type Config struct {
	Capacity      int
	RetryAttempts int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// SpillPath, when set, receives the writes a timed-out Drain abandons.
	SpillPath string
}

// WriteQueue hands writes from the sampler goroutine to a single worker that
// applies them to the Sink in FIFO order. The queue is bounded; when it is
// full the lowest priority pending write is dropped: the pending marker
// first, then the oldest system event, then the oldest session. At most one
// marker write is pending at a time, newer markers replace older ones.
type WriteQueue struct {
	sink Sink
	cfg  Config

	mu      sync.Mutex
	pending []write
	closing bool
	started bool

	notify chan struct{}
	done   chan struct{}
	cancel context.CancelFunc

	written atomic.Uint64
	dropped atomic.Uint64
}

func New(sink Sink, cfg Config) *WriteQueue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	return &WriteQueue{
		sink:    sink,
		cfg:     cfg,
		pending: make([]write, 0, cfg.Capacity),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. The worker keeps the values of ctx but not its
// cancellation: it runs until Drain.
func (q *WriteQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.mu.Unlock()

	go q.run(ctx)
}

// AppendSession queues a closed session.
func (q *WriteQueue) AppendSession(ctx context.Context, s activity.Session) {
	q.enqueue(ctx, write{kind: KindSession, session: s})
}

// UpdateMarker queues a marker update, replacing any pending one.
func (q *WriteQueue) UpdateMarker(ctx context.Context, m activity.OpenSessionMarker) {
	q.enqueue(ctx, write{kind: KindMarker, marker: m})
}

// ClearMarker queues removal of the marker for sessionID, replacing any
// pending marker write.
func (q *WriteQueue) ClearMarker(ctx context.Context, sessionID string) {
	q.enqueue(ctx, write{kind: KindClearMarker, sessionID: sessionID})
}

// AppendEvent queues a system event.
func (q *WriteQueue) AppendEvent(ctx context.Context, e activity.SystemEvent) {
	q.enqueue(ctx, write{kind: KindEvent, event: e})
}

func (q *WriteQueue) enqueue(ctx context.Context, w write) {
	q.mu.Lock()

	if q.closing {
		q.mu.Unlock()
		q.drop(ctx, w, "closed")
		return
	}

	var evicted *write
	if w.kind.isMarker() {
		if i := q.markerIndex(); i >= 0 {
			q.removeAt(i)
		}
	}
	if len(q.pending) >= q.cfg.Capacity {
		i := q.evictionIndex()
		if w.kind.isMarker() && !q.pending[i].kind.isMarker() {
			// Nothing queued ranks below a marker.
			q.mu.Unlock()
			q.drop(ctx, w, "queue_full")
			return
		}
		victim := q.pending[i]
		evicted = &victim
		q.removeAt(i)
	}
	q.pending = append(q.pending, w)
	depth := len(q.pending)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	if evicted != nil {
		q.drop(ctx, *evicted, "queue_full")
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// markerIndex returns the position of the pending marker write or -1.
// Called with q.mu held.
func (q *WriteQueue) markerIndex() int {
	for i, w := range q.pending {
		if w.kind.isMarker() {
			return i
		}
	}
	return -1
}

// evictionIndex picks the write to drop from a full queue.
// Called with q.mu held.
func (q *WriteQueue) evictionIndex() int {
	if i := q.markerIndex(); i >= 0 {
		return i
	}
	for i, w := range q.pending {
		if w.kind == KindEvent {
			return i
		}
	}
	return 0
}

func (q *WriteQueue) removeAt(i int) {
	copy(q.pending[i:], q.pending[i+1:])
	q.pending[len(q.pending)-1] = write{}
	q.pending = q.pending[:len(q.pending)-1]
}

func (q *WriteQueue) drop(ctx context.Context, w write, reason string) {
	q.dropped.Add(1)
	metrics.WritesDroppedTotal.WithLabelValues(string(w.kind), reason).Inc()
	zapctx.Warn(ctx, "Dropping pending write", append(w.fields(), zap.String("reason", reason))...)
}

func (q *WriteQueue) next() (write, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return write{}, false, q.closing
	}
	w := q.pending[0]
	q.removeAt(0)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	return w, true, q.closing
}

func (q *WriteQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		w, ok, closing := q.next()
		if !ok {
			if closing {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
			}
			continue
		}
		if err := q.write(ctx, w); err != nil {
			q.dropped.Add(1)
			metrics.WritesDroppedTotal.WithLabelValues(string(w.kind), "retries_exhausted").Inc()
			zapctx.Error(ctx, "Dropping write after retries", append(w.fields(), zap.Error(err))...)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// write applies w with exponential backoff. A marker write whose retry is
// superseded by a newer pending marker is abandoned without error.
func (q *WriteQueue) write(ctx context.Context, w write) error {
	var lastErr error
	delay := q.cfg.RetryDelay
	attempts := 0
	for attempt := 0; attempt <= q.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if w.kind.isMarker() && q.hasPendingMarker() {
				zapctx.Debug(ctx, "Marker write superseded", w.fields()...)
				return nil
			}
			zapctx.Warn(ctx, "Retrying store write",
				append(w.fields(), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))...)
			metrics.WriteRetriesTotal.WithLabelValues(string(w.kind)).Inc()

			select {
			case <-ctx.Done():
				return &WriteError{Kind: w.kind, Attempts: attempts, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
			if delay > q.cfg.MaxRetryDelay {
				delay = q.cfg.MaxRetryDelay
			}
		}

		attempts++
		start := time.Now()
		lastErr = q.apply(ctx, w)
		metrics.WriteDuration.WithLabelValues(string(w.kind)).Observe(time.Since(start).Seconds())
		if lastErr == nil {
			q.written.Add(1)
			return nil
		}
	}
	return &WriteError{Kind: w.kind, Attempts: attempts, Err: lastErr}
}

func (q *WriteQueue) apply(ctx context.Context, w write) error {
	switch w.kind {
	case KindSession:
		return q.sink.AppendClosedSession(ctx, w.session)
	case KindMarker:
		return q.sink.UpdateOpenMarker(ctx, w.marker)
	case KindClearMarker:
		return q.sink.ClearOpenMarker(ctx, w.sessionID)
	case KindEvent:
		return q.sink.AppendSystemEvent(ctx, w.event)
	default:
		return fmt.Errorf("unknown write kind %q", w.kind)
	}
}

func (q *WriteQueue) hasPendingMarker() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.markerIndex() >= 0
}

// Drain stops accepting writes and waits until every pending write has been
// applied or ctx expires. On expiry the worker is cancelled and the writes
// still pending are saved to SpillPath, or lost when it is unset.
func (q *WriteQueue) Drain(ctx context.Context) error {
	q.mu.Lock()
	q.closing = true
	started := q.started
	q.mu.Unlock()

	if !started {
		if n := q.Len(); n > 0 {
			return fmt.Errorf("write queue never started, %d writes lost", n)
		}
		return nil
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}

	select {
	case <-q.done:
		zapctx.Info(ctx, "Write queue drained", zap.Uint64("written", q.Written()), zap.Uint64("dropped", q.Dropped()))
		return nil
	case <-ctx.Done():
		q.cancel()
		n := q.Len()
		zapctx.Error(ctx, "Write queue drain timed out", zap.Int("queue_depth", n))
		if q.cfg.SpillPath != "" && n > 0 {
			if err := q.spill(); err != nil {
				zapctx.Error(ctx, "Failed to spill pending writes", zap.String("path", q.cfg.SpillPath), zap.Error(err))
			} else {
				zapctx.Warn(ctx, "Pending writes spilled to disk", zap.String("path", q.cfg.SpillPath), zap.Int("count", n))
			}
		}
		return fmt.Errorf("drain write queue with %d pending: %w", n, ctx.Err())
	}
}

// Len returns the number of pending writes.
func (q *WriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Written returns the number of writes applied to the sink.
func (q *WriteQueue) Written() uint64 {
	return q.written.Load()
}

// Dropped returns the number of writes lost to overflow, shutdown or
// exhausted retries.
func (q *WriteQueue) Dropped() uint64 {
	return q.dropped.Load()
}
