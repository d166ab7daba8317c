package tracker

import (
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
)

// CurrentSession describes the session open right now.
type CurrentSession struct {
	ID           string    `json:"id"`
	AppIdentity  string    `json:"app"`
	WindowTitle  string    `json:"window_title"`
	Category     string    `json:"category"`
	Start        time.Time `json:"start"`
	LastExtended time.Time `json:"last_extended"`
	Idle         bool      `json:"idle"`
}

// Status is a read-only snapshot for live front-ends.
type Status struct {
	Running          bool            `json:"running"`
	Current          *CurrentSession `json:"current,omitempty"`
	Samples          uint64          `json:"samples"`
	PlatformFailures uint64          `json:"platform_failures"`
	SessionsClosed   uint64          `json:"sessions_closed"`
	WritesApplied    uint64          `json:"writes_applied"`
	WritesDropped    uint64          `json:"writes_dropped"`
	QueueDepth       int             `json:"queue_depth"`
}

// Status returns the current snapshot. It is safe for concurrent use.
func (t *Tracker) Status() Status {
	return Status{
		Running:          t.running.Load(),
		Current:          t.current.Load(),
		Samples:          t.sampler.Samples(),
		PlatformFailures: t.sampler.Failures(),
		SessionsClosed:   t.closed.Load(),
		WritesApplied:    t.queue.Written(),
		WritesDropped:    t.queue.Dropped(),
		QueueDepth:       t.queue.Len(),
	}
}

func (t *Tracker) publish(o activity.OpenSession) {
	category := t.categorizer.ForSession(activity.Session{AppIdentity: o.AppIdentity, Idle: o.Idle})
	t.current.Store(&CurrentSession{
		ID:           o.ID,
		AppIdentity:  o.AppIdentity,
		WindowTitle:  o.WindowTitle,
		Category:     category,
		Start:        o.Start,
		LastExtended: o.LastExtended,
		Idle:         o.Idle,
	})
}
