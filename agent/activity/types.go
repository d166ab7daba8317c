// Package activity holds the pure part of the monitoring pipeline: the
// sample and session types, the idle classifier and the session state
// machine. Nothing in this package performs I/O or reads the clock.
package activity

import "time"

// Sample is one observation of the foreground context, taken once per tick.
type Sample struct {
	Timestamp   time.Time // tick time
	AppIdentity string
	WindowTitle string
	LastInput   time.Time
}

// IdleFor returns how long the user had been inactive at sample time.
// Clock skew between the tick and the platform query is clamped to zero.
func (s Sample) IdleFor() time.Duration {
	d := s.Timestamp.Sub(s.LastInput)
	if d < 0 {
		return 0
	}
	return d
}

// ClassifiedSample is a Sample after idle classification.
type ClassifiedSample struct {
	Sample
	Idle bool
	// Tentative marks an active->idle change still inside the hysteresis
	// band above the threshold. The builder waits for the next sample to
	// confirm it.
	Tentative bool
}

// Session is a maximal interval of consistent app and idle state.
// End is zero while the session is open.
type Session struct {
	ID          string    `json:"id"`
	AppIdentity string    `json:"app"`
	WindowTitle string    `json:"window_title"`
	Category    string    `json:"category"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Idle        bool      `json:"idle"`
}

// IsOpen reports whether the session has not been closed yet.
func (s Session) IsOpen() bool {
	return s.End.IsZero()
}

// Duration returns End-Start for a closed session and zero for an open one.
func (s Session) Duration() time.Duration {
	if s.IsOpen() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Valid reports whether a closed session satisfies Start < End and names an app.
func (s Session) Valid() bool {
	return s.ID != "" && s.AppIdentity != "" && !s.IsOpen() && s.Start.Before(s.End)
}

// OpenSessionMarker is the durable checkpoint of the session currently open.
// It carries everything needed to close that session after a crash.
type OpenSessionMarker struct {
	SessionID    string    `json:"session_id"`
	AppIdentity  string    `json:"app"`
	WindowTitle  string    `json:"window_title"`
	Start        time.Time `json:"start"`
	LastExtended time.Time `json:"last_extended"`
	Idle         bool      `json:"idle"`
}

// Session converts the marker into the session it describes, closed at
// LastExtended.
func (m OpenSessionMarker) Session() Session {
	return Session{
		ID:          m.SessionID,
		AppIdentity: m.AppIdentity,
		WindowTitle: m.WindowTitle,
		Start:       m.Start,
		End:         m.LastExtended,
		Idle:        m.Idle,
	}
}

type SystemEventKind string

const (
	EventStartup   SystemEventKind = "startup"
	EventShutdown  SystemEventKind = "shutdown"
	EventRecovered SystemEventKind = "recovered"
	EventResume    SystemEventKind = "resume"
)

// SystemEvent records a lifecycle event of the tracker itself.
type SystemEvent struct {
	ID     string          `json:"id"`
	Kind   SystemEventKind `json:"kind"`
	At     time.Time       `json:"at"`
	Detail string          `json:"detail,omitempty"`
}
