package activity

import (
	"time"

	"github.com/google/uuid"
)

// Params configures session boundaries.
type Params struct {
	// SleepGap is the largest tick-to-tick gap still treated as continuous.
	SleepGap time.Duration
}

// OpenSession is the builder state while a session is open.
type OpenSession struct {
	ID           string
	AppIdentity  string
	WindowTitle  string
	Start        time.Time
	LastExtended time.Time
	Idle         bool

	// pendingIdle is set while an active session has been extended over a
	// tentative idle sample.
	pendingIdle bool
}

// Marker returns the crash-recovery checkpoint for the open session.
func (o OpenSession) Marker() OpenSessionMarker {
	return OpenSessionMarker{
		SessionID:    o.ID,
		AppIdentity:  o.AppIdentity,
		WindowTitle:  o.WindowTitle,
		Start:        o.Start,
		LastExtended: o.LastExtended,
		Idle:         o.Idle,
	}
}

// closeAt closes the session at end. Sessions that would not satisfy
// Start < End are discarded and nil is returned.
func (o OpenSession) closeAt(end time.Time) *Session {
	if !o.Start.Before(end) {
		return nil
	}
	return &Session{
		ID:          o.ID,
		AppIdentity: o.AppIdentity,
		WindowTitle: o.WindowTitle,
		Start:       o.Start,
		End:         end,
		Idle:        o.Idle,
	}
}

// Transition is the outcome of feeding one sample to the builder.
type Transition struct {
	// Open is the state after the sample; never nil.
	Open *OpenSession
	// Closed is the session closed by this sample, if any.
	Closed *Session
	// Opened is set when Open is a new session rather than an extension.
	Opened bool
	// SleepGap is set when the gap since the previous sample exceeded the
	// sleep-gap threshold or went backwards.
	SleepGap bool
}

// Next computes the builder transition for one classified sample. It is a pure
// function of the current state and the sample; newID supplies ids for
// sessions it opens.
func Next(state *OpenSession, s ClassifiedSample, p Params, newID func() string) Transition {
	if state == nil {
		return Transition{Open: openAt(s, newID), Opened: true}
	}

	gap := s.Timestamp.Sub(state.LastExtended)
	if gap < 0 || gap > p.SleepGap {
		return Transition{
			Open:     openAt(s, newID),
			Closed:   state.closeAt(state.LastExtended),
			Opened:   true,
			SleepGap: true,
		}
	}

	if state.AppIdentity == s.AppIdentity && state.Idle == s.Idle {
		next := *state
		next.LastExtended = s.Timestamp
		next.pendingIdle = false
		if s.WindowTitle != "" {
			next.WindowTitle = s.WindowTitle
		}
		return Transition{Open: &next}
	}

	if state.AppIdentity == s.AppIdentity && !state.Idle && s.Idle {
		// An idle onset inside the hysteresis band only counts once the
		// next sample is idle too; the idle session then starts at it.
		if s.Tentative {
			next := *state
			next.LastExtended = s.Timestamp
			next.pendingIdle = true
			return Transition{Open: &next}
		}
		if state.pendingIdle {
			open := openAt(s, newID)
			open.Start = state.LastExtended
			return Transition{
				Open:   open,
				Closed: state.closeAt(state.LastExtended),
				Opened: true,
			}
		}
	}

	return Transition{
		Open:   openAt(s, newID),
		Closed: state.closeAt(s.Timestamp),
		Opened: true,
	}
}

func openAt(s ClassifiedSample, newID func() string) *OpenSession {
	return &OpenSession{
		ID:           newID(),
		AppIdentity:  s.AppIdentity,
		WindowTitle:  s.WindowTitle,
		Start:        s.Timestamp,
		LastExtended: s.Timestamp,
		Idle:         s.Idle,
	}
}

// Builder holds the state for Next between samples. It is not safe for
// concurrent use; the sampler goroutine is its only caller.
type Builder struct {
	params Params
	newID  func() string
	open   *OpenSession
}

// NewBuilder returns a builder in the NoSession state. A nil newID uses
// random UUIDs.
func NewBuilder(p Params, newID func() string) *Builder {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Builder{params: p, newID: newID}
}

// Apply feeds one sample through Next and keeps the resulting state.
func (b *Builder) Apply(s ClassifiedSample) Transition {
	t := Next(b.open, s, b.params, b.newID)
	b.open = t.Open
	return t
}

// Current returns a copy of the open session.
func (b *Builder) Current() (OpenSession, bool) {
	if b.open == nil {
		return OpenSession{}, false
	}
	return *b.open, true
}

// Close ends the open session at its last extension and returns the builder
// to NoSession. It returns nil when nothing was open or the session had no
// duration.
func (b *Builder) Close() *Session {
	if b.open == nil {
		return nil
	}
	closed := b.open.closeAt(b.open.LastExtended)
	b.open = nil
	return closed
}
