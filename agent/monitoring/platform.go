// Package monitoring queries the operating system for the foreground
// application and the time of the last user input, and turns those queries
// into timestamped samples on a fixed cadence.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoForegroundWindow  = errors.New("no foreground window")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// ForegroundContext is the result of one platform query.
type ForegroundContext struct {
	AppIdentity string
	WindowTitle string
	LastInput   time.Time
}

// Platform reports the current foreground context. One implementation is
// compiled in per operating system; see NewPlatform.
type Platform interface {
	Query(ctx context.Context) (ForegroundContext, error)
}

// PlatformFunc adapts a function to the Platform interface.
type PlatformFunc func(ctx context.Context) (ForegroundContext, error)

func (f PlatformFunc) Query(ctx context.Context) (ForegroundContext, error) {
	return f(ctx)
}

// PlatformError is a failed platform query. All platform errors are
// transient: the sampler skips the tick and keeps going.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform query %s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewPlatform returns the platform query for the running OS.
func NewPlatform() Platform {
	return newPlatform()
}
