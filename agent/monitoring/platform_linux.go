//go:build linux

package monitoring

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// linuxPlatform queries an X11 session through xdotool and xprintidle.
// Wayland compositors do not expose the active window to clients.
type linuxPlatform struct {
	cmdExecutor cmdExecutor
	readFile    func(name string) ([]byte, error)
	now         func() time.Time
}

func newPlatform() Platform {
	return &linuxPlatform{
		cmdExecutor: defaultCmdExecutor,
		readFile:    os.ReadFile,
		now:         time.Now,
	}
}

func (p *linuxPlatform) Query(ctx context.Context) (ForegroundContext, error) {
	out, err := run(ctx, p.cmdExecutor, "active window", "xdotool", "getactivewindow", "getwindowpid")
	if err != nil {
		if pe, ok := err.(*PlatformError); ok && pe.Err != ErrPermissionDenied && ctx.Err() == nil {
			pe.Err = fmt.Errorf("%w: %v", ErrNoForegroundWindow, pe.Err)
		}
		return ForegroundContext{}, err
	}
	pid, err := parsePID(out)
	if err != nil {
		return ForegroundContext{}, &PlatformError{Op: "active window", Err: err}
	}

	comm, err := p.readFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return ForegroundContext{}, &PlatformError{Op: "process name", Err: err}
	}
	app := strings.TrimSpace(string(comm))

	title, err := run(ctx, p.cmdExecutor, "window title", "xdotool", "getactivewindow", "getwindowname")
	if err != nil {
		return ForegroundContext{}, err
	}

	out, err = run(ctx, p.cmdExecutor, "idle", "xprintidle")
	if err != nil {
		return ForegroundContext{}, err
	}
	idle, err := parseMillis(out)
	if err != nil {
		return ForegroundContext{}, &PlatformError{Op: "idle", Err: err}
	}

	return ForegroundContext{
		AppIdentity: app,
		WindowTitle: strings.TrimSpace(string(title)),
		LastInput:   p.now().Add(-idle),
	}, nil
}
