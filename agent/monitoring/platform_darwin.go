//go:build darwin

package monitoring

import (
	"context"
	"time"
)

const frontmostScript = `tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set windowTitle to ""
	try
		set windowTitle to name of front window of frontApp
	end try
end tell
return appName & linefeed & windowTitle`

// darwinPlatform asks System Events for the frontmost app via osascript and
// reads HIDIdleTime from ioreg.
type darwinPlatform struct {
	cmdExecutor cmdExecutor
	now         func() time.Time
}

func newPlatform() Platform {
	return &darwinPlatform{
		cmdExecutor: defaultCmdExecutor,
		now:         time.Now,
	}
}

func (p *darwinPlatform) Query(ctx context.Context) (ForegroundContext, error) {
	out, err := run(ctx, p.cmdExecutor, "frontmost", "osascript", "-e", frontmostScript)
	if err != nil {
		return ForegroundContext{}, err
	}
	app, title, err := parseFrontmost(out)
	if err != nil {
		return ForegroundContext{}, &PlatformError{Op: "frontmost", Err: err}
	}

	out, err = run(ctx, p.cmdExecutor, "idle", "ioreg", "-c", "IOHIDSystem", "-d", "4")
	if err != nil {
		return ForegroundContext{}, err
	}
	idle, err := parseHIDIdleTime(out)
	if err != nil {
		return ForegroundContext{}, &PlatformError{Op: "idle", Err: err}
	}

	return ForegroundContext{
		AppIdentity: app,
		WindowTitle: title,
		LastInput:   p.now().Add(-idle),
	}, nil
}
