package monitoring

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseHIDIdleTime extracts HIDIdleTime (nanoseconds) from `ioreg -c IOHIDSystem` output.
func parseHIDIdleTime(output []byte) (time.Duration, error) {
	for _, line := range bytes.Split(output, []byte("\n")) {
		lineStr := string(bytes.TrimSpace(line))
		if !strings.Contains(lineStr, `"HIDIdleTime"`) {
			continue
		}
		// Format: "HIDIdleTime" = 123456789
		parts := strings.SplitN(lineStr, "=", 2)
		if len(parts) != 2 {
			continue
		}
		valueStr := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		value, err := strconv.ParseInt(strings.TrimSpace(valueStr), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse idle time value: %w", err)
		}
		return time.Duration(value), nil
	}
	return 0, fmt.Errorf("HIDIdleTime not found in ioreg output")
}

// parseFrontmost splits the osascript output "app\ntitle" into its parts.
func parseFrontmost(output []byte) (app, title string, err error) {
	app, title, _ = strings.Cut(strings.TrimRight(string(output), "\r\n"), "\n")
	app = strings.TrimSpace(app)
	if app == "" {
		return "", "", ErrNoForegroundWindow
	}
	return app, strings.TrimSpace(title), nil
}

// parseMillis parses xprintidle output, the idle time in milliseconds.
func parseMillis(output []byte) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(string(output)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse idle milliseconds: %w", err)
	}
	if ms < 0 {
		return 0, fmt.Errorf("negative idle time %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parsePID(output []byte) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", strings.TrimSpace(string(output)))
	}
	return pid, nil
}

// exeBaseName returns the executable name of a full image path, for both
// Windows and POSIX separators.
func exeBaseName(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// isPermissionOutput recognises the messages macOS and X11 print when the
// process lacks the rights to inspect other windows.
func isPermissionOutput(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not allowed") ||
		strings.Contains(msg, "-1743") ||
		strings.Contains(msg, "-25211") ||
		strings.Contains(msg, "can't open display") ||
		strings.Contains(msg, "permission denied")
}
