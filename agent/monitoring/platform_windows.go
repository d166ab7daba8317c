//go:build windows

package monitoring

import (
	"context"
	"errors"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsPlatform struct {
	now func() time.Time
}

func newPlatform() Platform {
	return &windowsPlatform{now: time.Now}
}

func (p *windowsPlatform) Query(ctx context.Context) (ForegroundContext, error) {
	if err := ctx.Err(); err != nil {
		return ForegroundContext{}, &PlatformError{Op: "query", Err: err}
	}
	now := p.now()

	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return ForegroundContext{}, &PlatformError{Op: "GetForegroundWindow", Err: ErrNoForegroundWindow}
	}

	var processID uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&processID)))
	if processID == 0 {
		return ForegroundContext{}, &PlatformError{Op: "GetWindowThreadProcessId", Err: ErrNoForegroundWindow}
	}

	processName, err := processImageName(processID)
	if err != nil {
		return ForegroundContext{}, err
	}

	idle, err := idleDuration()
	if err != nil {
		return ForegroundContext{}, err
	}

	return ForegroundContext{
		AppIdentity: processName,
		WindowTitle: windowText(hwnd),
		LastInput:   now.Add(-idle),
	}, nil
}

func windowText(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func processImageName(processID uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, processID)
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return "", &PlatformError{Op: "OpenProcess", Err: ErrPermissionDenied}
		}
		return "", &PlatformError{Op: "OpenProcess", Err: err}
	}
	defer windows.CloseHandle(h)

	size := uint32(windows.MAX_PATH)
	buf := make([]uint16, size)
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", &PlatformError{Op: "QueryFullProcessImageName", Err: err}
	}
	return exeBaseName(windows.UTF16ToString(buf[:size])), nil
}

// idleDuration is the time since the last input event, from GetLastInputInfo.
// Both tick values are 32-bit, so the subtraction survives the 49.7 day wrap.
func idleDuration() (time.Duration, error) {
	var info lastInputInfo
	info.cbSize = uint32(unsafe.Sizeof(info))

	ret, _, callErr := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if ret == 0 {
		return 0, &PlatformError{Op: "GetLastInputInfo", Err: callErr}
	}

	tick, _, _ := procGetTickCount.Call()
	idleMillis := uint32(tick) - info.dwTime
	return time.Duration(idleMillis) * time.Millisecond, nil
}
