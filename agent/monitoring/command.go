//go:build darwin || linux

package monitoring

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// cmdExecutor runs an external command and returns its stdout.
type cmdExecutor func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCmdExecutor(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// run executes a helper command and maps its failure onto a PlatformError.
func run(ctx context.Context, execute cmdExecutor, op, name string, args ...string) ([]byte, error) {
	out, err := execute(ctx, name, args...)
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &PlatformError{Op: op, Err: ctxErr}
	}
	msg := err.Error()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg += " " + strings.TrimSpace(string(exitErr.Stderr))
	}
	if isPermissionOutput(msg) {
		return nil, &PlatformError{Op: op, Err: ErrPermissionDenied}
	}
	return nil, &PlatformError{Op: op, Err: err}
}
