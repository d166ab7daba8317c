//go:build !windows && !darwin && !linux

package monitoring

import "context"

type unsupportedPlatform struct{}

func newPlatform() Platform {
	return unsupportedPlatform{}
}

func (unsupportedPlatform) Query(context.Context) (ForegroundContext, error) {
	return ForegroundContext{}, &PlatformError{Op: "query", Err: ErrUnsupportedPlatform}
}
