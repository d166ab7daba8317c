package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/agent/metrics"
	"github.com/ctolnik/activity-tracker/zapctx"
	"go.uber.org/zap"
)

// Sampler polls the platform on a fixed interval and emits one sample per
// successful tick. Failed ticks are counted and skipped.
type Sampler struct {
	platform Platform
	interval time.Duration
	timeout  time.Duration

	samples  atomic.Uint64
	failures atomic.Uint64
	streak   int
}

func NewSampler(platform Platform, interval, timeout time.Duration) *Sampler {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Sampler{
		platform: platform,
		interval: interval,
		timeout:  timeout,
	}
}

// Run ticks until ctx is cancelled, passing each sample to handle on the
// calling goroutine. It returns nil on cancellation.
func (s *Sampler) Run(ctx context.Context, handle func(activity.Sample)) error {
	zapctx.Info(ctx, "Sampler started",
		zap.Duration("interval", s.interval),
		zap.Duration("platform_timeout", s.timeout))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zapctx.Info(ctx, "Sampler stopped",
				zap.Uint64("samples", s.samples.Load()),
				zap.Uint64("failures", s.failures.Load()))
			return nil
		case tick := <-ticker.C:
			if sample, ok := s.SampleAt(ctx, tick); ok {
				handle(sample)
			}
		}
	}
}

// SampleAt performs one tick: a single bounded platform query, timestamped at
// tick. ok is false when the query failed.
func (s *Sampler) SampleAt(ctx context.Context, tick time.Time) (activity.Sample, bool) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fc, err := s.platform.Query(qctx)
	if err == nil && fc.AppIdentity == "" {
		err = &PlatformError{Op: "query", Err: ErrNoForegroundWindow}
	}
	if err != nil {
		s.recordFailure(ctx, err)
		return activity.Sample{}, false
	}

	if s.streak > 0 {
		zapctx.Info(ctx, "Platform query recovered", zap.Int("failed_ticks", s.streak))
		s.streak = 0
	}
	s.samples.Add(1)
	metrics.SamplesTotal.Inc()

	return activity.Sample{
		Timestamp:   tick.Round(0),
		AppIdentity: fc.AppIdentity,
		WindowTitle: fc.WindowTitle,
		LastInput:   fc.LastInput.Round(0),
	}, true
}

func (s *Sampler) recordFailure(ctx context.Context, err error) {
	s.failures.Add(1)
	s.streak++
	reason := failureReason(err)
	metrics.PlatformFailuresTotal.WithLabelValues(reason).Inc()

	// Only the first failure of a streak is a warning; a locked screen can
	// fail every tick for hours.
	if s.streak == 1 {
		zapctx.Warn(ctx, "Platform query failed, skipping tick",
			zap.String("reason", reason), zap.Error(err))
		return
	}
	zapctx.Debug(ctx, "Platform query failed, skipping tick",
		zap.String("reason", reason), zap.Int("streak", s.streak), zap.Error(err))
}

// Samples returns the number of successful ticks.
func (s *Sampler) Samples() uint64 {
	return s.samples.Load()
}

// Failures returns the number of skipped ticks.
func (s *Sampler) Failures() uint64 {
	return s.failures.Load()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoForegroundWindow):
		return "no_foreground_window"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrUnsupportedPlatform):
		return "unsupported_platform"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "platform_error"
	}
}
