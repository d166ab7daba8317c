package cli

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ctolnik/activity-tracker/agent/buffer"
	"github.com/ctolnik/activity-tracker/agent/categorize"
	"github.com/ctolnik/activity-tracker/agent/config"
	"github.com/ctolnik/activity-tracker/agent/monitoring"
	"github.com/ctolnik/activity-tracker/agent/tracker"
	"github.com/ctolnik/activity-tracker/server"
	"github.com/ctolnik/activity-tracker/zapctx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start recording foreground activity",
		Long: `Start the sampler and record sessions until interrupted.

A session left open by a previous crash is closed first. When the API is
enabled in the config, the HTTP API is served alongside.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctx, e, err := root.setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			zapctx.Info(ctx, "Activity tracker starting",
				zap.String("version", Version),
				zap.String("computer", e.cfg.Agent.ComputerName),
				zap.String("storage", e.cfg.Storage.Driver),
				zap.Duration("interval", e.cfg.ActivityMonitoring.SamplingInterval()))

			categorizer := categorize.New(e.cfg.Categories)
			t := tracker.New(trackerConfig(e.cfg), monitoring.NewPlatform(), e.store, categorizer)

			var wg sync.WaitGroup
			var apiErr error
			if e.cfg.API.Enabled {
				srv := server.New(e.logger, e.store, t, categorizer, server.Options{
					CacheTTL: e.cfg.API.CacheTTL(),
					Release:  true,
				})
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := srv.Run(ctx, e.cfg.API.Addr()); err != nil {
						zapctx.Error(ctx, "API server failed", zap.Error(err))
						apiErr = err
					}
				}()
			}

			err = t.Run(ctx)
			stop()
			wg.Wait()

			zapctx.Info(ctx, "Activity tracker stopped")
			return errors.Join(err, apiErr)
		},
	}
}

func trackerConfig(cfg *config.Config) tracker.Config {
	am := cfg.ActivityMonitoring
	return tracker.Config{
		Interval:            am.SamplingInterval(),
		PlatformTimeout:     am.PlatformTimeout(),
		IdleThreshold:       am.IdleThreshold(),
		IdleHysteresis:      am.IdleHysteresis(),
		SleepGap:            am.SleepGapThreshold(),
		MarkerFlushInterval: am.MarkerFlushInterval(),
		ShutdownTimeout:     am.ShutdownTimeout(),
		Queue: buffer.Config{
			Capacity:      am.PendingWriteQueueCapacity,
			RetryAttempts: am.WriteRetryAttempts,
			RetryDelay:    am.WriteRetryDelay(),
			SpillPath:     cfg.Storage.SpillPath,
		},
		Host: cfg.Agent.ComputerName,
	}
}
