// Package cli implements the activity-tracker command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ctolnik/activity-tracker/agent/config"
	"github.com/ctolnik/activity-tracker/agent/logger"
	"github.com/ctolnik/activity-tracker/server/database"
	"github.com/ctolnik/activity-tracker/zapctx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "activity-tracker",
		Short: "Records which application is in the foreground",
		Long: `activity-tracker samples the foreground application at a fixed interval,
folds the samples into active and idle sessions and stores them locally.

Run "activity-tracker run" to start recording, then query the history with
the sessions, usage and events commands.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("ACTIVITY_TRACKER_CONFIG"), "path to config file")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSessionsCommand(opts))
	cmd.AddCommand(newUsageCommand(opts))
	cmd.AddCommand(newEventsCommand(opts))
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

// env is what every command needs: the loaded config, a logger carried by
// ctx and an open store.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	store  database.Store
}

func (o *rootOptions) setup(ctx context.Context) (context.Context, *env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return ctx, nil, err
	}

	log, err := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return ctx, nil, fmt.Errorf("init logger: %w", err)
	}
	ctx = zapctx.WithLogger(ctx, log)

	store, err := database.Open(ctx, database.Config{
		Driver:     cfg.Storage.Driver,
		SQLitePath: cfg.Storage.SQLitePath,
		ClickHouse: database.ClickHouseConfig{
			Host:     cfg.Storage.ClickHouse.Host,
			Port:     cfg.Storage.ClickHouse.Port,
			Database: cfg.Storage.ClickHouse.Database,
			Username: cfg.Storage.ClickHouse.Username,
			Password: cfg.Storage.ClickHouse.Password,
		},
	})
	if err != nil {
		_ = log.Sync()
		return ctx, nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	return ctx, &env{cfg: cfg, logger: log, store: store}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("Failed to close store", zap.Error(err))
	}
	_ = e.logger.Sync()
}
