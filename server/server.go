// Package server exposes stored sessions, usage reports and the live tracker
// status over a local, read-only HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/agent/categorize"
	"github.com/ctolnik/activity-tracker/agent/tracker"
	"github.com/ctolnik/activity-tracker/zapctx"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Reader is the read side of the persistence store.
type Reader interface {
	ListSessions(ctx context.Context, from, to time.Time, app string) ([]activity.Session, error)
	ListSystemEvents(ctx context.Context, from, to time.Time) ([]activity.SystemEvent, error)
	Ping(ctx context.Context) error
}

// StatusSource provides the live tracker snapshot.
type StatusSource interface {
	Status() tracker.Status
}

type Options struct {
	CacheTTL time.Duration
	// Location is used for date parameters; defaults to time.Local.
	Location *time.Location
	Release  bool
}

type Server struct {
	store       Reader
	status      StatusSource
	categorizer *categorize.Categorizer
	usage       *UsageCache
	loc         *time.Location
	now         func() time.Time
	router      *gin.Engine
}

// New builds the router. status and categorizer may be nil; the endpoints
// that need them then answer 503.
func New(logger *zap.Logger, store Reader, status StatusSource, categorizer *categorize.Categorizer, opts Options) *Server {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	s := &Server{
		store:       store,
		status:      status,
		categorizer: categorizer,
		usage:       NewUsageCache(opts.CacheTTL),
		loc:         opts.Location,
		now:         time.Now,
	}

	router := gin.New()
	router.Use(gin.Recovery(), loggerMiddleware(logger))

	router.GET("/health", s.healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/sessions", s.getSessionsHandler)
		api.GET("/usage", s.getUsageHandler)
		api.GET("/events", s.getEventsHandler)
		api.GET("/status", s.getStatusHandler)

		api.GET("/categories", s.getCategoriesHandler)
		api.GET("/categories/export", s.exportCategoriesHandler)
		api.PUT("/categories/:app", s.setCategoryHandler)
	}

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zapctx.Info(ctx, "API server starting", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapctx.Warn(ctx, "API server shutdown failed", zap.Error(err))
		return err
	}
	zapctx.Info(ctx, "API server stopped")
	return nil
}
