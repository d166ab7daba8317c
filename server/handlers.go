package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ctolnik/activity-tracker/server/report"
	"github.com/ctolnik/activity-tracker/zapctx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultRange = 24 * time.Hour

func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.store.Ping(ctx); err != nil {
		zapctx.Error(ctx, "Store ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// timeRange parses from/to as RFC3339, defaulting to the last 24 hours.
func (s *Server) timeRange(c *gin.Context) (time.Time, time.Time, error) {
	to := s.now()
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to, use RFC3339")
		}
		to = t
	}
	from := to.Add(-defaultRange)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from, use RFC3339")
		}
		from = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func (s *Server) getSessionsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	from, to, err := s.timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app := c.Query("app")

	sessions, err := s.store.ListSessions(ctx, from, to, app)
	if err != nil {
		zapctx.Error(ctx, "Failed to list sessions", zap.Error(err), zap.String("app", app))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  sessions,
		"total": len(sessions),
	})
}

// getUsageHandler aggregates usage over from/to, or over the day, week or
// month containing date.
func (s *Server) getUsageHandler(c *gin.Context) {
	ctx := c.Request.Context()

	groupBy, err := report.ParseGroupBy(c.Query("group"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var from, to time.Time
	if dateStr := c.Query("date"); dateStr != "" {
		// Parse date in app timezone
		date, err := time.ParseInLocation("2006-01-02", dateStr, s.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format, use YYYY-MM-DD"})
			return
		}
		from, to, err = report.Window(report.Period(c.Query("period")), date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		from, to, err = s.timeRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	key := fmt.Sprintf("%d|%d|%s", from.UnixMilli(), to.UnixMilli(), groupBy)
	summary, err := s.usage.Get(ctx, key, func(ctx context.Context) (report.Summary, error) {
		sessions, err := s.store.ListSessions(ctx, from, to, "")
		if err != nil {
			return report.Summary{}, err
		}
		return report.Summarize(sessions, from, to, groupBy), nil
	})
	if err != nil {
		zapctx.Error(ctx, "Failed to compute usage", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate report"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) getEventsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	from, to, err := s.timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := s.store.ListSystemEvents(ctx, from, to)
	if err != nil {
		zapctx.Error(ctx, "Failed to list system events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  events,
		"total": len(events),
	})
}

func (s *Server) getStatusHandler(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Tracker is not running in this process"})
		return
	}
	c.JSON(http.StatusOK, s.status.Status())
}
