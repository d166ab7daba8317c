package server

import (
	"time"

	"github.com/ctolnik/activity-tracker/zapctx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// loggerMiddleware adds a zap logger to the request context and logs each
// request once it completes.
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := zapctx.WithLogger(c.Request.Context(), logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		))
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= 500 {
			zapctx.Warn(ctx, "Request failed", fields...)
			return
		}
		zapctx.Debug(ctx, "Request served", fields...)
	}
}
