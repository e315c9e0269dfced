package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.ClientIP(),
		}
		switch p := c.Request.URL.Path; {
		case status >= 500:
			logger.Error("request complete", fields...)
		case status >= 400:
			logger.Warn("request complete", fields...)
		case p == "/healthz" || p == "/readyz" || p == "/metrics":
			logger.Debug("request complete", fields...)
		default:
			logger.Info("request complete", fields...)
		}
	}
}
