package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// AccessLog logs one line per request with slog
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if id := c.Writer.Header().Get(requestIDHeader); id != "" {
			attrs = append(attrs, "request_id", id)
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			slog.Warn("http request", attrs...)
		case c.FullPath() == "/health" || c.FullPath() == "/metrics":
			slog.Debug("http request", attrs...)
		default:
			slog.Info("http request", attrs...)
		}
	}
}
