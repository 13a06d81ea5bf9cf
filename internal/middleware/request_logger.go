package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an X-Request-ID and logs one line per
// request; 5xx at error, 4xx at warn, health checks are skipped.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		path := c.Request.URL.Path
		if path == "/api/v1/health" {
			return
		}
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		status := c.Writer.Status()
		attrs := []any{
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			attrs = append(attrs, slog.String("error", msg))
		}
		if p := GetPrincipal(c); p.UserID != 0 {
			attrs = append(attrs, slog.Uint64("user_id", uint64(p.UserID)), slog.String("role", p.Role))
		}

		switch {
		case status >= 500:
			logger.Log.Error("request", attrs...)
		case status >= 400:
			logger.Log.Warn("request", attrs...)
		default:
			logger.Log.Info("request", attrs...)
		}
	}
}
