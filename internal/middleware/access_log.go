package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/response"
)

// AccessLog writes one structured line per request. 5xx responses log at
// error level and 4xx at warn, so upload rejections are easy to filter.
func AccessLog(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		if kind := c.GetString(response.ContextKeyErrorKind); kind != "" {
			ev = ev.Str("error_kind", kind)
		}
		if claims := GetClaims(c); claims != nil {
			ev = ev.Str("subject", claims.Subject)
		}
		ev.Str("request_id", response.RequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Int("size", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled")
	}
}
