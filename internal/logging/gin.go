package logging

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinLogger writes one access log line per request to the HTTP logger
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		ev := HTTP.Info()
		if status >= 500 {
			ev = HTTP.Error()
		} else if status >= 400 {
			ev = HTTP.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
