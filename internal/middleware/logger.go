package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reservo/chat-service/pkg/log"
)

// RequestLogger logs one line per HTTP request and stores a request-scoped
// logger in the request context.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		reqLogger := log.L().With().
			Str(log.FieldMethod, c.Request.Method).
			Str(log.FieldPath, path).
			Logger()
		c.Request = c.Request.WithContext(log.WithLogger(c.Request.Context(), reqLogger))

		c.Next()

		reqLogger.Info().
			Int(log.FieldStatus, c.Writer.Status()).
			Int64(log.FieldLatency, time.Since(start).Milliseconds()).
			Str(log.FieldClientIP, c.ClientIP()).
			Msg("http request")
	}
}
