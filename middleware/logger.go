package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger logs each request with zap. 5xx responses log at error level, 4xx at
// warn; the /health probe is not logged at all.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.FullPath() == "/health" {
			return
		}
		status := c.Writer.Status()
		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}
		log.Log(level, "http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("trace_id", GetTraceID(c)),
			zap.String("operator", GetOperator(c)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
