package middleware

import (
	"errors"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery catches handler panics. The panic is logged with its stack and the
// request's trace id; the client gets a 500 carrying the same trace id. A
// panic caused by the client hanging up is logged at Warn and not answered.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			traceID := GetTraceID(c)
			fields := []zap.Field{
				zap.Any("panic", r),
				zap.String("trace_id", traceID),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("operator", GetOperator(c)),
			}
			if err, ok := r.(error); ok && brokenPipe(err) {
				log.Warn("client went away mid-response", fields...)
				c.Abort()
				return
			}
			log.Error("panic recovered", append(fields, zap.Stack("stack"))...)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":    "internal server error",
				"trace_id": traceID,
			})
		}()
		c.Next()
	}
}

func brokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
