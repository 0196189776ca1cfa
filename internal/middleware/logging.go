package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

// RequestLogger logs one line per request once the handler chain returns.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	reqLog := log.With("middleware", "RequestLogger")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"clientIP", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}
		switch {
		case status >= http.StatusInternalServerError:
			reqLog.Error("request", kv...)
		case status >= http.StatusBadRequest:
			reqLog.Warn("request", kv...)
		default:
			reqLog.Debug("request", kv...)
		}
	}
}

func Recovery(log *logger.Logger) gin.HandlerFunc {
	recLog := log.With("middleware", "Recovery")
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		recLog.Error("panic while handling request", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
