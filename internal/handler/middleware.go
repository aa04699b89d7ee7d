package handler

import (
	"time"

	"github.com/bilozorDev/orests-journal-ios-app/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger attaches a request-scoped logger to the request context and
// logs every completed request.
func RequestLogger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		l := base.With(zap.String("request_id", requestID))
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), l))

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= 500 {
			l.Warn("Request failed", fields...)
		} else {
			l.Info("Request completed", fields...)
		}
	}
}
