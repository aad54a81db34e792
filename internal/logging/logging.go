package logging

import (
	"time"

	"gamification/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// New builds the process logger: JSON production output, or the console
// development encoder when APP_ENV is development.
func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// APINameKey is the gin context key handlers use to name their endpoint.
const APINameKey = "api_name"

// RequestLogger logs one line per request after the handler chain has run.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if api := c.GetString(APINameKey); api != "" {
			fields = append(fields, zap.String("api", api))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 500 {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}
