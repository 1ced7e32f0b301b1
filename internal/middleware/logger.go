package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iliyamo/seat-reservation-engine/internal/logger"
)

// RequestLogger writes one access log line per request through zap.
// Server errors log at Error, client errors at Warn.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	log = logger.OrNop(log).Named("http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			level := zapcore.InfoLevel
			switch {
			case status >= 500:
				level = zapcore.ErrorLevel
			case status >= 400:
				level = zapcore.WarnLevel
			}
			if ce := log.Check(level, "request"); ce != nil {
				fields := []zap.Field{
					zap.String("method", c.Request().Method),
					zap.String("route", c.Path()),
					zap.String("uri", c.Request().RequestURI),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.String("remote_ip", c.RealIP()),
				}
				if id, herr := HolderID(c); herr == nil {
					fields = append(fields, zap.Uint64("holder_id", id))
				}
				if err != nil {
					fields = append(fields, zap.Error(err))
				}
				ce.Write(fields...)
			}
			return nil
		}
	}
}
