package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"DeepResearch/pkg/logger"
)

// RequestLogging logs one line per request; 5xx at error level.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = logger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote_ip", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("duration_ms", time.Since(start)),
			}
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				fields = append(fields, logger.String("request_id", id))
			}
			if c.Response().Status >= 500 {
				l.Error("http request", append(fields, logger.Error(err))...)
			} else {
				l.Info("http request", fields...)
			}
			return nil
		}
	}
}
