package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one structured line per request. Client errors log at warn so
// denied share attempts stand out in the stream without reading as faults.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			status := c.Response().Status
			var evt *zerolog.Event
			switch {
			case err != nil || status >= 500:
				evt = logger.Error().Err(err)
			case status >= 400:
				evt = logger.Warn()
			default:
				evt = logger.Info()
			}

			rid, _ := c.Get("request_id").(string)
			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Str("user_agent", req.UserAgent()).
				Msg("request")

			return err
		}
	}
}
