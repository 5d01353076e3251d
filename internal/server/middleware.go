package server

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// resolve the status before logging it
				c.Error(err)
			}
			req := c.Request()
			fields := log.Fields{
				"method":      req.Method,
				"route":       c.Path(),
				"path":        req.URL.Path,
				"status":      c.Response().Status,
				"bytes":       c.Response().Size,
				"duration_ms": float64(time.Since(start)) / float64(time.Millisecond),
			}
			logger.WithFields(fields).Debug("http request")
			return nil
		}
	}
}

// noStore keeps API responses out of browser caches.
func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.Response().Header().Set("Cache-Control", "no-store")
		}
		return next(c)
	}
}
