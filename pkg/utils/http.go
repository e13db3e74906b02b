package utils

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/coreruntime/coreworker/pkg/log"
)

// HttpLogger traces every request with its status and handling time.
func HttpLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		log.Tracef("%4s %s %v %v", c.Request().Method, c.Request().URL, c.Response().Status, time.Since(start))
		return err
	}
}
