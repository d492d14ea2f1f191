package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sicklecare/sicklecare/internal/platform/fhir"
)

// RequestTimeout sets a deadline on each request context. When it expires
// before the handler returns, the client gets 504 with an OperationOutcome.
// Paths under any of skipPrefixes (long-running operator jobs) are exempt.
func RequestTimeout(timeout time.Duration, skipPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skipPrefixes {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return gatewayTimeoutError(c)
				}
				// client went away
				return ctx.Err()
			}
		}
	}
}

func gatewayTimeoutError(c echo.Context) error {
	if c.Response().Committed {
		return nil
	}
	outcome := fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTimeout,
		"Request processing exceeded the allowed time limit")
	return c.JSON(http.StatusGatewayTimeout, outcome)
}
