package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// TimeoutConfig sets the default request deadline and per-route overrides.
// Routes are keyed by the registered route pattern (c.Path()).
type TimeoutConfig struct {
	Timeout time.Duration
	Routes  map[string]time.Duration
}

func (cfg TimeoutConfig) deadlineFor(c echo.Context) time.Duration {
	route := c.Path()
	if route == "" {
		route = c.Request().URL.Path
	}
	if d, ok := cfg.Routes[route]; ok && d > 0 {
		return d
	}
	return cfg.Timeout
}

// RequestTimeout bounds every request with the same deadline.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return RequestTimeoutWithConfig(TimeoutConfig{Timeout: timeout})
}

// RequestTimeoutWithConfig bounds each request with a context deadline.
// Repositories and upstream clients take the request context, so the
// deadline (or the client going away) cancels in-flight work. A handler that
// returns after the deadline without writing a response is answered with 504.
//
// Websocket upgrades are excluded since they are long-lived.
func RequestTimeoutWithConfig(cfg TimeoutConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasSuffix(c.Request().URL.Path, "/ws") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), cfg.deadlineFor(c))
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
			}
			if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
				// Client went away; nothing useful can be written.
				return echo.NewHTTPError(499, "client closed request")
			}
			return err
		}
	}
}
