package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SecurityHeaders sets the response headers a JSON API needs. HSTS is sent
// in production only, and only over TLS or behind a proxy reporting https.
func SecurityHeaders(production bool) echo.MiddlewareFunc {
	cfg := echomw.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
	if production {
		cfg.HSTSMaxAge = 31536000
	}
	secure := echomw.SecureWithConfig(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := secure(next)
		return func(c echo.Context) error {
			// Appointment data is per-user.
			c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
			return h(c)
		}
	}
}
