package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Audit logs every successful state-changing request against the booking
// API with the acting user and target id.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			method := c.Request().Method
			if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
				return err
			}
			if err != nil || c.Response().Status >= 400 {
				return err
			}

			rid, _ := c.Get("request_id").(string)
			uid, _ := c.Get("user_id").(string)
			logger.Info().
				Str("audit", auditAction(method, c.Path())).
				Str("route", c.Path()).
				Str("target_id", c.Param("id")).
				Str("user_id", uid).
				Str("request_id", rid).
				Int("status", c.Response().Status).
				Msg("audit")

			return err
		}
	}
}

// auditAction derives a verb from the route, e.g. POST .../:id/cancel -> cancel.
func auditAction(method, route string) string {
	route = strings.TrimSuffix(route, "/")
	last := route[strings.LastIndex(route, "/")+1:]
	if last != "" && !strings.HasPrefix(last, ":") && method != http.MethodDelete {
		parent := strings.TrimSuffix(route, "/"+last)
		if strings.HasSuffix(parent, ":id") {
			return last
		}
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}
