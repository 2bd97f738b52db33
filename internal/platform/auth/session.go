package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const sessionKey contextKey = "session"

// Session identifies the authenticated caller. Handlers read it once and
// pass it explicitly into service calls.
type Session struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
}

func (s Session) IsZero() bool {
	return s.UserID == uuid.Nil
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session stored by the auth middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	if !ok || s.IsZero() {
		return Session{}, false
	}
	return s, true
}

// SessionFromEcho extracts the session or returns a 401 HTTP error.
func SessionFromEcho(c echo.Context) (Session, error) {
	s, ok := SessionFromContext(c.Request().Context())
	if !ok {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return s, nil
}

func setSession(c echo.Context, s Session) {
	c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))
	c.Set("user_id", s.UserID.String())
}

// RequireSession rejects requests that reached the handler without a session.
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := SessionFromEcho(c); err != nil {
				return err
			}
			return next(c)
		}
	}
}
