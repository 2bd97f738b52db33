package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Claims follows the identity provider's access token layout: the subject
// is the user id and email/role are top-level claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

type JWTConfig struct {
	// Secret is the HS256 key shared with the identity provider.
	Secret   []byte
	Issuer   string
	Audience string
	Skipper  middleware.Skipper
}

func (cfg JWTConfig) parse(tokenStr string) (Session, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}

	return Session{UserID: uid, Email: claims.Email, Role: claims.Role}, nil
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return token, nil
}

// JWTMiddleware verifies the bearer token and stores the resulting Session
// on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			sess, err := cfg.parse(tokenStr)
			if err != nil {
				return err
			}

			setSession(c, sess)
			return next(c)
		}
	}
}

// DevUserHeader lets development clients pick the acting user without a token.
const DevUserHeader = "X-Dev-User"

// DevAuthMiddleware is for local development. Bearer tokens are still
// verified when present; otherwise the X-Dev-User header or devUser is used.
func DevAuthMiddleware(devUser uuid.UUID, cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			if c.Request().Header.Get("Authorization") != "" && len(cfg.Secret) > 0 {
				tokenStr, err := bearerToken(c)
				if err != nil {
					return err
				}
				sess, err := cfg.parse(tokenStr)
				if err != nil {
					return err
				}
				setSession(c, sess)
				return next(c)
			}

			sess := Session{UserID: devUser, Email: "dev@docbook.local", Role: "authenticated"}
			if h := c.Request().Header.Get(DevUserHeader); h != "" {
				uid, err := uuid.Parse(h)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid "+DevUserHeader)
				}
				sess.UserID = uid
				sess.Email = ""
			}

			setSession(c, sess)
			return next(c)
		}
	}
}
