package guidance

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts POST /ai. Extra middleware, such as a tighter
// rate limit, applies to this route only.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	mw = append([]echo.MiddlewareFunc{auth.RequireSession()}, mw...)
	api.POST("/ai", h.Ask, mw...)
}

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	Message string `json:"message"`
}

func (h *Handler) Ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msg, err := h.svc.Guidance(c.Request().Context(), req.Query)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, askResponse{Message: msg})
	case errors.Is(err, ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusNotFound, ErrEmptyQuery.Error())
	case errors.Is(err, ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if ctxErr := c.Request().Context().Err(); ctxErr != nil {
		return ctxErr
	}
	h.logger.Error().Err(err).Msg("error fetching AI guidance")
	return echo.NewHTTPError(http.StatusBadGateway, "error fetching AI guidance")
}
