package profile

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/pkg/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/profile", auth.RequireSession())
	g.GET("", h.Get)
	g.POST("", h.Ensure)
	g.PUT("", h.Update)
}

func (h *Handler) Get(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetCurrent(c.Request().Context(), sess)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// Ensure is called by the client right after sign-in.
func (h *Handler) Ensure(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	var req EnsureRequest
	if c.Request().ContentLength != 0 {
		if err := validation.BindAndValidate(c, &req); err != nil {
			return err
		}
	}
	p, created, err := h.svc.Ensure(c.Request().Context(), sess, req.FullName)
	if err != nil {
		return mapError(err)
	}
	if created {
		return c.JSON(http.StatusCreated, p)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Update(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.svc.Update(c.Request().Context(), sess, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "profile not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}
