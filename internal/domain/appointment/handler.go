package appointment

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/domain/doctor"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/pkg/pagination"
	"github.com/docbook/docbook/pkg/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments", auth.RequireSession())
	g.POST("", h.Book)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/complete", h.Complete)
	g.PUT("/:id/reschedule", h.Reschedule)

	api.GET("/doctors/:id/slots", h.FreeSlots, auth.RequireSession())
}

func (h *Handler) Book(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	var req BookRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), sess, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

// List supports ?status= plus limit/offset paging.
func (h *Handler) List(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), sess, ListFilter{
		Status: Status(c.QueryParam("status")),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithNext(c))
}

func (h *Handler) Get(c echo.Context) error {
	return h.withAppointment(c, http.StatusOK, h.svc.Get)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.withAppointment(c, http.StatusOK, h.svc.Cancel)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.withAppointment(c, http.StatusOK, h.svc.Complete)
}

func (h *Handler) Reschedule(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req RescheduleRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Reschedule(c.Request().Context(), sess, id, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// FreeSlots answers GET /doctors/:id/slots?date=YYYY-MM-DD.
func (h *Handler) FreeSlots(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	slots, err := h.svc.FreeSlots(c.Request().Context(), id, date)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": id,
		"date":      date,
		"slots":     slots,
	})
}

type appointmentFunc func(ctx context.Context, sess auth.Session, id uuid.UUID) (*Appointment, error)

func (h *Handler) withAppointment(c echo.Context, status int, fn appointmentFunc) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := fn(c.Request().Context(), sess, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(status, a)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, doctor.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrSelfBooking), errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}
