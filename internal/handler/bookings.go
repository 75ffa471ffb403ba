package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

// CreateBooking handles POST /v1/bookings. A student's own id is assumed
// when student_id is omitted.
func (h *Handler) CreateBooking(c echo.Context) error {
	var req service.CreateBookingRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	actor := actorFrom(c)
	if req.StudentID == 0 {
		req.StudentID = actor.UserID
	}

	booking, err := h.bookings.CreateBooking(c.Request().Context(), actor, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, booking)
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	booking, err := h.bookings.GetBooking(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}

func (h *Handler) RescheduleBooking(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req service.RescheduleRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	booking, err := h.bookings.RescheduleBooking(c.Request().Context(), actorFrom(c), id, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}

// CancelBooking handles POST /v1/bookings/:id/cancel. The body is optional.
func (h *Handler) CancelBooking(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req service.CancelRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return h.fail(c, err)
		}
	}

	res, err := h.bookings.CancelBooking(c.Request().Context(), actorFrom(c), id, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ConfirmBooking(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	booking, err := h.bookings.ConfirmBooking(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}

func (h *Handler) RejectReschedule(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	res, err := h.bookings.RejectReschedule(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CompleteBooking(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	res, err := h.bookings.CompleteBooking(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	booking, err := h.bookings.MarkNoShow(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}
