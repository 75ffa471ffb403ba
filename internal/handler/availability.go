package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

type publishRequest struct {
	Slots  []int            `json:"slots" validate:"required,min=1"`
	Status model.SlotStatus `json:"status"`
	Reason *string          `json:"reason"`
}

// PublishAvailability handles PUT /v1/teachers/:id/availability/:date.
func (h *Handler) PublishAvailability(c echo.Context) error {
	teacherID, err := pathInt64(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	if !selfOrAdmin(actorFrom(c), model.RoleTeacher, teacherID) {
		return h.fail(c, model.ErrForbidden)
	}

	var req publishRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	if req.Status == "" {
		req.Status = model.SlotStatusAvailable
	}

	res, err := h.availability.PublishAvailability(c.Request().Context(), teacherID, c.Param("date"), req.Slots, req.Status, req.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type templateRequest struct {
	FromDate string           `json:"from_date" validate:"required"`
	Weeks    int              `json:"weeks" validate:"gte=1,lte=52"`
	Days     map[string][]int `json:"days" validate:"required,min=1"`
	Status   model.SlotStatus `json:"status"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// PublishWeeklyTemplate handles POST /v1/teachers/:id/availability/template.
// Days are keyed by English weekday name.
func (h *Handler) PublishWeeklyTemplate(c echo.Context) error {
	teacherID, err := pathInt64(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	if !selfOrAdmin(actorFrom(c), model.RoleTeacher, teacherID) {
		return h.fail(c, model.ErrForbidden)
	}

	var req templateRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	tmpl := service.WeeklyTemplate{
		FromDate: req.FromDate,
		Weeks:    req.Weeks,
		Days:     make(map[time.Weekday][]int, len(req.Days)),
		Status:   req.Status,
	}
	for name, slots := range req.Days {
		day, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return h.fail(c, echo.NewHTTPError(http.StatusBadRequest, "unknown weekday "+name))
		}
		tmpl.Days[day] = slots
	}

	res, err := h.availability.PublishWeeklyTemplate(c.Request().Context(), teacherID, tmpl)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetTeacherTimetable handles GET /v1/teachers/:id/timetable?date=&tz=.
func (h *Handler) GetTeacherTimetable(c echo.Context) error {
	teacherID, err := pathInt64(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	tz := c.QueryParam("tz")
	if tz == "" {
		tz = "UTC"
	}

	slots, err := h.availability.GetTeacherTimetable(c.Request().Context(), teacherID, c.QueryParam("date"), tz)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"teacher_id": teacherID, "timezone": tz, "slots": slots})
}

// SearchAvailableTeachers handles GET /v1/teachers/available?date=&from=&to=&tz=.
func (h *Handler) SearchAvailableTeachers(c echo.Context) error {
	tz := c.QueryParam("tz")
	if tz == "" {
		tz = "UTC"
	}

	ids, err := h.availability.SearchAvailableTeachers(c.Request().Context(), c.QueryParam("date"), c.QueryParam("from"), c.QueryParam("to"), tz)
	if err != nil {
		return h.fail(c, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return c.JSON(http.StatusOK, echo.Map{"teacher_ids": ids})
}
