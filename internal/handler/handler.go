// Package handler exposes the booking engine over HTTP with echo.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_scheduler/internal/auth"
	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

const actorKey = "actor"

type Handler struct {
	availability *service.AvailabilityService
	ledger       *service.CreditLedger
	bookings     *service.BookingService
	tokens       *auth.Tokens
	logger       *zap.Logger
}

func New(
	availability *service.AvailabilityService,
	ledger *service.CreditLedger,
	bookings *service.BookingService,
	tokens *auth.Tokens,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		availability: availability,
		ledger:       ledger,
		bookings:     bookings,
		tokens:       tokens,
		logger:       logger,
	}
}

// Register вешает все маршруты на e
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	v1 := e.Group("/v1", h.Authenticate)

	v1.GET("/teachers/available", h.SearchAvailableTeachers)
	v1.GET("/teachers/:id/timetable", h.GetTeacherTimetable)
	v1.PUT("/teachers/:id/availability/:date", h.PublishAvailability)
	v1.POST("/teachers/:id/availability/template", h.PublishWeeklyTemplate)

	v1.POST("/bookings", h.CreateBooking)
	v1.GET("/bookings/:id", h.GetBooking)
	v1.POST("/bookings/:id/reschedule", h.RescheduleBooking)
	v1.POST("/bookings/:id/cancel", h.CancelBooking)
	v1.POST("/bookings/:id/confirm", h.ConfirmBooking)
	v1.POST("/bookings/:id/reject", h.RejectReschedule)
	v1.POST("/bookings/:id/complete", h.CompleteBooking)
	v1.POST("/bookings/:id/no-show", h.MarkNoShow)

	v1.GET("/students/:id/credits", h.GetCreditSummary)
	v1.GET("/students/:id/credits/records", h.ListCreditRecords)
	v1.POST("/students/:id/batches/:batchId/activate", h.ActivateOwnBatch)

	admin := v1.Group("/admin", h.requireRole(model.RoleAdmin))
	admin.POST("/batches", h.GrantCreditBatch)
	admin.POST("/batches/:id/activate", h.ActivateBatch)
	admin.POST("/batches/:id/adjust", h.AdjustBatch)
}

// Authenticate resolves the bearer token into a model.Actor.
func (h *Handler) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
		}
		actor, err := h.tokens.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}
		c.Set(actorKey, actor)
		return next(c)
	}
}

func (h *Handler) requireRole(role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if actorFrom(c).Role != role {
				return h.fail(c, model.ErrForbidden)
			}
			return next(c)
		}
	}
}

func actorFrom(c echo.Context) model.Actor {
	actor, _ := c.Get(actorKey).(model.Actor)
	return actor
}

// selfOrAdmin: teachers and students act on their own id only, and only
// under the path of their own role.
func selfOrAdmin(actor model.Actor, role model.Role, id int64) bool {
	return actor.IsAdmin() || (actor.Role == role && actor.UserID == id)
}

func pathInt64(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindConflict:
		return http.StatusConflict
	case model.KindPolicy:
		return http.StatusUnprocessableEntity
	case model.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail отдаёт доменную ошибку с её кодом; всё остальное - 500 без деталей
func (h *Handler) fail(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return c.JSON(httpErr.Code, echo.Map{"error": "bad_request", "message": httpErr.Message})
	}

	if errors.Is(err, model.ErrForbidden) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": model.ErrForbidden.Code, "message": model.ErrForbidden.Message})
	}

	var domainErr *model.Error
	if errors.As(err, &domainErr) {
		return c.JSON(statusFor(domainErr.Kind), echo.Map{"error": domainErr.Code, "message": err.Error()})
	}

	h.logger.Error("Request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal error"})
}
