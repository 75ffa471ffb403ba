package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

func (h *Handler) GetCreditSummary(c echo.Context) error {
	studentID, err := pathInt64(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	if !selfOrAdmin(actorFrom(c), model.RoleStudent, studentID) {
		return h.fail(c, model.ErrForbidden)
	}

	summary, err := h.ledger.GetStudentCreditSummary(c.Request().Context(), studentID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListCreditRecords(c echo.Context) error {
	studentID, err := pathInt64(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	if !selfOrAdmin(actorFrom(c), model.RoleStudent, studentID) {
		return h.fail(c, model.ErrForbidden)
	}

	records, err := h.ledger.ListRecords(c.Request().Context(), studentID)
	if err != nil {
		return h.fail(c, err)
	}
	if records == nil {
		records = []*model.ConsumptionRecord{}
	}
	return c.JSON(http.StatusOK, echo.Map{"records": records})
}

type grantRequest struct {
	StudentID int64          `json:"student_id" validate:"required,gt=0"`
	CardType  model.CardType `json:"card_type" validate:"required"`
	Quantity  int            `json:"quantity"`
	CourseID  *int64         `json:"course_id"`
}

// GrantCreditBatch handles POST /v1/admin/batches.
func (h *Handler) GrantCreditBatch(c echo.Context) error {
	var req grantRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	batch, err := h.ledger.GrantCreditBatch(c.Request().Context(), req.StudentID, req.CardType, req.Quantity, req.CourseID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, batch)
}

type activateRequest struct {
	ExpireDays *int `json:"expire_days" validate:"omitempty,gt=0"`
}

func (h *Handler) ActivateBatch(c echo.Context) error {
	batchID, err := pathInt64(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req activateRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return h.fail(c, err)
		}
	}

	batch, err := h.ledger.Activate(c.Request().Context(), batchID, req.ExpireDays)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, batch)
}

// ActivateOwnBatch handles POST /v1/students/:id/batches/:batchId/activate.
// Only admins may override the expiry.
func (h *Handler) ActivateOwnBatch(c echo.Context) error {
	studentID, err := pathInt64(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	batchID, err := pathInt64(c, "batchId")
	if err != nil {
		return h.fail(c, err)
	}
	actor := actorFrom(c)
	if !selfOrAdmin(actor, model.RoleStudent, studentID) {
		return h.fail(c, model.ErrForbidden)
	}
	var req activateRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return h.fail(c, err)
		}
	}
	if req.ExpireDays != nil && !actor.IsAdmin() {
		return h.fail(c, model.ErrForbidden)
	}

	batch, err := h.ledger.ActivateOwn(c.Request().Context(), studentID, batchID, req.ExpireDays)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, batch)
}

type adjustRequest struct {
	Delta int `json:"delta" validate:"required"`
}

func (h *Handler) AdjustBatch(c echo.Context) error {
	batchID, err := pathInt64(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req adjustRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	batch, err := h.ledger.AdjustBatch(c.Request().Context(), batchID, req.Delta)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, batch)
}
