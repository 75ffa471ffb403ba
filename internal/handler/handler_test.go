package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_scheduler/internal/auth"
	"github.com/Freeeeeet/tutor_scheduler/internal/clock"
	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

var now = time.Date(2026, 5, 19, 12, 0, 0, 0, time.UTC)

type testServer struct {
	e      *echo.Echo
	tokens *auth.Tokens
	clock  *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := clock.NewManual(now)
	db := memory.NewDB(clk)
	profiles := memory.NewProfileRepository()
	logger := zap.NewNop()

	availability := service.NewAvailabilityService(db, profiles, clk, "UTC", logger)
	ledger := service.NewCreditLedger(db, clk, logger)
	bookings := service.NewBookingService(db, availability, ledger, clk, nil, logger)
	tokens := auth.NewTokens("test-secret")

	e := echo.New()
	New(availability, ledger, bookings, tokens, logger).Register(e)
	return &testServer{e: e, tokens: tokens, clock: clk}
}

func (s *testServer) do(t *testing.T, actor *model.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if actor != nil {
		token, err := s.tokens.Issue(*actor, time.Hour, time.Now())
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

var (
	admin   = &model.Actor{UserID: 100, Role: model.RoleAdmin}
	teacher = &model.Actor{UserID: 1, Role: model.RoleTeacher}
	student = &model.Actor{UserID: 7, Role: model.RoleStudent}
)

func TestRequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, nil, http.MethodGet, "/v1/students/7/credits", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, nil, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRejectOthers(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, student, http.MethodPost, "/v1/admin/batches", `{"student_id":7,"card_type":"lesson","quantity":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, teacher, http.MethodPut, "/v1/teachers/1/availability/2026-05-21", `{"slots":[18,19],"status":"available"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[service.PublishResult](t, rec).Published)

	rec = s.do(t, admin, http.MethodPost, "/v1/admin/batches", `{"student_id":7,"card_type":"lesson","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decode[model.CreditBatch](t, rec)

	rec = s.do(t, admin, http.MethodPost, "/v1/admin/batches/"+itoa(batch.ID)+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, student, http.MethodGet, "/v1/teachers/available?date=2026-05-21&from=09:00&to=10:00&tz=UTC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string][]int64{"teacher_ids": {1}}, decode[map[string][]int64](t, rec))

	rec = s.do(t, student, http.MethodPost, "/v1/bookings", `{"teacher_id":1,"starts_at":"2026-05-21T09:00:00Z","duration_minutes":60}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decode[model.Booking](t, rec)
	assert.Equal(t, int64(7), booking.StudentID)

	rec = s.do(t, student, http.MethodPost, "/v1/bookings", `{"teacher_id":1,"starts_at":"2026-05-21T09:30:00Z","duration_minutes":30}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_conflict", decode[map[string]string](t, rec)["error"])

	rec = s.do(t, teacher, http.MethodGet, "/v1/bookings/"+booking.ID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, &model.Actor{UserID: 8, Role: model.RoleStudent}, http.MethodGet, "/v1/bookings/"+booking.ID.String(), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.clock.Set(time.Date(2026, 5, 21, 8, 0, 0, 0, time.UTC))
	rec = s.do(t, student, http.MethodPost, "/v1/bookings/"+booking.ID.String()+"/cancel", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "cancellation_window_closed", decode[map[string]string](t, rec)["error"])

	s.clock.Set(now)
	rec = s.do(t, student, http.MethodPost, "/v1/bookings/"+booking.ID.String()+"/cancel", `{"cause":"student_request"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.CancelResult](t, rec)
	assert.Equal(t, model.BookingStatusCanceled, res.Booking.Status)

	rec = s.do(t, student, http.MethodGet, "/v1/students/7/credits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[model.CreditSummary](t, rec).TotalAvailable)

	rec = s.do(t, student, http.MethodGet, "/v1/students/8/credits", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestValidationErrorsAreBadRequest(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"bad booking id", http.MethodGet, "/v1/bookings/nope", "", http.StatusBadRequest},
		{"bad slot", http.MethodPut, "/v1/teachers/1/availability/2026-05-21", `{"slots":[60]}`, http.StatusBadRequest},
		{"bad duration", http.MethodPost, "/v1/bookings", `{"teacher_id":1,"starts_at":"2026-05-21T09:00:00Z","duration_minutes":20}`, http.StatusBadRequest},
		{"bad weekday", http.MethodPost, "/v1/teachers/1/availability/template", `{"from_date":"2026-05-18","weeks":1,"days":{"funday":[1]}}`, http.StatusBadRequest},
		{"empty slots", http.MethodPut, "/v1/teachers/1/availability/2026-05-21", `{"slots":[]}`, http.StatusBadRequest},
		{"template without weeks", http.MethodPost, "/v1/teachers/1/availability/template", `{"from_date":"2026-05-18","days":{"monday":[1]}}`, http.StatusBadRequest},
		{"unknown booking", http.MethodGet, "/v1/bookings/8f14e45f-ceea-467e-a0b8-7b1e3a5c9d10", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor := teacher
			if tc.method == http.MethodPost && tc.path == "/v1/bookings" {
				actor = student
			}
			rec := s.do(t, actor, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGrantRequiresStudent(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, admin, http.MethodPost, "/v1/admin/batches", `{"card_type":"lesson","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, admin, http.MethodPost, "/v1/admin/batches/1/adjust", `{"delta":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentActivatesOwnBatch(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, admin, http.MethodPost, "/v1/admin/batches", `{"student_id":7,"card_type":"lesson","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decode[model.CreditBatch](t, rec)
	path := "/v1/students/7/batches/" + itoa(batch.ID) + "/activate"

	other := &model.Actor{UserID: 8, Role: model.RoleStudent}
	rec = s.do(t, other, http.MethodPost, "/v1/students/8/batches/"+itoa(batch.ID)+"/activate", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "batch of another student")

	rec = s.do(t, student, http.MethodPost, path, `{"expire_days":90}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "expiry override is admin only")

	rec = s.do(t, student, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	activated := decode[model.CreditBatch](t, rec)
	assert.Equal(t, model.BatchStatusActive, activated.Status)
	require.NotNil(t, activated.ExpiresAt)
	assert.WithinDuration(t, now.Add(2*model.DefaultExpiryPerUnit), *activated.ExpiresAt, time.Second)

	rec = s.do(t, student, http.MethodPost, path, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "already_activated", decode[map[string]string](t, rec)["error"])
}

func TestOwnIDUnderAnotherRoleIsForbidden(t *testing.T) {
	s := newTestServer(t)
	// student 1 shares the id of teacher 1
	impostor := &model.Actor{UserID: 1, Role: model.RoleStudent}

	rec := s.do(t, impostor, http.MethodPut, "/v1/teachers/1/availability/2026-05-21", `{"slots":[18]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, teacher, http.MethodGet, "/v1/students/1/credits", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, impostor, http.MethodGet, "/v1/students/1/credits", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForKinds(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(model.KindValidation))
	assert.Equal(t, http.StatusConflict, statusFor(model.KindConflict))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(model.KindPolicy))
	assert.Equal(t, http.StatusNotFound, statusFor(model.KindNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(model.KindInternal))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
