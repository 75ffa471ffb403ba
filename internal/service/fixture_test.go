package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_scheduler/internal/clock"
	"github.com/Freeeeeet/tutor_scheduler/internal/events"
	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/memory"
)

const (
	teacherID int64 = 1
	studentID int64 = 7
	lessonDay       = "2026-05-21"
)

// Wall clock at publish/booking time: two days before the lesson day.
var startOfTest = time.Date(2026, 5, 19, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx          context.Context
	clock        *clock.Manual
	db           *memory.DB
	profiles     *memory.ProfileRepository
	availability *AvailabilityService
	ledger       *CreditLedger
	bookings     *BookingService
	notifier     *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewManual(startOfTest)
	db := memory.NewDB(clk)
	profiles := memory.NewProfileRepository()
	profiles.SetTeacherTimezone(teacherID, "Europe/Moscow")
	logger := zap.NewNop()
	notifier := &recordingNotifier{}

	availability := NewAvailabilityService(db, profiles, clk, "UTC", logger)
	ledger := NewCreditLedger(db, clk, logger)
	bookings := NewBookingService(db, availability, ledger, clk, notifier, logger)

	return &fixture{
		ctx:          context.Background(),
		clock:        clk,
		db:           db,
		profiles:     profiles,
		availability: availability,
		ledger:       ledger,
		bookings:     bookings,
		notifier:     notifier,
	}
}

// publish opens slots of lessonDay in the teacher's zone (Moscow, UTC+3).
func (f *fixture) publish(t *testing.T, indices ...int) {
	t.Helper()
	_, err := f.availability.PublishAvailability(f.ctx, teacherID, lessonDay, indices, model.SlotStatusAvailable, nil)
	require.NoError(t, err)
}

// fund grants and activates a lesson batch.
func (f *fixture) fund(t *testing.T, student int64, quantity int) *model.CreditBatch {
	t.Helper()
	batch, err := f.ledger.GrantCreditBatch(f.ctx, student, model.CardTypeLesson, quantity, nil)
	require.NoError(t, err)
	batch, err = f.ledger.Activate(f.ctx, batch.ID, nil)
	require.NoError(t, err)
	return batch
}

func (f *fixture) fundCancelCards(t *testing.T, student int64, quantity int) *model.CreditBatch {
	t.Helper()
	batch, err := f.ledger.GrantCreditBatch(f.ctx, student, model.CardTypeCancel, quantity, nil)
	require.NoError(t, err)
	batch, err = f.ledger.Activate(f.ctx, batch.ID, nil)
	require.NoError(t, err)
	return batch
}

func (f *fixture) batch(t *testing.T, id int64) *model.CreditBatch {
	t.Helper()
	b, err := f.db.Credits().GetBatch(f.ctx, id)
	require.NoError(t, err)
	return b
}

func (f *fixture) slot(t *testing.T, index int) *model.AvailabilitySlot {
	t.Helper()
	start, err := clock.SlotToUTC(lessonDay, index, "Europe/Moscow")
	require.NoError(t, err)
	slots, err := f.db.Slots().ListRange(f.ctx, teacherID, start, start.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	return slots[0]
}

func studentActor(id int64) model.Actor { return model.Actor{UserID: id, Role: model.RoleStudent} }
func teacherActor(id int64) model.Actor { return model.Actor{UserID: id, Role: model.RoleTeacher} }

var adminActor = model.Actor{UserID: 100, Role: model.RoleAdmin}

// lessonAt is an RFC 3339 start on lessonDay at the given Moscow wall clock.
func lessonAt(hhmm string) string {
	return lessonDay + "T" + hhmm + ":00+03:00"
}
