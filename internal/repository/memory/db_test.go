package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/tutor_scheduler/internal/clock"
	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
)

var day = time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC)

func seedSlots(t *testing.T, db *DB, teacherID int64, from, count int) {
	t.Helper()
	var slots []*model.AvailabilitySlot
	for i := from; i < from+count; i++ {
		start := day.Add(time.Duration(i) * model.SlotDuration)
		slots = append(slots, &model.AvailabilitySlot{
			TeacherID: teacherID,
			Date:      "2026-05-21",
			SlotIndex: i,
			Status:    model.SlotStatusAvailable,
			StartsAt:  start,
			EndsAt:    start.Add(model.SlotDuration),
		})
	}
	_, err := db.Slots().Upsert(context.Background(), slots)
	require.NoError(t, err)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := NewDB(clock.NewManual(day))
	seedSlots(t, db, 1, 18, 2)

	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		n, err := tx.Slots().Reserve(ctx, 1, day.Add(9*time.Hour), day.Add(10*time.Hour), uuid.New())
		require.NoError(t, err)
		require.Equal(t, 2, n)
		require.NoError(t, tx.Credits().CreateBatch(ctx, &model.CreditBatch{
			StudentID: 7, CardType: model.CardTypeLesson, Quantity: 1, Remaining: 1, Status: model.BatchStatusDraft,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	count, err := db.Slots().CountAvailable(ctx, 1, day.Add(9*time.Hour), day.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	batches, err := db.Credits().ListBatches(ctx, 7, nil, false)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestWithinTxCommits(t *testing.T) {
	ctx := context.Background()
	db := NewDB(clock.NewManual(day))
	seedSlots(t, db, 1, 18, 2)

	bookingID := uuid.New()
	err := db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		_, err := tx.Slots().Reserve(ctx, 1, day.Add(9*time.Hour), day.Add(10*time.Hour), bookingID)
		return err
	})
	require.NoError(t, err)

	slots, err := db.Slots().ListRange(ctx, 1, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.Equal(t, model.SlotStatusBooked, s.Status)
		require.NotNil(t, s.BookingID)
		assert.Equal(t, bookingID, *s.BookingID)
		assert.True(t, s.Consistent())
	}
}

func TestUpsertSkipsBookedSlots(t *testing.T) {
	ctx := context.Background()
	db := NewDB(clock.NewManual(day))
	seedSlots(t, db, 1, 18, 2)

	_, err := db.Slots().Reserve(ctx, 1, day.Add(9*time.Hour), day.Add(9*time.Hour+30*time.Minute), uuid.New())
	require.NoError(t, err)

	start := day.Add(9 * time.Hour)
	skipped, err := db.Slots().Upsert(ctx, []*model.AvailabilitySlot{{
		TeacherID: 1, Date: "2026-05-21", SlotIndex: 18, Status: model.SlotStatusUnavailable,
		StartsAt: start, EndsAt: start.Add(model.SlotDuration),
	}})
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, 18, skipped[0].SlotIndex)

	slots, err := db.Slots().ListRange(ctx, 1, start, start.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, model.SlotStatusBooked, slots[0].Status)
}

func TestConcurrentReserveFlipsOnce(t *testing.T) {
	ctx := context.Background()
	db := NewDB(clock.NewManual(day))
	seedSlots(t, db, 1, 18, 2)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
				n, err := tx.Slots().Reserve(ctx, 1, day.Add(9*time.Hour), day.Add(10*time.Hour), uuid.New())
				if err != nil {
					return err
				}
				if n != 2 {
					return model.ErrSlotConflict
				}
				mu.Lock()
				wins++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestUpdateBatchRejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	db := NewDB(clock.NewManual(day))

	batch := &model.CreditBatch{StudentID: 7, CardType: model.CardTypeLesson, Quantity: 2, Remaining: 2, Status: model.BatchStatusDraft}
	require.NoError(t, db.Credits().CreateBatch(ctx, batch))

	batch.Remaining = 3
	assert.Error(t, db.Credits().UpdateBatch(ctx, batch))
	batch.Remaining = -1
	assert.Error(t, db.Credits().UpdateBatch(ctx, batch))
}

func TestListOverlappingExcludes(t *testing.T) {
	ctx := context.Background()
	db := NewDB(clock.NewManual(day))

	b := &model.Booking{
		ID: uuid.New(), StudentID: 7, TeacherID: 1,
		StartsAt: day.Add(9 * time.Hour), EndsAt: day.Add(10 * time.Hour),
		Status: model.BookingStatusScheduled, DurationMinutes: 60, CreditUnits: 1,
	}
	require.NoError(t, db.Bookings().Create(ctx, b))

	got, err := db.Bookings().ListOverlapping(ctx, 1, 99, day.Add(9*time.Hour+30*time.Minute), day.Add(11*time.Hour), nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = db.Bookings().ListOverlapping(ctx, 1, 99, day.Add(9*time.Hour+30*time.Minute), day.Add(11*time.Hour), &b.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	// touching intervals do not overlap
	got, err = db.Bookings().ListOverlapping(ctx, 1, 7, day.Add(10*time.Hour), day.Add(11*time.Hour), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
