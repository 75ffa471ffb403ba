package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

type BookingRepository struct {
	a access
}

func (r *BookingRepository) Create(_ context.Context, booking *model.Booking) error {
	now := r.a.now().Now()
	return r.a.do(func(st *state) error {
		if _, ok := st.bookings[booking.ID]; ok {
			return model.ErrOverlappingBooking
		}
		booking.CreatedAt = now
		booking.UpdatedAt = now
		st.bookings[booking.ID] = copyBooking(booking)
		return nil
	})
}

func (r *BookingRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	var out *model.Booking
	err := r.a.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return model.ErrBookingNotFound
		}
		out = copyBooking(b)
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra locking: units of work are already serialised.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *BookingRepository) Update(_ context.Context, booking *model.Booking) error {
	now := r.a.now().Now()
	return r.a.do(func(st *state) error {
		if _, ok := st.bookings[booking.ID]; !ok {
			return model.ErrBookingNotFound
		}
		booking.UpdatedAt = now
		st.bookings[booking.ID] = copyBooking(booking)
		return nil
	})
}

func (r *BookingRepository) ListOverlapping(_ context.Context, teacherID, studentID int64, from, to time.Time, exclude *uuid.UUID) ([]*model.Booking, error) {
	var out []*model.Booking
	err := r.a.do(func(st *state) error {
		for _, b := range st.bookings {
			if exclude != nil && b.ID == *exclude {
				continue
			}
			if b.TeacherID != teacherID && b.StudentID != studentID {
				continue
			}
			if b.IsActive() && b.Overlaps(from, to) {
				out = append(out, copyBooking(b))
			}
		}
		return nil
	})
	sortByStart(out)
	return out, err
}

func (r *BookingRepository) LockParticipants(context.Context, int64, int64) error {
	return nil
}

func (r *BookingRepository) CountCompleted(_ context.Context, studentID int64) (int, error) {
	count := 0
	err := r.a.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.StudentID == studentID && b.Status == model.BookingStatusCompleted {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *BookingRepository) ListEndedScheduled(_ context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	var out []*model.Booking
	err := r.a.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.Status == model.BookingStatusScheduled && !b.EndsAt.After(cutoff) {
				out = append(out, copyBooking(b))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.Before(out[j].EndsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *BookingRepository) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	var out []*model.Booking
	err := r.a.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.Status == model.BookingStatusPendingTeacherConfirmation && !b.StartsAt.After(cutoff) {
				out = append(out, copyBooking(b))
			}
		}
		return nil
	})
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func sortByStart(bookings []*model.Booking) {
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].StartsAt.Before(bookings[j].StartsAt) })
}
