package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

type SlotRepository struct {
	a access
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r *SlotRepository) Upsert(_ context.Context, slots []*model.AvailabilitySlot) ([]*model.AvailabilitySlot, error) {
	var skipped []*model.AvailabilitySlot
	now := r.a.now().Now()
	err := r.a.do(func(st *state) error {
		for _, slot := range slots {
			key := slotKey{teacherID: slot.TeacherID, date: slot.Date, index: slot.SlotIndex}
			if existing, ok := st.slots[key]; ok && existing.Status == model.SlotStatusBooked {
				skipped = append(skipped, slot)
				continue
			}
			stored := copySlot(slot)
			stored.BookingID = nil
			stored.UpdatedAt = now
			slot.UpdatedAt = now
			st.slots[key] = stored
		}
		return nil
	})
	return skipped, err
}

func (r *SlotRepository) ListRange(_ context.Context, teacherID int64, from, to time.Time) ([]*model.AvailabilitySlot, error) {
	var out []*model.AvailabilitySlot
	err := r.a.do(func(st *state) error {
		for _, s := range st.slots {
			if s.TeacherID == teacherID && inRange(s.StartsAt, from, to) {
				out = append(out, copySlot(s))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].SlotIndex < out[j].SlotIndex
	})
	return out, err
}

func (r *SlotRepository) CountAvailable(_ context.Context, teacherID int64, from, to time.Time) (int, error) {
	starts := make(map[int64]struct{})
	err := r.a.do(func(st *state) error {
		for _, s := range st.slots {
			if s.TeacherID == teacherID && s.Status == model.SlotStatusAvailable && inRange(s.StartsAt, from, to) {
				starts[s.StartsAt.Unix()] = struct{}{}
			}
		}
		return nil
	})
	return len(starts), err
}

func (r *SlotRepository) Reserve(_ context.Context, teacherID int64, from, to time.Time, bookingID uuid.UUID) (int, error) {
	flipped := make(map[int64]struct{})
	now := r.a.now().Now()
	err := r.a.do(func(st *state) error {
		for _, s := range st.slots {
			if s.TeacherID == teacherID && s.Status == model.SlotStatusAvailable && inRange(s.StartsAt, from, to) {
				id := bookingID
				s.Status = model.SlotStatusBooked
				s.BookingID = &id
				s.Reason = nil
				s.UpdatedAt = now
				flipped[s.StartsAt.Unix()] = struct{}{}
			}
		}
		return nil
	})
	return len(flipped), err
}

func (r *SlotRepository) Release(_ context.Context, teacherID int64, from, to time.Time) error {
	now := r.a.now().Now()
	return r.a.do(func(st *state) error {
		for _, s := range st.slots {
			if s.TeacherID == teacherID && s.Status != model.SlotStatusAvailable && inRange(s.StartsAt, from, to) {
				s.Status = model.SlotStatusAvailable
				s.BookingID = nil
				s.Reason = nil
				s.UpdatedAt = now
			}
		}
		return nil
	})
}

func (r *SlotRepository) TeachersAvailable(_ context.Context, starts []time.Time) ([]int64, error) {
	if len(starts) == 0 {
		return nil, nil
	}
	wanted := make(map[int64]struct{}, len(starts))
	for _, t := range starts {
		wanted[t.Unix()] = struct{}{}
	}

	perTeacher := make(map[int64]map[int64]struct{})
	err := r.a.do(func(st *state) error {
		for _, s := range st.slots {
			if s.Status != model.SlotStatusAvailable {
				continue
			}
			if _, ok := wanted[s.StartsAt.Unix()]; !ok {
				continue
			}
			if perTeacher[s.TeacherID] == nil {
				perTeacher[s.TeacherID] = make(map[int64]struct{})
			}
			perTeacher[s.TeacherID][s.StartsAt.Unix()] = struct{}{}
		}
		return nil
	})

	var ids []int64
	for id, got := range perTeacher {
		if len(got) == len(wanted) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}
