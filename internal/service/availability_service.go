package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_scheduler/internal/clock"
	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
)

// PublishResult сообщает, что было записано, а что пропущено
type PublishResult struct {
	Published int `json:"published"`
	// SkippedBooked are slot indices left alone because a booking holds them.
	SkippedBooked []SlotRef `json:"skipped_booked,omitempty"`
	// SkippedNonexistent are wall-clock times a DST jump removes from the day.
	SkippedNonexistent []SlotRef `json:"skipped_nonexistent,omitempty"`
}

type SlotRef struct {
	Date      string `json:"date"`
	SlotIndex int    `json:"slot_index"`
}

// WeeklyTemplate repeats the same weekday pattern for a number of weeks.
type WeeklyTemplate struct {
	FromDate string                 `json:"from_date"`
	Weeks    int                    `json:"weeks"`
	Days     map[time.Weekday][]int `json:"days"`
	Status   model.SlotStatus       `json:"status"`
}

type AvailabilityService struct {
	db        repository.Database
	profiles  repository.ProfileRepository
	clock     clock.Clock
	defaultTZ string
	logger    *zap.Logger
}

func NewAvailabilityService(
	db repository.Database,
	profiles repository.ProfileRepository,
	clk clock.Clock,
	defaultTZ string,
	logger *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		db:        db,
		profiles:  profiles,
		clock:     clk,
		defaultTZ: defaultTZ,
		logger:    logger,
	}
}

// TeacherTimezone возвращает зону учителя или зону по умолчанию
func (s *AvailabilityService) TeacherTimezone(ctx context.Context, teacherID int64) (string, error) {
	tz, err := s.profiles.TeacherTimezone(ctx, teacherID)
	if err != nil {
		return "", fmt.Errorf("get teacher timezone: %w", err)
	}
	if tz == "" {
		tz = s.defaultTZ
	}
	if _, err := clock.LoadLocation(tz); err != nil {
		return "", err
	}
	return tz, nil
}

// PublishAvailability выставляет статус слотов одного дня в зоне учителя.
// Забронированные слоты не трогаются и возвращаются в результате.
func (s *AvailabilityService) PublishAvailability(
	ctx context.Context,
	teacherID int64,
	date string,
	slotIndices []int,
	status model.SlotStatus,
	reason *string,
) (*PublishResult, error) {
	tz, err := s.TeacherTimezone(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if err := validatePublishStatus(status); err != nil {
		return nil, err
	}

	result := &PublishResult{}
	slots, err := s.buildSlots(teacherID, date, slotIndices, status, reason, tz, result)
	if err != nil {
		return nil, err
	}
	if err := s.upsert(ctx, slots, result); err != nil {
		return nil, err
	}

	s.logger.Info("Availability published",
		zap.Int64("teacher_id", teacherID),
		zap.String("date", date),
		zap.String("status", string(status)),
		zap.Int("published", result.Published),
		zap.Int("skipped_booked", len(result.SkippedBooked)))

	return result, nil
}

// PublishWeeklyTemplate разворачивает недельный шаблон в конкретные даты
func (s *AvailabilityService) PublishWeeklyTemplate(ctx context.Context, teacherID int64, tmpl WeeklyTemplate) (*PublishResult, error) {
	tz, err := s.TeacherTimezone(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if tmpl.Status == "" {
		tmpl.Status = model.SlotStatusAvailable
	}
	if err := validatePublishStatus(tmpl.Status); err != nil {
		return nil, err
	}
	if tmpl.Weeks <= 0 {
		return nil, model.ErrInvalidQuantity
	}
	loc, _ := clock.LoadLocation(tz)
	first, err := clock.ParseDate(tmpl.FromDate, loc)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{}
	var slots []*model.AvailabilitySlot
	for i := 0; i < tmpl.Weeks*7; i++ {
		d := first.AddDate(0, 0, i)
		indices, ok := tmpl.Days[d.Weekday()]
		if !ok || len(indices) == 0 {
			continue
		}
		daySlots, err := s.buildSlots(teacherID, d.Format(model.DateLayout), indices, tmpl.Status, nil, tz, result)
		if err != nil {
			return nil, err
		}
		slots = append(slots, daySlots...)
	}
	if err := s.upsert(ctx, slots, result); err != nil {
		return nil, err
	}

	s.logger.Info("Weekly template published",
		zap.Int64("teacher_id", teacherID),
		zap.String("from", tmpl.FromDate),
		zap.Int("weeks", tmpl.Weeks),
		zap.Int("published", result.Published))

	return result, nil
}

func validatePublishStatus(status model.SlotStatus) error {
	if status != model.SlotStatusAvailable && status != model.SlotStatusUnavailable {
		return model.ErrInvalidStatus
	}
	return nil
}

func (s *AvailabilityService) buildSlots(
	teacherID int64,
	date string,
	indices []int,
	status model.SlotStatus,
	reason *string,
	tz string,
	result *PublishResult,
) ([]*model.AvailabilitySlot, error) {
	seen := make(map[int]bool, len(indices))
	slots := make([]*model.AvailabilitySlot, 0, len(indices))
	for _, idx := range indices {
		if !model.ValidSlotIndex(idx) {
			return nil, model.ErrInvalidSlot
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true

		exists, err := clock.SlotExists(date, idx, tz)
		if err != nil {
			return nil, err
		}
		if !exists {
			result.SkippedNonexistent = append(result.SkippedNonexistent, SlotRef{Date: date, SlotIndex: idx})
			continue
		}

		start, err := clock.SlotToUTC(date, idx, tz)
		if err != nil {
			return nil, err
		}
		slot := &model.AvailabilitySlot{
			TeacherID: teacherID,
			Date:      date,
			SlotIndex: idx,
			Status:    status,
			StartsAt:  start,
			EndsAt:    start.Add(model.SlotDuration),
		}
		if status == model.SlotStatusUnavailable {
			slot.Reason = reason
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (s *AvailabilityService) upsert(ctx context.Context, slots []*model.AvailabilitySlot, result *PublishResult) error {
	if len(slots) == 0 {
		return nil
	}
	var skipped []*model.AvailabilitySlot
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		skipped, err = tx.Slots().Upsert(ctx, slots)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert slots: %w", err)
	}
	for _, sk := range skipped {
		result.SkippedBooked = append(result.SkippedBooked, SlotRef{Date: sk.Date, SlotIndex: sk.SlotIndex})
	}
	result.Published = len(slots) - len(skipped)
	return nil
}

// CheckAvailable reports whether every slot of [start, end) is available.
func (s *AvailabilityService) CheckAvailable(ctx context.Context, teacherID int64, start, end time.Time) (bool, error) {
	state, err := classifyRange(ctx, s.db, teacherID, start, end)
	if err != nil {
		return false, err
	}
	return state == rangeAvailable, nil
}

// Reserve flips the slots of [start, end) to booked in a unit of work of its own.
func (s *AvailabilityService) Reserve(ctx context.Context, teacherID int64, start, end time.Time, bookingID uuid.UUID) error {
	return s.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return reserveSlots(ctx, tx, teacherID, start, end, bookingID)
	})
}

// Release frees the slots of [start, end).
func (s *AvailabilityService) Release(ctx context.Context, teacherID int64, start, end time.Time) error {
	if err := s.db.Slots().Release(ctx, teacherID, start, end); err != nil {
		return fmt.Errorf("release slots: %w", err)
	}
	return nil
}

// SearchAvailableTeachers ищет учителей, свободных весь интервал [from, to) дня date в зоне tz
func (s *AvailabilityService) SearchAvailableTeachers(ctx context.Context, date, from, to, tz string) ([]int64, error) {
	fromIdx, err := clock.ParseClock(from)
	if err != nil {
		return nil, err
	}
	toIdx, err := clock.ParseClock(to)
	if err != nil {
		return nil, err
	}
	if toIdx <= fromIdx {
		return nil, model.ErrInvalidSlot
	}

	start, err := clock.GridInstant(date, fromIdx, tz)
	if err != nil {
		return nil, err
	}
	end, err := clock.GridInstant(date, toIdx, tz)
	if err != nil {
		return nil, err
	}

	ids, err := s.db.Slots().TeachersAvailable(ctx, clock.SlotStarts(start, end))
	if err != nil {
		return nil, fmt.Errorf("search teachers: %w", err)
	}
	return ids, nil
}

// GetTeacherTimetable returns the teacher's slots for the viewer's day, keyed
// to the viewer's grid.
func (s *AvailabilityService) GetTeacherTimetable(ctx context.Context, teacherID int64, date, tz string) ([]model.TimetableSlot, error) {
	start, err := clock.GridInstant(date, 0, tz)
	if err != nil {
		return nil, err
	}
	end, err := clock.GridInstant(date, model.SlotsPerDay, tz)
	if err != nil {
		return nil, err
	}

	slots, err := s.db.Slots().ListRange(ctx, teacherID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	out := make([]model.TimetableSlot, 0, len(slots))
	for _, slot := range slots {
		viewDate, viewIdx, err := clock.UTCToSlot(slot.StartsAt, tz)
		if err != nil {
			return nil, err
		}
		out = append(out, model.TimetableSlot{
			Date:      viewDate,
			SlotIndex: viewIdx,
			Status:    slot.Status,
			BookingID: slot.BookingID,
			StartsAt:  slot.StartsAt,
			EndsAt:    slot.EndsAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

type rangeState int

const (
	rangeAvailable rangeState = iota
	// rangeTaken: every slot is published but some are already booked.
	rangeTaken
	rangeUnavailable
)

// classifyRange смотрит на все слоты интервала: занятые чужой бронью дают
// конфликт, отсутствующие или закрытые - недоступность учителя.
func classifyRange(ctx context.Context, st repository.Store, teacherID int64, start, end time.Time) (rangeState, error) {
	starts := clock.SlotStarts(start, end)
	slots, err := st.Slots().ListRange(ctx, teacherID, start, end)
	if err != nil {
		return rangeUnavailable, fmt.Errorf("list slots: %w", err)
	}

	byStart := make(map[int64]model.SlotStatus, len(slots))
	for _, slot := range slots {
		key := slot.StartsAt.Unix()
		// an available copy of a start wins over a stale duplicate
		if cur, ok := byStart[key]; ok && cur == model.SlotStatusAvailable {
			continue
		}
		byStart[key] = slot.Status
	}

	taken := false
	for _, t := range starts {
		status, ok := byStart[t.Unix()]
		switch {
		case !ok || status == model.SlotStatusUnavailable:
			return rangeUnavailable, nil
		case status == model.SlotStatusBooked:
			taken = true
		}
	}
	if taken {
		return rangeTaken, nil
	}
	return rangeAvailable, nil
}

// reserveSlots must run inside a unit of work: a short count aborts it.
func reserveSlots(ctx context.Context, st repository.Store, teacherID int64, start, end time.Time, bookingID uuid.UUID) error {
	want := len(clock.SlotStarts(start, end))
	n, err := st.Slots().Reserve(ctx, teacherID, start, end, bookingID)
	if err != nil {
		return fmt.Errorf("reserve slots: %w", err)
	}
	if n != want {
		return model.ErrSlotConflict
	}
	return nil
}
