package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusAvailable   SlotStatus = "available"
	SlotStatusBooked      SlotStatus = "booked"
	SlotStatusUnavailable SlotStatus = "unavailable"
)

const (
	SlotsPerDay  = 48
	SlotDuration = 30 * time.Minute
	DateLayout   = "2006-01-02"
)

// AvailabilitySlot - один 30-минутный слот учителя на конкретную дату.
// Ключ (TeacherID, Date, SlotIndex); StartsAt/EndsAt вычисляются по часовому поясу учителя
// в момент публикации.
type AvailabilitySlot struct {
	TeacherID int64      `json:"teacher_id"`
	Date      string     `json:"date"`       // YYYY-MM-DD в часовом поясе учителя
	SlotIndex int        `json:"slot_index"` // 0..47
	Status    SlotStatus `json:"status"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	Reason    *string    `json:"reason,omitempty"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    time.Time  `json:"ends_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Consistent reports whether status and booking reference agree.
func (s *AvailabilitySlot) Consistent() bool {
	return (s.Status == SlotStatusBooked) == (s.BookingID != nil)
}

// TimetableSlot is a slot as seen from the viewer's timezone.
type TimetableSlot struct {
	Date      string     `json:"date"`
	SlotIndex int        `json:"slot_index"`
	Status    SlotStatus `json:"status"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    time.Time  `json:"ends_at"`
}

// ValidSlotIndex checks the 0..47 grid bound.
func ValidSlotIndex(i int) bool {
	return i >= 0 && i < SlotsPerDay
}
