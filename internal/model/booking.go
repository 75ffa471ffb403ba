package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusScheduled                  BookingStatus = "scheduled"
	BookingStatusPendingTeacherConfirmation BookingStatus = "pending_teacher_confirmation" // после переноса
	BookingStatusCompleted                  BookingStatus = "completed"
	BookingStatusCanceled                   BookingStatus = "canceled"
	BookingStatusNoShow                     BookingStatus = "no_show"
)

// BookingSource - кто создал бронирование
type BookingSource string

const (
	BookingSourceStudent BookingSource = "student"
	BookingSourceTeacher BookingSource = "teacher"
	BookingSourceAdmin   BookingSource = "admin"
)

const (
	MinDurationMinutes = 30
	MaxDurationMinutes = 240
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusScheduled: {
		BookingStatusPendingTeacherConfirmation,
		BookingStatusCanceled,
		BookingStatusCompleted,
		BookingStatusNoShow,
	},
	BookingStatusPendingTeacherConfirmation: {
		BookingStatusScheduled,
		BookingStatusCanceled,
	},
}

type Booking struct {
	ID              uuid.UUID     `json:"id"`
	StudentID       int64         `json:"student_id"`
	TeacherID       int64         `json:"teacher_id"`
	StartsAt        time.Time     `json:"starts_at"`
	EndsAt          time.Time     `json:"ends_at"`
	Status          BookingStatus `json:"status"`
	Source          BookingSource `json:"source"`
	DurationMinutes int           `json:"duration_minutes"`
	CreditUnits     int           `json:"credit_units"` // сколько кредитов списано при создании
	CancelCause     *string       `json:"cancel_cause,omitempty"`
	CanceledAt      *time.Time    `json:"canceled_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsActive reports whether the booking still holds the calendar.
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusScheduled || b.Status == BookingStatusPendingTeacherConfirmation
}

// CanTransition checks the booking state machine.
func (b *Booking) CanTransition(to BookingStatus) bool {
	for _, s := range bookingTransitions[b.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// Overlaps reports whether [start, end) intersects the booking.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartsAt.Before(end) && start.Before(b.EndsAt)
}
