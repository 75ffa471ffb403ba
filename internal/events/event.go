// Package events describes booking lifecycle events and publishes them to
// RabbitMQ for the notification and payout consumers.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

type Type string

const (
	TypeBookingCreated     Type = "booking.created"
	TypeBookingRescheduled Type = "booking.rescheduled"
	TypeBookingConfirmed   Type = "booking.confirmed"
	TypeBookingCanceled    Type = "booking.canceled"
	TypeBookingCompleted   Type = "booking.completed"
	TypeBookingNoShow      Type = "booking.no_show"
)

// Event - сообщение о смене состояния бронирования
type Event struct {
	ID         uuid.UUID           `json:"id"`
	Type       Type                `json:"type"`
	BookingID  uuid.UUID           `json:"booking_id"`
	StudentID  int64               `json:"student_id"`
	TeacherID  int64               `json:"teacher_id"`
	StartsAt   time.Time           `json:"starts_at"`
	EndsAt     time.Time           `json:"ends_at"`
	Status     model.BookingStatus `json:"status"`
	Cause      string              `json:"cause,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// NewBookingEvent snapshots the booking into an event of type t.
func NewBookingEvent(t Type, b *model.Booking, at time.Time) Event {
	e := Event{
		ID:         uuid.New(),
		Type:       t,
		BookingID:  b.ID,
		StudentID:  b.StudentID,
		TeacherID:  b.TeacherID,
		StartsAt:   b.StartsAt,
		EndsAt:     b.EndsAt,
		Status:     b.Status,
		OccurredAt: at.UTC(),
	}
	if b.CancelCause != nil {
		e.Cause = *b.CancelCause
	}
	return e
}

// RoutingKey is the topic key used on the exchange.
func (e Event) RoutingKey() string {
	return string(e.Type)
}
