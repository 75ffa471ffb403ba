// Package notify delivers booking events to people and downstream systems.
// Delivery is best effort: the booking engine never waits on a failed send.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_scheduler/internal/events"
)

// Notifier receives committed booking events.
type Notifier interface {
	Notify(ctx context.Context, e events.Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e events.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to the structured log.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(_ context.Context, e events.Event) error {
	l.Logger.Info("Booking event",
		zap.String("type", string(e.Type)),
		zap.String("event_id", e.ID.String()),
		zap.String("booking_id", e.BookingID.String()),
		zap.Int64("student_id", e.StudentID),
		zap.Int64("teacher_id", e.TeacherID),
		zap.Time("starts_at", e.StartsAt))
	return nil
}

// Async detaches delivery from the caller. Each event is sent in its own
// goroutine with a timeout; failures are only logged.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  *zap.Logger
}

func NewAsync(next Notifier, timeout time.Duration, logger *zap.Logger) *Async {
	return &Async{next: next, timeout: timeout, logger: logger}
}

func (a *Async) Notify(ctx context.Context, e events.Event) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, e); err != nil {
			a.logger.Warn("Failed to deliver booking event",
				zap.String("type", string(e.Type)),
				zap.String("booking_id", e.BookingID.String()),
				zap.Error(err))
		}
	}()
	return nil
}
