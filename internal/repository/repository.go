// Package repository declares the storage ports used by the services.
// Adapters live in repository/postgres (production) and repository/memory.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

// SlotRepository владеет сеткой доступности учителей
type SlotRepository interface {
	// Upsert re-states slots by key. Booked slots are left untouched and returned.
	Upsert(ctx context.Context, slots []*model.AvailabilitySlot) (skipped []*model.AvailabilitySlot, err error)
	// ListRange returns the teacher's slots whose start lies in [from, to), ordered by start.
	ListRange(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.AvailabilitySlot, error)
	// CountAvailable counts available slots starting in [from, to).
	CountAvailable(ctx context.Context, teacherID int64, from, to time.Time) (int, error)
	// Reserve flips available slots in [from, to) to booked and returns how many
	// distinct start instants it flipped. Rows sharing one instant (published under
	// different zones) count once. Callers compare the count with the covered slots.
	Reserve(ctx context.Context, teacherID int64, from, to time.Time, bookingID uuid.UUID) (int, error)
	// Release makes every slot in [from, to) available again.
	Release(ctx context.Context, teacherID int64, from, to time.Time) error
	// TeachersAvailable returns teachers with an available slot at every one of starts.
	TeachersAvailable(ctx context.Context, starts []time.Time) ([]int64, error)
}

// BookingRepository хранит бронирования
type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// GetForUpdate loads the booking and locks it for the rest of the unit of work.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	Update(ctx context.Context, booking *model.Booking) error
	// ListOverlapping returns active bookings of the teacher or the student intersecting [from, to).
	ListOverlapping(ctx context.Context, teacherID, studentID int64, from, to time.Time, exclude *uuid.UUID) ([]*model.Booking, error)
	// LockParticipants serialises units of work touching the same teacher or student.
	LockParticipants(ctx context.Context, teacherID, studentID int64) error
	CountCompleted(ctx context.Context, studentID int64) (int, error)
	// ListEndedScheduled returns scheduled bookings that ended before cutoff.
	ListEndedScheduled(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error)
	// ListStalePending returns bookings still awaiting teacher confirmation whose start is not after cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error)
}

// CreditRepository хранит пакеты кредитов и журнал движений
type CreditRepository interface {
	CreateBatch(ctx context.Context, batch *model.CreditBatch) error
	GetBatch(ctx context.Context, id int64) (*model.CreditBatch, error)
	GetBatchForUpdate(ctx context.Context, id int64) (*model.CreditBatch, error)
	UpdateBatch(ctx context.Context, batch *model.CreditBatch) error
	// ListBatches returns the student's batches of the given types, locking them
	// when forUpdate is set. Empty types means all types.
	ListBatches(ctx context.Context, studentID int64, types []model.CardType, forUpdate bool) ([]*model.CreditBatch, error)
	// LockStudent serialises ledger units of work of one student. It shares the
	// key used by BookingRepository.LockParticipants.
	LockStudent(ctx context.Context, studentID int64) error
	// SumEarnedCancelCards is the total quantity of cancel cards granted by the earning rule.
	SumEarnedCancelCards(ctx context.Context, studentID int64) (int, error)
	AppendRecord(ctx context.Context, record *model.ConsumptionRecord) error
	ListRecords(ctx context.Context, studentID int64) ([]*model.ConsumptionRecord, error)
}

// ProfileRepository is the read-only profile lookup collaborator.
type ProfileRepository interface {
	// TeacherTimezone returns the stored zone, or "" when the teacher has none.
	TeacherTimezone(ctx context.Context, teacherID int64) (string, error)
}

// Store bundles the repositories bound to one connection or transaction.
type Store interface {
	Slots() SlotRepository
	Bookings() BookingRepository
	Credits() CreditRepository
}

// Database is a Store that can also open units of work. Everything fn does
// through the given Store commits together or not at all.
type Database interface {
	Store
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
