package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

type BookingRepository struct {
	q Querier
}

func NewBookingRepository(q Querier) *BookingRepository {
	return &BookingRepository{q: q}
}

const bookingColumns = `id, student_id, teacher_id, starts_at, ends_at, status, source, duration_minutes,
		credit_units, cancel_cause, canceled_at, created_at, updated_at`

// Create создаёт новое бронирование
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (id, student_id, teacher_id, starts_at, ends_at, status, source, duration_minutes, credit_units)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(
		ctx, query,
		booking.ID,
		booking.StudentID,
		booking.TeacherID,
		booking.StartsAt,
		booking.EndsAt,
		booking.Status,
		booking.Source,
		booking.DurationMinutes,
		booking.CreditUnits,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		if isExclusionViolation(err) || isUniqueViolation(err) {
			return fmt.Errorf("create booking: %w", model.ErrOverlappingBooking)
		}
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, model.ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// GetForUpdate получает бронирование с блокировкой строки до конца транзакции
func (r *BookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	booking, err := scanBooking(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, model.ErrBookingNotFound
		}
		return nil, fmt.Errorf("lock booking: %w", err)
	}

	return booking, nil
}

// Update сохраняет изменяемые поля бронирования
func (r *BookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	query := `
		UPDATE bookings
		SET starts_at = $2,
		    ends_at = $3,
		    status = $4,
		    duration_minutes = $5,
		    cancel_cause = $6,
		    canceled_at = $7,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(
		ctx, query,
		booking.ID,
		booking.StartsAt,
		booking.EndsAt,
		booking.Status,
		booking.DurationMinutes,
		booking.CancelCause,
		booking.CanceledAt,
	).Scan(&booking.UpdatedAt)

	if err != nil {
		if IsNotFound(err) {
			return model.ErrBookingNotFound
		}
		if isExclusionViolation(err) {
			return fmt.Errorf("update booking: %w", model.ErrOverlappingBooking)
		}
		return fmt.Errorf("update booking: %w", err)
	}

	return nil
}

// ListOverlapping ищет активные бронирования учителя или студента, пересекающие диапазон
func (r *BookingRepository) ListOverlapping(ctx context.Context, teacherID, studentID int64, from, to time.Time, exclude *uuid.UUID) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE (teacher_id = $1 OR student_id = $2)
		  AND status IN ('scheduled', 'pending_teacher_confirmation')
		  AND starts_at < $4
		  AND ends_at > $3
		  AND ($5::uuid IS NULL OR id <> $5)
		ORDER BY starts_at
	`

	rows, err := r.q.Query(ctx, query, teacherID, studentID, from, to, exclude)
	if err != nil {
		return nil, fmt.Errorf("list overlapping bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// LockParticipants берёт транзакционные advisory-блокировки на учителя и студента.
// Порядок всегда учитель → студент.
func (r *BookingRepository) LockParticipants(ctx context.Context, teacherID, studentID int64) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('teacher:' || $1::text, 0))`, teacherID); err != nil {
		return fmt.Errorf("lock teacher: %w", err)
	}
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('student:' || $1::text, 0))`, studentID); err != nil {
		return fmt.Errorf("lock student: %w", err)
	}
	return nil
}

// CountCompleted считает завершённые занятия студента
func (r *BookingRepository) CountCompleted(ctx context.Context, studentID int64) (int, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE student_id = $1 AND status = 'completed'`

	var count int
	if err := r.q.QueryRow(ctx, query, studentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed bookings: %w", err)
	}
	return count, nil
}

// ListEndedScheduled получает запланированные занятия, которые уже закончились
func (r *BookingRepository) ListEndedScheduled(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'scheduled' AND ends_at <= $1
		ORDER BY ends_at
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list ended bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// ListStalePending получает переносы без ответа учителя, время которых уже наступило
func (r *BookingRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending_teacher_confirmation' AND starts_at <= $1
		ORDER BY starts_at
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]*model.Booking, error) {
	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.StudentID,
		&b.TeacherID,
		&b.StartsAt,
		&b.EndsAt,
		&b.Status,
		&b.Source,
		&b.DurationMinutes,
		&b.CreditUnits,
		&b.CancelCause,
		&b.CanceledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.StartsAt = b.StartsAt.UTC()
	b.EndsAt = b.EndsAt.UTC()
	return &b, nil
}
