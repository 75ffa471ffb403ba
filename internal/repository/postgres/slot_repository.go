package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

type SlotRepository struct {
	q Querier
}

func NewSlotRepository(q Querier) *SlotRepository {
	return &SlotRepository{q: q}
}

const slotColumns = `teacher_id, slot_date, slot_index, status, booking_id, reason, starts_at, ends_at, updated_at`

// Upsert публикует слоты; забронированные слоты не перезаписываются
func (r *SlotRepository) Upsert(ctx context.Context, slots []*model.AvailabilitySlot) ([]*model.AvailabilitySlot, error) {
	query := `
		INSERT INTO teacher_availability_slots (teacher_id, slot_date, slot_index, status, reason, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (teacher_id, slot_date, slot_index) DO UPDATE
		SET status = EXCLUDED.status,
		    reason = EXCLUDED.reason,
		    booking_id = NULL,
		    starts_at = EXCLUDED.starts_at,
		    ends_at = EXCLUDED.ends_at,
		    updated_at = NOW()
		WHERE teacher_availability_slots.status <> 'booked'
		RETURNING updated_at
	`

	var skipped []*model.AvailabilitySlot
	for _, slot := range slots {
		date, err := time.Parse(model.DateLayout, slot.Date)
		if err != nil {
			return nil, fmt.Errorf("parse slot date: %w", model.ErrInvalidDate)
		}

		err = r.q.QueryRow(
			ctx, query,
			slot.TeacherID,
			date,
			slot.SlotIndex,
			slot.Status,
			slot.Reason,
			slot.StartsAt,
			slot.EndsAt,
		).Scan(&slot.UpdatedAt)

		if err != nil {
			if IsNotFound(err) {
				skipped = append(skipped, slot)
				continue
			}
			return nil, fmt.Errorf("upsert slot: %w", err)
		}
	}

	return skipped, nil
}

// ListRange получает слоты учителя, начинающиеся в [from, to)
func (r *SlotRepository) ListRange(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM teacher_availability_slots
		WHERE teacher_id = $1
		  AND starts_at >= $2
		  AND starts_at < $3
		ORDER BY starts_at, slot_date, slot_index
	`

	rows, err := r.q.Query(ctx, query, teacherID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

// CountAvailable считает свободные слоты в диапазоне
func (r *SlotRepository) CountAvailable(ctx context.Context, teacherID int64, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT starts_at)
		FROM teacher_availability_slots
		WHERE teacher_id = $1
		  AND starts_at >= $2
		  AND starts_at < $3
		  AND status = 'available'
	`

	var count int
	if err := r.q.QueryRow(ctx, query, teacherID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count available slots: %w", err)
	}
	return count, nil
}

// Reserve бронирует все свободные слоты диапазона одним условным UPDATE.
// Конкурирующая транзакция ждёт блокировки строк и после неё видит status = 'booked'.
func (r *SlotRepository) Reserve(ctx context.Context, teacherID int64, from, to time.Time, bookingID uuid.UUID) (int, error) {
	query := `
		WITH flipped AS (
			UPDATE teacher_availability_slots
			SET status = 'booked', booking_id = $4, reason = NULL, updated_at = NOW()
			WHERE teacher_id = $1
			  AND starts_at >= $2
			  AND starts_at < $3
			  AND status = 'available'
			RETURNING starts_at
		)
		SELECT COUNT(DISTINCT starts_at) FROM flipped
	`

	var count int
	if err := r.q.QueryRow(ctx, query, teacherID, from, to, bookingID).Scan(&count); err != nil {
		return 0, fmt.Errorf("reserve slots: %w", err)
	}
	return count, nil
}

// Release освобождает слоты диапазона независимо от текущего статуса
func (r *SlotRepository) Release(ctx context.Context, teacherID int64, from, to time.Time) error {
	query := `
		UPDATE teacher_availability_slots
		SET status = 'available', booking_id = NULL, reason = NULL, updated_at = NOW()
		WHERE teacher_id = $1
		  AND starts_at >= $2
		  AND starts_at < $3
		  AND status <> 'available'
	`

	if _, err := r.q.Exec(ctx, query, teacherID, from, to); err != nil {
		return fmt.Errorf("release slots: %w", err)
	}

	return nil
}

// TeachersAvailable ищет учителей, у которых свободен каждый старт из starts.
// Слоты вне сетки запроса (зоны со смещением не кратным 30 минутам) не считаются.
func (r *SlotRepository) TeachersAvailable(ctx context.Context, starts []time.Time) ([]int64, error) {
	if len(starts) == 0 {
		return nil, nil
	}

	query := `
		SELECT teacher_id
		FROM teacher_availability_slots
		WHERE starts_at = ANY($1)
		  AND status = 'available'
		GROUP BY teacher_id
		HAVING COUNT(DISTINCT starts_at) = $2
		ORDER BY teacher_id
	`

	rows, err := r.q.Query(ctx, query, starts, len(starts))
	if err != nil {
		return nil, fmt.Errorf("search available teachers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan teacher id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func scanSlot(row pgx.Row) (*model.AvailabilitySlot, error) {
	var slot model.AvailabilitySlot
	var date time.Time
	err := row.Scan(
		&slot.TeacherID,
		&date,
		&slot.SlotIndex,
		&slot.Status,
		&slot.BookingID,
		&slot.Reason,
		&slot.StartsAt,
		&slot.EndsAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	slot.Date = date.Format(model.DateLayout)
	slot.StartsAt = slot.StartsAt.UTC()
	slot.EndsAt = slot.EndsAt.UTC()
	return &slot, nil
}
