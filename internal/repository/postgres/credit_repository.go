package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

type CreditRepository struct {
	q Querier
}

func NewCreditRepository(q Querier) *CreditRepository {
	return &CreditRepository{q: q}
}

const batchColumns = `id, student_id, course_id, card_type, source, quantity, remaining, status, activated_at, expires_at, created_at`

// CreateBatch создаёт пакет кредитов
func (r *CreditRepository) CreateBatch(ctx context.Context, batch *model.CreditBatch) error {
	query := `
		INSERT INTO credit_batches (student_id, course_id, card_type, source, quantity, remaining, status, activated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(
		ctx, query,
		batch.StudentID,
		batch.CourseID,
		batch.CardType,
		batch.Source,
		batch.Quantity,
		batch.Remaining,
		batch.Status,
		batch.ActivatedAt,
		batch.ExpiresAt,
	).Scan(&batch.ID, &batch.CreatedAt)

	if err != nil {
		return fmt.Errorf("create credit batch: %w", err)
	}

	return nil
}

// GetBatch получает пакет по ID
func (r *CreditRepository) GetBatch(ctx context.Context, id int64) (*model.CreditBatch, error) {
	return r.getBatch(ctx, `SELECT `+batchColumns+` FROM credit_batches WHERE id = $1`, id)
}

// GetBatchForUpdate получает пакет с блокировкой строки
func (r *CreditRepository) GetBatchForUpdate(ctx context.Context, id int64) (*model.CreditBatch, error) {
	return r.getBatch(ctx, `SELECT `+batchColumns+` FROM credit_batches WHERE id = $1 FOR UPDATE`, id)
}

func (r *CreditRepository) getBatch(ctx context.Context, query string, id int64) (*model.CreditBatch, error) {
	batch, err := scanBatch(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, model.ErrBatchNotFound
		}
		return nil, fmt.Errorf("get credit batch: %w", err)
	}
	return batch, nil
}

// UpdateBatch сохраняет остаток, статус и сроки пакета
func (r *CreditRepository) UpdateBatch(ctx context.Context, batch *model.CreditBatch) error {
	query := `
		UPDATE credit_batches
		SET remaining = $2, status = $3, activated_at = $4, expires_at = $5
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, batch.ID, batch.Remaining, batch.Status, batch.ActivatedAt, batch.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update credit batch: %w", err)
	}

	if result.RowsAffected() == 0 {
		return model.ErrBatchNotFound
	}

	return nil
}

// ListBatches получает пакеты студента указанных типов
func (r *CreditRepository) ListBatches(ctx context.Context, studentID int64, types []model.CardType, forUpdate bool) ([]*model.CreditBatch, error) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}

	query := `
		SELECT ` + batchColumns + `
		FROM credit_batches
		WHERE student_id = $1
		  AND (cardinality($2::text[]) = 0 OR card_type = ANY($2::text[]))
		ORDER BY id
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := r.q.Query(ctx, query, studentID, names)
	if err != nil {
		return nil, fmt.Errorf("list credit batches: %w", err)
	}
	defer rows.Close()

	var batches []*model.CreditBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit batch: %w", err)
		}
		batches = append(batches, batch)
	}

	return batches, rows.Err()
}

// LockStudent берёт ту же advisory-блокировку студента, что и LockParticipants
func (r *CreditRepository) LockStudent(ctx context.Context, studentID int64) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('student:' || $1::text, 0))`, studentID); err != nil {
		return fmt.Errorf("lock student: %w", err)
	}
	return nil
}

// SumEarnedCancelCards суммирует уже выданные за занятия карточки отмены
func (r *CreditRepository) SumEarnedCancelCards(ctx context.Context, studentID int64) (int, error) {
	query := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM credit_batches
		WHERE student_id = $1 AND card_type = 'cancel' AND source = 'earned'
	`

	var total int
	if err := r.q.QueryRow(ctx, query, studentID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum earned cancel cards: %w", err)
	}
	return total, nil
}

// AppendRecord добавляет запись в журнал движений (только вставка)
func (r *CreditRepository) AppendRecord(ctx context.Context, record *model.ConsumptionRecord) error {
	query := `
		INSERT INTO consumption_records (student_id, batch_id, booking_id, amount, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(
		ctx, query,
		record.StudentID,
		record.BatchID,
		record.BookingID,
		record.Amount,
		record.Reason,
	).Scan(&record.ID, &record.CreatedAt)

	if err != nil {
		return fmt.Errorf("append consumption record: %w", err)
	}

	return nil
}

// ListRecords получает журнал движений студента
func (r *CreditRepository) ListRecords(ctx context.Context, studentID int64) ([]*model.ConsumptionRecord, error) {
	query := `
		SELECT id, student_id, batch_id, booking_id, amount, reason, created_at
		FROM consumption_records
		WHERE student_id = $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list consumption records: %w", err)
	}
	defer rows.Close()

	var records []*model.ConsumptionRecord
	for rows.Next() {
		var rec model.ConsumptionRecord
		err := rows.Scan(
			&rec.ID,
			&rec.StudentID,
			&rec.BatchID,
			&rec.BookingID,
			&rec.Amount,
			&rec.Reason,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan consumption record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func scanBatch(row pgx.Row) (*model.CreditBatch, error) {
	var b model.CreditBatch
	err := row.Scan(
		&b.ID,
		&b.StudentID,
		&b.CourseID,
		&b.CardType,
		&b.Source,
		&b.Quantity,
		&b.Remaining,
		&b.Status,
		&b.ActivatedAt,
		&b.ExpiresAt,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
