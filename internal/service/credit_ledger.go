package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_scheduler/internal/clock"
	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
)

// CompletedPerCancelCard: one cancel card is earned for every this many completed lessons.
const CompletedPerCancelCard = 10

// BatchMovement is the amount moved on one batch; negative is a debit.
type BatchMovement struct {
	BatchID int64 `json:"batch_id"`
	Amount  int   `json:"amount"`
}

// LedgerResult итог одного движения по леджеру
type LedgerResult struct {
	Requested int             `json:"requested"`
	Applied   int             `json:"applied"`
	Shortfall int             `json:"shortfall"`
	Movements []BatchMovement `json:"movements,omitempty"`
}

type CreditLedger struct {
	db     repository.Database
	clock  clock.Clock
	logger *zap.Logger
}

func NewCreditLedger(db repository.Database, clk clock.Clock, logger *zap.Logger) *CreditLedger {
	return &CreditLedger{db: db, clock: clk, logger: logger}
}

// CheckBalance returns the spendable lesson units: usable lesson and trial
// batches (scoped to courseID when given) plus unscoped bonus credits.
func (l *CreditLedger) CheckBalance(ctx context.Context, studentID int64, courseID *int64) (int, error) {
	summary, err := l.summary(ctx, l.db, studentID, courseID)
	if err != nil {
		return 0, err
	}
	return summary.TotalAvailable, nil
}

// GetStudentCreditSummary returns the balance view of a student.
func (l *CreditLedger) GetStudentCreditSummary(ctx context.Context, studentID int64) (*model.CreditSummary, error) {
	return l.summary(ctx, l.db, studentID, nil)
}

func (l *CreditLedger) summary(ctx context.Context, st repository.Store, studentID int64, courseID *int64) (*model.CreditSummary, error) {
	batches, err := st.Credits().ListBatches(ctx, studentID, nil, false)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	now := l.clock.Now()
	out := &model.CreditSummary{StudentID: studentID}
	for _, b := range batches {
		if !b.Usable(now) {
			continue
		}
		switch b.CardType {
		case model.CardTypeLesson, model.CardTypeTrial:
			if courseID != nil && b.CourseID != nil && *b.CourseID != *courseID {
				continue
			}
			out.RemainingFromBatches += b.Remaining
		case model.CardTypeCompensation:
			out.BonusCredits += b.Remaining
		case model.CardTypeCancel:
			out.CancelCards += b.Remaining
		}
	}
	out.TotalAvailable = out.RemainingFromBatches + out.BonusCredits
	return out, nil
}

// ListRecords returns the student's ledger, oldest first.
func (l *CreditLedger) ListRecords(ctx context.Context, studentID int64) ([]*model.ConsumptionRecord, error) {
	records, err := l.db.Credits().ListRecords(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Consume списывает units с пакетов eligible типов, начиная с ближайшего срока
// истечения. Пустой eligible означает все типы, которыми можно оплатить занятие.
// Если суммарно не хватает, ничего не списывается.
func (l *CreditLedger) Consume(ctx context.Context, studentID int64, units int, bookingID *uuid.UUID, eligible []model.CardType) (*LedgerResult, error) {
	var res *LedgerResult
	err := l.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		res, err = l.consume(ctx, tx, studentID, units, bookingID, eligible)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *CreditLedger) consume(ctx context.Context, st repository.Store, studentID int64, units int, bookingID *uuid.UUID, eligible []model.CardType) (*LedgerResult, error) {
	if units <= 0 {
		return nil, model.ErrInvalidQuantity
	}
	if len(eligible) == 0 {
		eligible = model.BookableCardTypes
	}
	for _, ct := range eligible {
		if !slices.Contains(model.BookableCardTypes, ct) {
			return nil, fmt.Errorf("%s cannot pay for a lesson: %w", ct, model.ErrInvalidCardType)
		}
	}

	batches, err := st.Credits().ListBatches(ctx, studentID, eligible, true)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	usable := usableByExpiry(batches, l.clock.Now())

	total := 0
	for _, b := range usable {
		total += b.Remaining
	}
	if total < units {
		return nil, fmt.Errorf("need %d, have %d: %w", units, total, model.ErrInsufficientBalance)
	}

	return l.draw(ctx, st, studentID, usable, units, bookingID, model.ReasonBooking)
}

// ConsumeCancelCards списывает карточки отмены, сколько есть. Нехватка не ошибка,
// а Shortfall в результате.
func (l *CreditLedger) ConsumeCancelCards(ctx context.Context, studentID int64, units int, bookingID *uuid.UUID, reason model.ConsumptionReason) (*LedgerResult, error) {
	var res *LedgerResult
	err := l.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		res, err = l.consumeCancelCards(ctx, tx, studentID, units, bookingID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *CreditLedger) consumeCancelCards(ctx context.Context, st repository.Store, studentID int64, units int, bookingID *uuid.UUID, reason model.ConsumptionReason) (*LedgerResult, error) {
	if units <= 0 {
		return &LedgerResult{}, nil
	}

	batches, err := st.Credits().ListBatches(ctx, studentID, []model.CardType{model.CardTypeCancel}, true)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	usable := usableByExpiry(batches, l.clock.Now())

	total := 0
	for _, b := range usable {
		total += b.Remaining
	}
	take := min(units, total)

	res := &LedgerResult{Requested: units}
	if take > 0 {
		res, err = l.draw(ctx, st, studentID, usable, take, bookingID, reason)
		if err != nil {
			return nil, err
		}
		res.Requested = units
	}
	res.Shortfall = units - take

	if res.Shortfall > 0 {
		l.logger.Warn("Not enough cancel cards",
			zap.Int64("student_id", studentID),
			zap.Int("requested", units),
			zap.Int("charged", take))
	}
	return res, nil
}

// draw takes units from batches in order. The caller guarantees they suffice.
func (l *CreditLedger) draw(
	ctx context.Context,
	st repository.Store,
	studentID int64,
	batches []*model.CreditBatch,
	units int,
	bookingID *uuid.UUID,
	reason model.ConsumptionReason,
) (*LedgerResult, error) {
	res := &LedgerResult{Requested: units}
	left := units
	for _, b := range batches {
		if left == 0 {
			break
		}
		take := min(left, b.Remaining)
		b.Remaining -= take
		if b.Remaining == 0 {
			b.Status = model.BatchStatusConsumed
		}
		if err := st.Credits().UpdateBatch(ctx, b); err != nil {
			return nil, fmt.Errorf("update batch %d: %w", b.ID, err)
		}
		if err := appendRecord(ctx, st, studentID, b.ID, bookingID, -take, reason); err != nil {
			return nil, err
		}
		res.Movements = append(res.Movements, BatchMovement{BatchID: b.ID, Amount: -take})
		left -= take
	}
	res.Applied = units - left
	res.Shortfall = left
	return res, nil
}

// Refund возвращает units в самые свежие пакеты, не превышая их quantity.
// Пакет, получивший единицы обратно, снова становится active.
func (l *CreditLedger) Refund(ctx context.Context, studentID int64, units int, bookingID *uuid.UUID, reason model.ConsumptionReason) (*LedgerResult, error) {
	var res *LedgerResult
	err := l.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		res, err = l.refund(ctx, tx, studentID, units, bookingID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *CreditLedger) refund(ctx context.Context, st repository.Store, studentID int64, units int, bookingID *uuid.UUID, reason model.ConsumptionReason) (*LedgerResult, error) {
	res := &LedgerResult{Requested: units}
	if units <= 0 {
		return res, nil
	}

	batches, err := st.Credits().ListBatches(ctx, studentID, model.BookableCardTypes, true)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	now := l.clock.Now()
	candidates := make([]*model.CreditBatch, 0, len(batches))
	for _, b := range batches {
		if b.Status == model.BatchStatusDraft || b.Used() == 0 {
			continue
		}
		if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
			continue
		}
		candidates = append(candidates, b)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID > candidates[j].ID
	})

	left := units
	for _, b := range candidates {
		if left == 0 {
			break
		}
		give := min(left, b.Used())
		b.Remaining += give
		if b.Status == model.BatchStatusConsumed {
			b.Status = model.BatchStatusActive
		}
		if err := st.Credits().UpdateBatch(ctx, b); err != nil {
			return nil, fmt.Errorf("update batch %d: %w", b.ID, err)
		}
		if err := appendRecord(ctx, st, studentID, b.ID, bookingID, give, reason); err != nil {
			return nil, err
		}
		res.Movements = append(res.Movements, BatchMovement{BatchID: b.ID, Amount: give})
		left -= give
	}
	res.Applied = units - left
	res.Shortfall = left

	if res.Shortfall > 0 {
		l.logger.Warn("Refund capped by batch quantities",
			zap.Int64("student_id", studentID),
			zap.Int("requested", units),
			zap.Int("refunded", res.Applied))
	}
	return res, nil
}

// GrantCreditBatch создаёт пакет в статусе draft; срок начинает идти после активации
func (l *CreditLedger) GrantCreditBatch(ctx context.Context, studentID int64, cardType model.CardType, quantity int, courseID *int64) (*model.CreditBatch, error) {
	if !cardType.Valid() {
		return nil, model.ErrInvalidCardType
	}
	if quantity <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	batch := &model.CreditBatch{
		StudentID: studentID,
		CourseID:  courseID,
		CardType:  cardType,
		Source:    model.BatchSourceAdminGrant,
		Quantity:  quantity,
		Remaining: quantity,
		Status:    model.BatchStatusDraft,
	}
	if err := l.db.Credits().CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	l.logger.Info("Credit batch granted",
		zap.Int64("batch_id", batch.ID),
		zap.Int64("student_id", studentID),
		zap.String("card_type", string(cardType)),
		zap.Int("quantity", quantity))

	return batch, nil
}

// Activate starts the batch's validity. Expiry is quantity weeks unless
// customExpireDays is given.
func (l *CreditLedger) Activate(ctx context.Context, batchID int64, customExpireDays *int) (*model.CreditBatch, error) {
	return l.activate(ctx, batchID, nil, customExpireDays)
}

// ActivateOwn activates a batch on behalf of its student; a batch of another
// student is Forbidden.
func (l *CreditLedger) ActivateOwn(ctx context.Context, studentID, batchID int64, customExpireDays *int) (*model.CreditBatch, error) {
	return l.activate(ctx, batchID, &studentID, customExpireDays)
}

func (l *CreditLedger) activate(ctx context.Context, batchID int64, owner *int64, customExpireDays *int) (*model.CreditBatch, error) {
	if customExpireDays != nil && *customExpireDays <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	var batch *model.CreditBatch
	err := l.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		b, err := tx.Credits().GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if owner != nil && b.StudentID != *owner {
			return model.ErrForbidden
		}
		if b.Status != model.BatchStatusDraft {
			return model.ErrAlreadyActivated
		}

		validity := time.Duration(b.Quantity) * model.DefaultExpiryPerUnit
		if customExpireDays != nil {
			validity = time.Duration(*customExpireDays) * 24 * time.Hour
		}
		now := l.clock.Now()
		expires := now.Add(validity)
		b.ActivatedAt = &now
		b.ExpiresAt = &expires
		b.Status = model.BatchStatusActive
		if b.Remaining == 0 {
			b.Status = model.BatchStatusConsumed
		}

		if err := tx.Credits().UpdateBatch(ctx, b); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Credit batch activated",
		zap.Int64("batch_id", batch.ID),
		zap.Int64("student_id", batch.StudentID),
		zap.Timep("expires_at", batch.ExpiresAt))

	return batch, nil
}

// AdjustBatch is the admin correction of remaining by delta (either sign).
func (l *CreditLedger) AdjustBatch(ctx context.Context, batchID int64, delta int) (*model.CreditBatch, error) {
	if delta == 0 {
		return nil, model.ErrInvalidQuantity
	}

	var batch *model.CreditBatch
	err := l.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		b, err := tx.Credits().GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status == model.BatchStatusDraft {
			return model.ErrInvalidStatus
		}
		remaining := b.Remaining + delta
		if remaining < 0 || remaining > b.Quantity {
			return model.ErrInvalidQuantity
		}

		b.Remaining = remaining
		switch {
		case remaining == 0 && b.Status == model.BatchStatusActive:
			b.Status = model.BatchStatusConsumed
		case remaining > 0 && b.Status == model.BatchStatusConsumed:
			b.Status = model.BatchStatusActive
		}
		if err := tx.Credits().UpdateBatch(ctx, b); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		if err := appendRecord(ctx, tx, b.StudentID, b.ID, nil, delta, model.ReasonAdminAdjust); err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Credit batch adjusted",
		zap.Int64("batch_id", batch.ID),
		zap.Int("delta", delta),
		zap.Int("remaining", batch.Remaining))

	return batch, nil
}

// GrantCancelCardsIfEarned выдаёт карточки отмены за каждые 10 проведённых занятий,
// учитывая уже выданные. Возвращает число новых карточек.
func (l *CreditLedger) GrantCancelCardsIfEarned(ctx context.Context, studentID int64) (int, error) {
	var granted int
	err := l.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		granted, err = l.grantCancelCardsIfEarned(ctx, tx, studentID)
		return err
	})
	return granted, err
}

func (l *CreditLedger) grantCancelCardsIfEarned(ctx context.Context, st repository.Store, studentID int64) (int, error) {
	if err := st.Credits().LockStudent(ctx, studentID); err != nil {
		return 0, err
	}

	completed, err := st.Bookings().CountCompleted(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("count completed: %w", err)
	}
	already, err := st.Credits().SumEarnedCancelCards(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("sum earned cancel cards: %w", err)
	}

	due := completed/CompletedPerCancelCard - already
	if due <= 0 {
		return 0, nil
	}

	if _, err := l.createActiveBatch(ctx, st, studentID, model.CardTypeCancel, model.BatchSourceEarned, due); err != nil {
		return 0, err
	}

	l.logger.Info("Cancel cards earned",
		zap.Int64("student_id", studentID),
		zap.Int("completed", completed),
		zap.Int("granted", due))

	return due, nil
}

// grantCompensation adds an active bonus batch for a cancellation the student is not to blame for.
func (l *CreditLedger) grantCompensation(ctx context.Context, st repository.Store, studentID int64, units int) (*model.CreditBatch, error) {
	if units <= 0 {
		return nil, nil
	}
	return l.createActiveBatch(ctx, st, studentID, model.CardTypeCompensation, model.BatchSourceCompensation, units)
}

func (l *CreditLedger) createActiveBatch(ctx context.Context, st repository.Store, studentID int64, cardType model.CardType, source model.BatchSource, quantity int) (*model.CreditBatch, error) {
	now := l.clock.Now()
	expires := now.Add(time.Duration(quantity) * model.DefaultExpiryPerUnit)
	batch := &model.CreditBatch{
		StudentID:   studentID,
		CardType:    cardType,
		Source:      source,
		Quantity:    quantity,
		Remaining:   quantity,
		Status:      model.BatchStatusActive,
		ActivatedAt: &now,
		ExpiresAt:   &expires,
	}
	if err := st.Credits().CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create %s batch: %w", cardType, err)
	}
	return batch, nil
}

// usableByExpiry filters usable batches and orders them soonest expiry first;
// batches without expiry go last.
func usableByExpiry(batches []*model.CreditBatch, now time.Time) []*model.CreditBatch {
	out := make([]*model.CreditBatch, 0, len(batches))
	for _, b := range batches {
		if b.Usable(now) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ExpiresAt, out[j].ExpiresAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func appendRecord(ctx context.Context, st repository.Store, studentID, batchID int64, bookingID *uuid.UUID, amount int, reason model.ConsumptionReason) error {
	id := batchID
	record := &model.ConsumptionRecord{
		StudentID: studentID,
		BatchID:   &id,
		BookingID: bookingID,
		Amount:    amount,
		Reason:    reason,
	}
	if err := st.Credits().AppendRecord(ctx, record); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}
