package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_scheduler/internal/clock"
	"github.com/Freeeeeet/tutor_scheduler/internal/events"
	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/notify"
	"github.com/Freeeeeet/tutor_scheduler/internal/policy"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
)

// CreditUnitsPerBooking: a booking costs one credit regardless of its length.
const CreditUnitsPerBooking = 1

type CreateBookingRequest struct {
	StudentID       int64  `json:"student_id"`
	TeacherID       int64  `json:"teacher_id"`
	StartsAt        string `json:"starts_at"`
	DurationMinutes int    `json:"duration_minutes"`
	// Timezone is used only when StartsAt carries no offset.
	Timezone string `json:"timezone"`
}

type RescheduleRequest struct {
	StartsAt        string `json:"starts_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Timezone        string `json:"timezone"`
}

type CancelRequest struct {
	Cause         string `json:"cause"`
	AdminOverride bool   `json:"admin_override"`
}

// CancelResult описывает отмену и все движения по леджеру
type CancelResult struct {
	Booking             *model.Booking  `json:"booking"`
	Decision            policy.Decision `json:"decision"`
	Refund              *LedgerResult   `json:"refund,omitempty"`
	CancelCards         *LedgerResult   `json:"cancel_cards,omitempty"`
	CompensationGranted int             `json:"compensation_granted"`
	// LedgerError is set when the booking was canceled but the credit side failed.
	LedgerError string `json:"ledger_error,omitempty"`
}

type CompleteResult struct {
	Booking            *model.Booking `json:"booking"`
	CancelCardsGranted int            `json:"cancel_cards_granted"`
}

type BookingService struct {
	db           repository.Database
	availability *AvailabilityService
	ledger       *CreditLedger
	clock        clock.Clock
	notifier     notify.Notifier
	logger       *zap.Logger
}

func NewBookingService(
	db repository.Database,
	availability *AvailabilityService,
	ledger *CreditLedger,
	clk clock.Clock,
	notifier notify.Notifier,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		db:           db,
		availability: availability,
		ledger:       ledger,
		clock:        clk,
		notifier:     notifier,
		logger:       logger,
	}
}

// GetBooking возвращает бронирование, если актор его участник или админ
func (s *BookingService) GetBooking(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	b, err := s.db.Bookings().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !participant(actor, b) {
		return nil, model.ErrForbidden
	}
	return b, nil
}

// CreateBooking проверяет доступность, баланс и пересечения, затем в одной
// транзакции бронирует слоты, списывает кредит и создаёт запись.
func (s *BookingService) CreateBooking(ctx context.Context, actor model.Actor, req CreateBookingRequest) (*model.Booking, error) {
	switch actor.Role {
	case model.RoleStudent:
		if req.StudentID != actor.UserID {
			return nil, model.ErrForbidden
		}
	case model.RoleTeacher:
		if req.TeacherID != actor.UserID {
			return nil, model.ErrForbidden
		}
	case model.RoleAdmin:
	default:
		return nil, model.ErrForbidden
	}

	tz := req.Timezone
	start, err := clock.ValidateBookingTime(s.clock.Now(), req.StartsAt, req.DurationMinutes, tz)
	if err != nil {
		return nil, err
	}
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	booking := &model.Booking{
		ID:              uuid.New(),
		StudentID:       req.StudentID,
		TeacherID:       req.TeacherID,
		StartsAt:        start,
		EndsAt:          end,
		Status:          model.BookingStatusScheduled,
		Source:          model.BookingSource(actor.Role),
		DurationMinutes: req.DurationMinutes,
		CreditUnits:     CreditUnitsPerBooking,
	}

	var debit *LedgerResult
	err = s.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Bookings().LockParticipants(ctx, booking.TeacherID, booking.StudentID); err != nil {
			return err
		}

		if err := s.ensureRangeFree(ctx, tx, booking.TeacherID, start, end); err != nil {
			return err
		}

		summary, err := s.ledger.summary(ctx, tx, booking.StudentID, nil)
		if err != nil {
			return err
		}
		if summary.TotalAvailable < booking.CreditUnits {
			return model.ErrInsufficientBalance
		}

		if err := ensureNoOverlap(ctx, tx, booking, start, end); err != nil {
			return err
		}

		if err := reserveSlots(ctx, tx, booking.TeacherID, start, end, booking.ID); err != nil {
			return err
		}
		debit, err = s.ledger.consume(ctx, tx, booking.StudentID, booking.CreditUnits, &booking.ID, nil)
		if err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.Int64("student_id", booking.StudentID),
		zap.Int64("teacher_id", booking.TeacherID),
		zap.Time("starts_at", booking.StartsAt),
		zap.Int("duration_minutes", booking.DurationMinutes),
		zap.Int("credits", debit.Applied))

	s.emit(ctx, events.TypeBookingCreated, booking)
	return booking, nil
}

// RescheduleBooking переносит запланированное занятие. Старые слоты
// освобождаются, новые бронируются, статус становится pending_teacher_confirmation.
// Кредиты не двигаются.
func (s *BookingService) RescheduleBooking(ctx context.Context, actor model.Actor, bookingID uuid.UUID, req RescheduleRequest) (*model.Booking, error) {
	current, err := s.db.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !participant(actor, current) {
		return nil, model.ErrForbidden
	}

	tz := req.Timezone
	if tz == "" {
		if tz, err = s.availability.TeacherTimezone(ctx, current.TeacherID); err != nil {
			return nil, err
		}
	}
	start, err := clock.ValidateBookingTime(s.clock.Now(), req.StartsAt, req.DurationMinutes, tz)
	if err != nil {
		return nil, err
	}
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	var booking *model.Booking
	err = s.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Bookings().LockParticipants(ctx, current.TeacherID, current.StudentID); err != nil {
			return err
		}
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingStatusScheduled || !b.StartsAt.After(s.clock.Now()) {
			return model.ErrNotReschedulable
		}

		if err := tx.Slots().Release(ctx, b.TeacherID, b.StartsAt, b.EndsAt); err != nil {
			return fmt.Errorf("release slots: %w", err)
		}
		if err := s.ensureRangeFree(ctx, tx, b.TeacherID, start, end); err != nil {
			return err
		}
		if err := ensureNoOverlap(ctx, tx, b, start, end); err != nil {
			return err
		}
		if err := reserveSlots(ctx, tx, b.TeacherID, start, end, b.ID); err != nil {
			return err
		}

		b.StartsAt = start
		b.EndsAt = end
		b.DurationMinutes = req.DurationMinutes
		b.Status = model.BookingStatusPendingTeacherConfirmation
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking rescheduled",
		zap.String("booking_id", booking.ID.String()),
		zap.Time("old_starts_at", current.StartsAt),
		zap.Time("new_starts_at", booking.StartsAt),
		zap.Int64("actor_id", actor.UserID))

	s.emit(ctx, events.TypeBookingRescheduled, booking)
	return booking, nil
}

// ConfirmBooking подтверждает перенос со стороны учителя
func (s *BookingService) ConfirmBooking(ctx context.Context, actor model.Actor, bookingID uuid.UUID) (*model.Booking, error) {
	booking, err := s.transition(ctx, actor, bookingID, teacherOrAdmin, func(b *model.Booking) error {
		if b.Status != model.BookingStatusPendingTeacherConfirmation {
			return model.ErrInvalidTransition
		}
		b.Status = model.BookingStatusScheduled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reschedule confirmed", zap.String("booking_id", booking.ID.String()))
	s.emit(ctx, events.TypeBookingConfirmed, booking)
	return booking, nil
}

// CancelBooking отменяет запланированное занятие по таблице политики отмены.
// Статус и слоты меняются атомарно; движения по кредитам идут следом, и их
// сбой не откатывает отмену, а попадает в LedgerError.
func (s *BookingService) CancelBooking(ctx context.Context, actor model.Actor, bookingID uuid.UUID, req CancelRequest) (*CancelResult, error) {
	if req.AdminOverride && !actor.IsAdmin() {
		return nil, model.ErrForbidden
	}
	cause, err := causeFor(actor, req.Cause)
	if err != nil {
		return nil, err
	}

	return s.cancel(ctx, actor, bookingID, cause, req.AdminOverride, model.BookingStatusScheduled, false)
}

// RejectReschedule - учитель отклоняет перенос: занятие отменяется с полным возвратом
func (s *BookingService) RejectReschedule(ctx context.Context, actor model.Actor, bookingID uuid.UUID) (*CancelResult, error) {
	if actor.Role != model.RoleTeacher && !actor.IsAdmin() {
		return nil, model.ErrForbidden
	}
	return s.cancel(ctx, actor, bookingID, policy.CauseTeacherRequest, false, model.BookingStatusPendingTeacherConfirmation, false)
}

func (s *BookingService) cancel(
	ctx context.Context,
	actor model.Actor,
	bookingID uuid.UUID,
	cause policy.Cause,
	override bool,
	from model.BookingStatus,
	started bool,
) (*CancelResult, error) {
	current, err := s.db.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !participant(actor, current) {
		return nil, model.ErrForbidden
	}

	result := &CancelResult{}
	err = s.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Bookings().LockParticipants(ctx, current.TeacherID, current.StudentID); err != nil {
			return err
		}
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != from || !b.CanTransition(model.BookingStatusCanceled) {
			return model.ErrInvalidTransition
		}
		now := s.clock.Now()
		if !started && !b.StartsAt.After(now) {
			return model.ErrCancellationWindowClosed
		}

		decision := policy.Decide(clock.HoursUntil(now, b.StartsAt), cause, override)
		if !decision.Allowed {
			return model.ErrCancellationWindowClosed
		}

		causeText := string(cause)
		b.Status = model.BookingStatusCanceled
		b.CancelCause = &causeText
		b.CanceledAt = &now
		if err := tx.Slots().Release(ctx, b.TeacherID, b.StartsAt, b.EndsAt); err != nil {
			return fmt.Errorf("release slots: %w", err)
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}

		result.Booking = b
		result.Decision = decision
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.settleCancellation(ctx, result, override); err != nil {
		result.LedgerError = err.Error()
		s.logger.Error("Failed to settle credits for canceled booking",
			zap.String("booking_id", bookingID.String()),
			zap.Int64("student_id", result.Booking.StudentID),
			zap.Error(err))
	}

	s.logger.Info("Booking canceled",
		zap.String("booking_id", bookingID.String()),
		zap.String("cause", string(cause)),
		zap.String("tier", string(result.Decision.Tier)),
		zap.Bool("admin_override", override),
		zap.Int64("actor_id", actor.UserID))

	s.emit(ctx, events.TypeBookingCanceled, result.Booking)
	return result, nil
}

// settleCancellation applies the decision to the ledger in one unit of work.
func (s *BookingService) settleCancellation(ctx context.Context, result *CancelResult, override bool) error {
	b := result.Booking
	d := result.Decision

	reason := model.ReasonRefund
	if override && d.Tier == policy.TierLocked {
		reason = model.ReasonCancelTierLocked
	}

	return s.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		refund, err := s.ledger.refund(ctx, tx, b.StudentID, d.LessonCredits*b.CreditUnits, &b.ID, reason)
		if err != nil {
			return fmt.Errorf("refund: %w", err)
		}
		cards, err := s.ledger.consumeCancelCards(ctx, tx, b.StudentID, d.CancelCardsCharged, &b.ID, policy.ChargeReason(d.Tier))
		if err != nil {
			return fmt.Errorf("charge cancel cards: %w", err)
		}
		comp, err := s.ledger.grantCompensation(ctx, tx, b.StudentID, d.CompensationCredit)
		if err != nil {
			return fmt.Errorf("grant compensation: %w", err)
		}

		result.Refund = refund
		result.CancelCards = cards
		if comp != nil {
			result.CompensationGranted = comp.Quantity
		}
		return nil
	})
}

// CompleteBooking отмечает занятие проведённым и проверяет, заработал ли
// студент новые карточки отмены.
func (s *BookingService) CompleteBooking(ctx context.Context, actor model.Actor, bookingID uuid.UUID) (*CompleteResult, error) {
	booking, err := s.transition(ctx, actor, bookingID, teacherOrAdmin, func(b *model.Booking) error {
		if b.Status != model.BookingStatusScheduled {
			return model.ErrInvalidTransition
		}
		if b.StartsAt.After(s.clock.Now()) {
			return model.ErrInvalidTransition
		}
		b.Status = model.BookingStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CompleteResult{Booking: booking}
	granted, err := s.ledger.GrantCancelCardsIfEarned(ctx, booking.StudentID)
	if err != nil {
		s.logger.Error("Failed to grant earned cancel cards",
			zap.Int64("student_id", booking.StudentID),
			zap.Error(err))
	}
	result.CancelCardsGranted = granted

	s.logger.Info("Booking completed",
		zap.String("booking_id", booking.ID.String()),
		zap.Int64("student_id", booking.StudentID),
		zap.Int("cancel_cards_granted", granted))

	s.emit(ctx, events.TypeBookingCompleted, booking)
	return result, nil
}

// MarkNoShow records that the student missed a started lesson. The credit stays spent.
func (s *BookingService) MarkNoShow(ctx context.Context, actor model.Actor, bookingID uuid.UUID) (*model.Booking, error) {
	booking, err := s.transition(ctx, actor, bookingID, teacherOrAdmin, func(b *model.Booking) error {
		if b.Status != model.BookingStatusScheduled || b.StartsAt.After(s.clock.Now()) {
			return model.ErrInvalidTransition
		}
		b.Status = model.BookingStatusNoShow
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking marked as no-show", zap.String("booking_id", booking.ID.String()))
	s.emit(ctx, events.TypeBookingNoShow, booking)
	return booking, nil
}

// CompleteEnded завершает все запланированные занятия, закончившиеся к текущему моменту.
// Переносы, которые учитель так и не подтвердил до начала занятия, отклоняются
// с полным возвратом. Вызывается планировщиком; возвращает число обработанных броней.
func (s *BookingService) CompleteEnded(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	system := model.Actor{Role: model.RoleAdmin}

	stale, err := s.db.Bookings().ListStalePending(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale pending bookings: %w", err)
	}
	done := 0
	for _, b := range stale {
		if _, err := s.cancel(ctx, system, b.ID, policy.CauseTeacherRequest, false, model.BookingStatusPendingTeacherConfirmation, true); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				continue
			}
			s.logger.Error("Failed to expire pending booking",
				zap.String("booking_id", b.ID.String()),
				zap.Error(err))
			continue
		}
		s.logger.Info("Unconfirmed reschedule expired", zap.String("booking_id", b.ID.String()))
		done++
	}

	ended, err := s.db.Bookings().ListEndedScheduled(ctx, now, limit)
	if err != nil {
		return done, fmt.Errorf("list ended bookings: %w", err)
	}
	for _, b := range ended {
		if _, err := s.CompleteBooking(ctx, system, b.ID); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				continue
			}
			s.logger.Error("Failed to auto-complete booking",
				zap.String("booking_id", b.ID.String()),
				zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

type roleCheck func(actor model.Actor, b *model.Booking) bool

func teacherOrAdmin(actor model.Actor, b *model.Booking) bool {
	return actor.IsAdmin() || (actor.Role == model.RoleTeacher && actor.UserID == b.TeacherID)
}

// transition loads, locks and updates one booking under check and mutate.
func (s *BookingService) transition(
	ctx context.Context,
	actor model.Actor,
	bookingID uuid.UUID,
	allowed roleCheck,
	mutate func(b *model.Booking) error,
) (*model.Booking, error) {
	var booking *model.Booking
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !allowed(actor, b) {
			return model.ErrForbidden
		}
		if err := mutate(b); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		booking = b
		return nil
	})
	return booking, err
}

// ensureRangeFree maps the slot state of [start, end) to the caller-facing error.
func (s *BookingService) ensureRangeFree(ctx context.Context, st repository.Store, teacherID int64, start, end time.Time) error {
	state, err := classifyRange(ctx, st, teacherID, start, end)
	if err != nil {
		return err
	}
	switch state {
	case rangeTaken:
		return model.ErrSlotConflict
	case rangeUnavailable:
		return model.ErrTeacherNotAvailable
	}
	return nil
}

func ensureNoOverlap(ctx context.Context, st repository.Store, b *model.Booking, start, end time.Time) error {
	overlapping, err := st.Bookings().ListOverlapping(ctx, b.TeacherID, b.StudentID, start, end, &b.ID)
	if err != nil {
		return fmt.Errorf("list overlapping: %w", err)
	}
	if len(overlapping) > 0 {
		return model.ErrOverlappingBooking
	}
	return nil
}

func participant(actor model.Actor, b *model.Booking) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleTeacher:
		return actor.UserID == b.TeacherID
	case model.RoleStudent:
		return actor.UserID == b.StudentID
	}
	return false
}

// causeFor resolves the cancellation cause a role may claim. Students may only
// cancel on their own request; technical issues are reported by staff.
func causeFor(actor model.Actor, raw string) (policy.Cause, error) {
	if raw == "" {
		return policy.CauseForRole(actor.Role), nil
	}
	cause, err := policy.ParseCause(raw)
	if err != nil {
		return "", err
	}

	switch actor.Role {
	case model.RoleAdmin:
		return cause, nil
	case model.RoleTeacher:
		if cause == policy.CauseTeacherRequest || cause == policy.CauseTechnicalIssue {
			return cause, nil
		}
	case model.RoleStudent:
		if cause == policy.CauseStudentRequest {
			return cause, nil
		}
	}
	return "", model.ErrForbidden
}

// emit is fire-and-forget: the state change is already committed.
func (s *BookingService) emit(ctx context.Context, t events.Type, b *model.Booking) {
	if s.notifier == nil {
		return
	}
	e := events.NewBookingEvent(t, b, s.clock.Now())
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.logger.Warn("Failed to notify",
			zap.String("type", string(t)),
			zap.String("booking_id", b.ID.String()),
			zap.Error(err))
	}
}
