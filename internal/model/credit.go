package model

import (
	"time"

	"github.com/google/uuid"
)

type CardType string

const (
	CardTypeLesson       CardType = "lesson"
	CardTypeTrial        CardType = "trial"
	CardTypeCompensation CardType = "compensation"
	CardTypeCancel       CardType = "cancel"
)

// BookableCardTypes can pay for a lesson.
var BookableCardTypes = []CardType{CardTypeLesson, CardTypeTrial, CardTypeCompensation}

func (t CardType) Valid() bool {
	switch t {
	case CardTypeLesson, CardTypeTrial, CardTypeCompensation, CardTypeCancel:
		return true
	}
	return false
}

type BatchStatus string

const (
	BatchStatusDraft    BatchStatus = "draft"
	BatchStatusActive   BatchStatus = "active"
	BatchStatusConsumed BatchStatus = "consumed"
	BatchStatusExpired  BatchStatus = "expired"
)

// BatchSource - откуда взялся пакет
type BatchSource string

const (
	BatchSourceAdminGrant   BatchSource = "admin_grant"
	BatchSourceEarned       BatchSource = "earned"
	BatchSourceCompensation BatchSource = "compensation"
)

// DefaultExpiryPerUnit - срок действия по умолчанию на одну единицу пакета
const DefaultExpiryPerUnit = 7 * 24 * time.Hour

// CreditBatch - пакет кредитов (карточек) студента
type CreditBatch struct {
	ID          int64       `json:"id"`
	StudentID   int64       `json:"student_id"`
	CourseID    *int64      `json:"course_id,omitempty"`
	CardType    CardType    `json:"card_type"`
	Source      BatchSource `json:"source"`
	Quantity    int         `json:"quantity"`
	Remaining   int         `json:"remaining"`
	Status      BatchStatus `json:"status"`
	ActivatedAt *time.Time  `json:"activated_at,omitempty"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// EffectiveStatus applies passive expiry: an active batch whose expiry has
// elapsed reads as expired.
func (b *CreditBatch) EffectiveStatus(now time.Time) BatchStatus {
	if b.Status == BatchStatusActive && b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
		return BatchStatusExpired
	}
	return b.Status
}

// Usable reports whether units can be drawn from the batch at now.
func (b *CreditBatch) Usable(now time.Time) bool {
	return b.EffectiveStatus(now) == BatchStatusActive && b.Remaining > 0
}

// Used is the number of units drawn from the batch.
func (b *CreditBatch) Used() int {
	return b.Quantity - b.Remaining
}

type ConsumptionReason string

const (
	ReasonBooking          ConsumptionReason = "booking"
	ReasonCancelTier1      ConsumptionReason = "cancel_tier_1"
	ReasonCancelTier2      ConsumptionReason = "cancel_tier_2"
	ReasonCancelTierLocked ConsumptionReason = "cancel_tier_locked"
	ReasonAdminAdjust      ConsumptionReason = "admin_adjust"
	ReasonRefund           ConsumptionReason = "refund"
)

// ConsumptionRecord - неизменяемая запись о движении по леджеру.
// Amount со знаком: списание отрицательное, возврат положительный.
type ConsumptionRecord struct {
	ID        int64             `json:"id"`
	StudentID int64             `json:"student_id"`
	BatchID   *int64            `json:"batch_id,omitempty"`
	BookingID *uuid.UUID        `json:"booking_id,omitempty"`
	Amount    int               `json:"amount"`
	Reason    ConsumptionReason `json:"reason"`
	CreatedAt time.Time         `json:"created_at"`
}

// CreditSummary is the student-facing balance view.
type CreditSummary struct {
	StudentID            int64 `json:"student_id"`
	RemainingFromBatches int   `json:"remaining_from_batches"`
	BonusCredits         int   `json:"bonus_credits"`
	TotalAvailable       int   `json:"total_available"`
	CancelCards          int   `json:"cancel_cards"`
}
