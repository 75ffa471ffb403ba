// Package policy holds the cancellation decision table.
package policy

import (
	"fmt"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

// Cause is why a booking is being canceled.
type Cause string

const (
	CauseStudentRequest Cause = "student_request"
	CauseTeacherRequest Cause = "teacher_request"
	CauseTechnicalIssue Cause = "technical_issue"
	CauseAdminForce     Cause = "admin_force"
)

// Tier is the hours-until-start bracket of a student cancellation.
type Tier string

const (
	TierNone   Tier = ""       // cause is not tiered
	TierFree   Tier = "free"   // >= 24h
	TierOne    Tier = "tier_1" // [12h, 24h)
	TierTwo    Tier = "tier_2" // [2h, 12h)
	TierLocked Tier = "locked" // < 2h
)

const (
	FreeCancelHours  = 24.0
	TierOneHours     = 12.0
	LockedBelowHours = 2.0
)

// Decision is the outcome of the table for one cancellation request.
type Decision struct {
	Allowed            bool `json:"allowed"`
	LessonCredits      int  `json:"lesson_credits_returned"`
	CancelCardsCharged int  `json:"cancel_cards_charged"`
	CompensationCredit int  `json:"compensation_granted"`
	Tier               Tier `json:"tier"`
}

// ParseCause validates a caller-supplied cause.
func ParseCause(s string) (Cause, error) {
	switch c := Cause(s); c {
	case CauseStudentRequest, CauseTeacherRequest, CauseTechnicalIssue, CauseAdminForce:
		return c, nil
	}
	return "", fmt.Errorf("cause %q: %w", s, model.ErrInvalidCause)
}

// CauseForRole is the default cause when the caller does not name one.
func CauseForRole(role model.Role) Cause {
	switch role {
	case model.RoleTeacher:
		return CauseTeacherRequest
	case model.RoleAdmin:
		return CauseAdminForce
	default:
		return CauseStudentRequest
	}
}

// TierFor classifies hours until start. Lower bounds are inclusive.
func TierFor(hoursUntilStart float64) Tier {
	switch {
	case hoursUntilStart >= FreeCancelHours:
		return TierFree
	case hoursUntilStart >= TierOneHours:
		return TierOne
	case hoursUntilStart >= LockedBelowHours:
		return TierTwo
	default:
		return TierLocked
	}
}

// Decide applies the cancellation table. It has no side effects.
func Decide(hoursUntilStart float64, cause Cause, adminOverride bool) Decision {
	tier := TierFor(hoursUntilStart)

	if adminOverride {
		return Decision{Allowed: true, LessonCredits: 1, Tier: tier}
	}

	switch cause {
	case CauseTeacherRequest, CauseAdminForce:
		return Decision{Allowed: true, LessonCredits: 1, Tier: TierNone}
	case CauseTechnicalIssue:
		return Decision{Allowed: true, LessonCredits: 1, CompensationCredit: 1, Tier: TierNone}
	case CauseStudentRequest:
		switch tier {
		case TierFree:
			return Decision{Allowed: true, LessonCredits: 1, Tier: tier}
		case TierOne:
			return Decision{Allowed: true, LessonCredits: 1, CancelCardsCharged: 1, Tier: tier}
		case TierTwo:
			return Decision{Allowed: true, LessonCredits: 1, CancelCardsCharged: 2, Tier: tier}
		}
		return Decision{Allowed: false, Tier: TierLocked}
	}

	return Decision{Allowed: false, Tier: tier}
}

// ChargeReason is the ledger reason for cancel cards charged in tier.
func ChargeReason(tier Tier) model.ConsumptionReason {
	switch tier {
	case TierOne:
		return model.ReasonCancelTier1
	case TierTwo:
		return model.ReasonCancelTier2
	case TierLocked:
		return model.ReasonCancelTierLocked
	}
	return model.ReasonRefund
}
