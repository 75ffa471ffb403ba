package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name     string
		hours    float64
		cause    Cause
		override bool
		want     Decision
	}{
		{"admin override in locked window", 0.5, CauseStudentRequest, true, Decision{Allowed: true, LessonCredits: 1, Tier: TierLocked}},
		{"admin override early", 48, CauseStudentRequest, true, Decision{Allowed: true, LessonCredits: 1, Tier: TierFree}},
		{"teacher request late", 0.1, CauseTeacherRequest, false, Decision{Allowed: true, LessonCredits: 1}},
		{"technical issue", 1, CauseTechnicalIssue, false, Decision{Allowed: true, LessonCredits: 1, CompensationCredit: 1}},
		{"student 48h", 48, CauseStudentRequest, false, Decision{Allowed: true, LessonCredits: 1, Tier: TierFree}},
		{"student exactly 24h", 24.0, CauseStudentRequest, false, Decision{Allowed: true, LessonCredits: 1, Tier: TierFree}},
		{"student 23.9h", 23.9, CauseStudentRequest, false, Decision{Allowed: true, LessonCredits: 1, CancelCardsCharged: 1, Tier: TierOne}},
		{"student exactly 12h", 12.0, CauseStudentRequest, false, Decision{Allowed: true, LessonCredits: 1, CancelCardsCharged: 1, Tier: TierOne}},
		{"student 11.99h", 11.99, CauseStudentRequest, false, Decision{Allowed: true, LessonCredits: 1, CancelCardsCharged: 2, Tier: TierTwo}},
		{"student exactly 2h", 2.0, CauseStudentRequest, false, Decision{Allowed: true, LessonCredits: 1, CancelCardsCharged: 2, Tier: TierTwo}},
		{"student 1.99h", 1.99, CauseStudentRequest, false, Decision{Allowed: false, Tier: TierLocked}},
		{"admin force no override", 1, CauseAdminForce, false, Decision{Allowed: true, LessonCredits: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.hours, tt.cause, tt.override))
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, Decide(13, CauseStudentRequest, false), Decide(13, CauseStudentRequest, false))
	}
}

func TestParseCause(t *testing.T) {
	c, err := ParseCause("technical_issue")
	require.NoError(t, err)
	assert.Equal(t, CauseTechnicalIssue, c)

	_, err = ParseCause("weather")
	assert.ErrorIs(t, err, model.ErrInvalidCause)
}

func TestCauseForRole(t *testing.T) {
	assert.Equal(t, CauseStudentRequest, CauseForRole(model.RoleStudent))
	assert.Equal(t, CauseTeacherRequest, CauseForRole(model.RoleTeacher))
	assert.Equal(t, CauseAdminForce, CauseForRole(model.RoleAdmin))
}

func TestChargeReason(t *testing.T) {
	assert.Equal(t, model.ReasonCancelTier1, ChargeReason(TierOne))
	assert.Equal(t, model.ReasonCancelTier2, ChargeReason(TierTwo))
}
