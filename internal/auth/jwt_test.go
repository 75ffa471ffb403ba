package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens("secret")
	raw, err := tokens.Issue(model.Actor{UserID: 42, Role: model.RoleTeacher}, time.Hour, time.Now())
	require.NoError(t, err)

	actor, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, model.Actor{UserID: 42, Role: model.RoleTeacher}, actor)
}

func TestParseRejects(t *testing.T) {
	tokens := NewTokens("secret")

	expired, err := tokens.Issue(model.Actor{UserID: 1, Role: model.RoleStudent}, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = tokens.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewTokens("other").Issue(model.Actor{UserID: 1, Role: model.RoleStudent}, time.Hour, time.Now())
	require.NoError(t, err)
	_, err = tokens.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "superuser",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tokens.Parse(badRole)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
