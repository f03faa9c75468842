package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinprep/exam-booking-backend/internal/models"
)

func TestCheckEligibility_IsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	env.seedContact(2, 0, 0, 1)

	for i := 0; i < 3; i++ {
		result, err := env.ledger.CheckEligibility(context.Background(), testStudentID, models.ExamTypeSituationalJudgment)
		require.NoError(t, err)
		assert.True(t, result.Eligible)
		assert.Equal(t, 3, result.AvailableCredits)
	}

	// Checking never mutates the balance
	assert.Equal(t, 2, env.creditProp("sjt_credits"))
	assert.Equal(t, 1, env.creditProp("shared_credits"))
	assert.Equal(t, 0, env.store.requestCount("batch/update"))
}

func TestConsume_PrefersSpecificBucket(t *testing.T) {
	env := newTestEnv(t)
	env.seedContact(1, 0, 0, 5)

	result, err := env.ledger.Consume(context.Background(), testStudentID, models.ExamTypeSituationalJudgment)
	require.NoError(t, err)

	assert.Equal(t, models.CreditTypeSpecific, result.CreditTypeConsumed)
	assert.Equal(t, 0, env.creditProp("sjt_credits"))
	assert.Equal(t, 5, env.creditProp("shared_credits"))
	assert.Equal(t, 0, result.NewBalance.SpecificCredits[models.ExamTypeSituationalJudgment])
}

func TestConsume_FallsBackToShared(t *testing.T) {
	env := newTestEnv(t)
	env.seedContact(0, 0, 0, 2)

	result, err := env.ledger.Consume(context.Background(), testStudentID, models.ExamTypeClinicalSkills)
	require.NoError(t, err)

	assert.Equal(t, models.CreditTypeShared, result.CreditTypeConsumed)
	assert.Equal(t, 1, env.creditProp("shared_credits"))
}

func TestConsume_MiniMockExhaustedDespiteShared(t *testing.T) {
	env := newTestEnv(t)
	env.seedContact(0, 0, 0, 5)

	_, err := env.ledger.Consume(context.Background(), testStudentID, models.ExamTypeMiniMock)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientCredits))
	assert.Equal(t, 5, env.creditProp("shared_credits"))
}

func TestConsumeRestore_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seedContact(0, 0, 0, 1)

	consumed, err := env.ledger.Consume(context.Background(), testStudentID, models.ExamTypeClinicalSkills)
	require.NoError(t, err)
	require.Equal(t, models.CreditTypeShared, consumed.CreditTypeConsumed)
	require.Equal(t, 0, env.creditProp("shared_credits"))

	// Restoration targets the recorded bucket, even though a specific
	// credit appeared in the meantime
	env.store.putObject(models.ObjectTypeContact, testContactID, map[string]string{
		"student_id":     testStudentID,
		"email":          testEmail,
		"sjt_credits":    "0",
		"cs_credits":     "4",
		"mm_credits":     "0",
		"shared_credits": "0",
	})

	balance, err := env.ledger.Restore(context.Background(), testStudentID, consumed.CreditTypeConsumed, models.ExamTypeClinicalSkills)
	require.NoError(t, err)

	assert.Equal(t, 1, env.creditProp("shared_credits"))
	assert.Equal(t, 4, env.creditProp("cs_credits"))
	assert.Equal(t, 1, balance.SharedCredits)
}

func TestConsumeExact_InvertsRestore(t *testing.T) {
	env := newTestEnv(t)
	env.seedContact(3, 0, 0, 0)

	err := env.ledger.ConsumeExact(context.Background(), testStudentID, models.CreditTypeSpecific, models.ExamTypeSituationalJudgment)
	require.NoError(t, err)
	assert.Equal(t, 2, env.creditProp("sjt_credits"))
}

func TestConsumeExact_NeverGoesNegative(t *testing.T) {
	env := newTestEnv(t)
	env.seedContact(0, 0, 0, 0)

	err := env.ledger.ConsumeExact(context.Background(), testStudentID, models.CreditTypeShared, models.ExamTypeClinicalSkills)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientCredits))
	assert.Equal(t, 0, env.creditProp("shared_credits"))
}
