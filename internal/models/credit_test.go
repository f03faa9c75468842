package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testBalance(specific map[ExamType]int, shared int) *CreditBalance {
	return &CreditBalance{
		StudentID:       "STU1001",
		SpecificCredits: specific,
		SharedCredits:   shared,
	}
}

func TestCreditBalance_AvailableFor(t *testing.T) {
	balance := testBalance(map[ExamType]int{
		ExamTypeSituationalJudgment: 2,
		ExamTypeClinicalSkills:      0,
		ExamTypeMiniMock:            1,
	}, 3)

	assert.Equal(t, 5, balance.AvailableFor(ExamTypeSituationalJudgment))
	assert.Equal(t, 3, balance.AvailableFor(ExamTypeClinicalSkills))

	// Mini mocks never draw from the shared pool
	assert.Equal(t, 1, balance.AvailableFor(ExamTypeMiniMock))
}

func TestCreditBalance_MiniMockWithOnlySharedCredits(t *testing.T) {
	balance := testBalance(map[ExamType]int{ExamTypeMiniMock: 0}, 10)
	assert.Equal(t, 0, balance.AvailableFor(ExamTypeMiniMock))
}

func TestCreditBalance_Clone(t *testing.T) {
	balance := testBalance(map[ExamType]int{ExamTypeClinicalSkills: 2}, 1)

	clone := balance.Clone()
	clone.SpecificCredits[ExamTypeClinicalSkills] = 0
	clone.SharedCredits = 0

	assert.Equal(t, 2, balance.SpecificCredits[ExamTypeClinicalSkills])
	assert.Equal(t, 1, balance.SharedCredits)
}

func TestExamType_AllowsSharedCredits(t *testing.T) {
	assert.True(t, ExamTypeSituationalJudgment.AllowsSharedCredits())
	assert.True(t, ExamTypeClinicalSkills.AllowsSharedCredits())
	assert.False(t, ExamTypeMiniMock.AllowsSharedCredits())
}

func TestParseExamType(t *testing.T) {
	examType, err := ParseExamType("clinical_skills")
	assert.NoError(t, err)
	assert.Equal(t, ExamTypeClinicalSkills, examType)

	_, err = ParseExamType("driving_test")
	assert.Error(t, err)
}
