package models

import (
	"fmt"
	"time"
)

// ExamType identifies the kind of timed exam a session runs
type ExamType string

const (
	ExamTypeSituationalJudgment ExamType = "situational_judgment"
	ExamTypeClinicalSkills      ExamType = "clinical_skills"
	ExamTypeMiniMock            ExamType = "mini_mock"
)

// ParseExamType parses and validates an exam type value
func ParseExamType(value string) (ExamType, error) {
	switch ExamType(value) {
	case ExamTypeSituationalJudgment, ExamTypeClinicalSkills, ExamTypeMiniMock:
		return ExamType(value), nil
	default:
		return "", fmt.Errorf("unknown exam type %q", value)
	}
}

// AllowsSharedCredits reports whether the shared credit pool may cover this
// exam type. Mini mocks are excluded: they are bookable only with their own
// dedicated credits.
func (t ExamType) AllowsSharedCredits() bool {
	return t != ExamTypeMiniMock
}

// CreditProperty returns the contact property holding this exam type's
// specific credit count
func (t ExamType) CreditProperty() string {
	switch t {
	case ExamTypeSituationalJudgment:
		return "sjt_credits"
	case ExamTypeClinicalSkills:
		return "cs_credits"
	case ExamTypeMiniMock:
		return "mm_credits"
	default:
		return ""
	}
}

// ExamSession represents one scheduled exam sitting with finite capacity
type ExamSession struct {
	SessionID   string    `json:"session_id"`
	ExamType    ExamType  `json:"exam_type"`
	Date        time.Time `json:"session_date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Location    string    `json:"location"`
	Capacity    int       `json:"capacity"`
	BookedCount int       `json:"booked_count"`
}

// AvailableSlots returns the remaining capacity, floored at zero
func (s *ExamSession) AvailableSlots() int {
	slots := s.Capacity - s.BookedCount
	if slots < 0 {
		return 0
	}
	return slots
}

// IsFull reports whether the session has no remaining capacity
func (s *ExamSession) IsFull() bool {
	return s.BookedCount >= s.Capacity
}

// IsPast reports whether the session date has elapsed
func (s *ExamSession) IsPast(now time.Time) bool {
	return s.Date.Before(now)
}
