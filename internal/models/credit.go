package models

// CreditBalance is a student's available credits by type. Specific credits
// are usable only for their designated exam type; shared credits cover any
// exam type except mini mocks.
type CreditBalance struct {
	StudentID       string           `json:"student_id"`
	SpecificCredits map[ExamType]int `json:"specific_credits"`
	SharedCredits   int              `json:"shared_credits"`
}

// AvailableFor returns the total credits usable for the given exam type
func (b *CreditBalance) AvailableFor(examType ExamType) int {
	total := b.SpecificCredits[examType]
	if examType.AllowsSharedCredits() {
		total += b.SharedCredits
	}
	return total
}

// Clone returns a deep copy of the balance
func (b *CreditBalance) Clone() *CreditBalance {
	specific := make(map[ExamType]int, len(b.SpecificCredits))
	for k, v := range b.SpecificCredits {
		specific[k] = v
	}
	return &CreditBalance{
		StudentID:       b.StudentID,
		SpecificCredits: specific,
		SharedCredits:   b.SharedCredits,
	}
}

// EligibilityBreakdown itemizes where a student's usable credits come from
type EligibilityBreakdown struct {
	SpecificCredits int  `json:"specific_credits"`
	SharedCredits   int  `json:"shared_credits"`
	SharedUsable    bool `json:"shared_usable"`
}

// EligibilityResult is the outcome of an eligibility check
type EligibilityResult struct {
	Eligible         bool                 `json:"eligible"`
	ExamType         ExamType             `json:"exam_type"`
	AvailableCredits int                  `json:"available_credits"`
	Breakdown        EligibilityBreakdown `json:"breakdown"`
	Message          string               `json:"message,omitempty"`
}

// ConsumeResult reports which bucket a consume drew from and the new balance
type ConsumeResult struct {
	CreditTypeConsumed CreditType     `json:"credit_type_consumed"`
	NewBalance         *CreditBalance `json:"new_balance"`
}
