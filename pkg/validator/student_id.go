package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyStudentID indicates the student ID is empty
	ErrEmptyStudentID = errors.New("student ID cannot be empty")

	// ErrStudentIDFormat indicates the student ID contains invalid characters
	ErrStudentIDFormat = errors.New("student ID can only contain letters and digits")

	// ErrStudentIDLength indicates the student ID length is out of range
	ErrStudentIDLength = errors.New("student ID must be between 4 and 32 characters")
)

// studentIDRegex matches alphanumeric characters only
var studentIDRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// StudentIDValidator handles student identifier validation
type StudentIDValidator struct{}

// NewStudentIDValidator creates a new student ID validator instance
func NewStudentIDValidator() *StudentIDValidator {
	return &StudentIDValidator{}
}

// Validate validates a student identifier. Accepts surrounding whitespace
// and returns the sanitized value. Validation happens before any remote
// call is made.
func (v *StudentIDValidator) Validate(studentID string) (string, error) {
	sanitized := v.Sanitize(studentID)

	if sanitized == "" {
		return "", ErrEmptyStudentID
	}

	if len(sanitized) < 4 || len(sanitized) > 32 {
		return "", ErrStudentIDLength
	}

	if !studentIDRegex.MatchString(sanitized) {
		return "", ErrStudentIDFormat
	}

	return sanitized, nil
}

// Sanitize strips surrounding whitespace from a student identifier
func (v *StudentIDValidator) Sanitize(studentID string) string {
	return strings.TrimSpace(studentID)
}
