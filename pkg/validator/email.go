package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyEmail indicates the email address is empty
	ErrEmptyEmail = errors.New("email cannot be empty")

	// ErrEmailFormat indicates the email address is not a valid address
	ErrEmailFormat = errors.New("email address is not valid")

	// ErrEmailLength indicates the email address exceeds the storable length
	ErrEmailLength = errors.New("email address is too long")
)

// emailRegex is deliberately permissive: the remote store is the authority
// on whether the address belongs to a known contact, this only rejects
// obviously malformed input before any network call.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// EmailValidator handles email address validation
type EmailValidator struct{}

// NewEmailValidator creates a new email validator instance
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// Validate validates an email address and returns the sanitized
// (trimmed, lowercased) value
func (v *EmailValidator) Validate(email string) (string, error) {
	sanitized := v.Sanitize(email)

	if sanitized == "" {
		return "", ErrEmptyEmail
	}

	if len(sanitized) > 254 {
		return "", ErrEmailLength
	}

	if !emailRegex.MatchString(sanitized) {
		return "", ErrEmailFormat
	}

	return sanitized, nil
}

// Sanitize trims whitespace and lowercases an email address
func (v *EmailValidator) Sanitize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
