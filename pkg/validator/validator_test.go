package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStudentIDValidator_Validate(t *testing.T) {
	v := NewStudentIDValidator()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"Valid", "STU1001", "STU1001", nil},
		{"Valid with whitespace", "  STU1001  ", "STU1001", nil},
		{"Empty", "", "", ErrEmptyStudentID},
		{"Whitespace only", "   ", "", ErrEmptyStudentID},
		{"Too short", "AB1", "", ErrStudentIDLength},
		{"Too long", strings.Repeat("A", 33), "", ErrStudentIDLength},
		{"Special characters", "STU-1001", "", ErrStudentIDFormat},
		{"SQL injection attempt", "STU'; --", "", ErrStudentIDFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmailValidator_Validate(t *testing.T) {
	v := NewEmailValidator()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"Valid", "student@example.com", "student@example.com", nil},
		{"Uppercase lowered", "Student@Example.COM", "student@example.com", nil},
		{"Whitespace trimmed", "  student@example.com ", "student@example.com", nil},
		{"Empty", "", "", ErrEmptyEmail},
		{"No at sign", "student.example.com", "", ErrEmailFormat},
		{"No domain dot", "student@example", "", ErrEmailFormat},
		{"Contains space", "stu dent@example.com", "", ErrEmailFormat},
		{"Too long", strings.Repeat("a", 250) + "@x.com", "", ErrEmailLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
