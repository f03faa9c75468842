package crm

import (
	"context"
	"fmt"
	"strconv"

	"github.com/clinprep/exam-booking-backend/internal/models"
)

// Contact is the slice of a remote contact this subsystem cares about
type Contact struct {
	ID        string
	StudentID string
	Email     string
	Balance   models.CreditBalance
}

// contactProperties are the contact fields read on every lookup
var contactProperties = []string{
	"student_id", "email",
	"sjt_credits", "cs_credits", "mm_credits", "shared_credits",
}

// ContactRepository reads and mutates contact objects in the remote store
type ContactRepository struct {
	client *Client
	batch  *BatchClient
}

// NewContactRepository creates a new contact repository
func NewContactRepository(client *Client, batch *BatchClient) *ContactRepository {
	return &ContactRepository{client: client, batch: batch}
}

// FindByStudentID looks a contact up by its student identifier. Returns
// models.ErrNotFound when no contact matches.
func (r *ContactRepository) FindByStudentID(ctx context.Context, studentID string) (*Contact, error) {
	results, err := r.client.SearchObjects(ctx, models.ObjectTypeContact, []Filter{
		{PropertyName: "student_id", Operator: "EQ", Value: studentID},
	}, contactProperties, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to search contact: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("contact for student %s: %w", studentID, models.ErrNotFound)
	}

	return contactFromObject(results[0]), nil
}

// GetByID reads a contact by its remote identity
func (r *ContactRepository) GetByID(ctx context.Context, contactID string) (*Contact, error) {
	objects, _, err := r.batch.ReadObjects(ctx, models.ObjectTypeContact, []string{contactID}, contactProperties)
	if err != nil {
		return nil, fmt.Errorf("failed to read contact: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("contact %s: %w", contactID, models.ErrNotFound)
	}

	return contactFromObject(objects[0]), nil
}

// UpdateCreditProperty writes one credit bucket back to the contact
func (r *ContactRepository) UpdateCreditProperty(ctx context.Context, contactID, property string, value int) error {
	_, failures, err := r.batch.UpdateObjects(ctx, models.ObjectTypeContact, []ObjectInput{
		{ID: contactID, Properties: map[string]string{property: strconv.Itoa(value)}},
	})
	if err != nil {
		return fmt.Errorf("failed to update contact credits: %w", err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to update contact credits: %v", failures[0].Err)
	}
	return nil
}

func contactFromObject(obj Object) *Contact {
	props := obj.Properties
	return &Contact{
		ID:        obj.ID.String(),
		StudentID: props["student_id"],
		Email:     props["email"],
		Balance: models.CreditBalance{
			StudentID: props["student_id"],
			SpecificCredits: map[models.ExamType]int{
				models.ExamTypeSituationalJudgment: parseCount(props["sjt_credits"]),
				models.ExamTypeClinicalSkills:      parseCount(props["cs_credits"]),
				models.ExamTypeMiniMock:            parseCount(props["mm_credits"]),
			},
			SharedCredits: parseCount(props["shared_credits"]),
		},
	}
}

// parseCount parses a numeric property, treating absent or malformed
// values as zero. Balances are never negative.
func parseCount(value string) int {
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
