package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/crm"
	"github.com/clinprep/exam-booking-backend/internal/models"
)

// AssociationResolver resolves the relationships between a booking and its
// owning contact, and between a booking and its exam session. Different
// association endpoint versions return far-end identities as numbers or as
// strings; every comparison here happens on the canonical string form, so
// an ownership check never fails (or falsely passes) on a type mismatch.
type AssociationResolver struct {
	batch       *crm.BatchClient
	sessionRepo *crm.SessionRepository
	logger      *logrus.Logger
}

// NewAssociationResolver creates a new association resolver
func NewAssociationResolver(batch *crm.BatchClient, sessionRepo *crm.SessionRepository, logger *logrus.Logger) *AssociationResolver {
	return &AssociationResolver{
		batch:       batch,
		sessionRepo: sessionRepo,
		logger:      logger,
	}
}

// ResolveOwner returns the contact identity owning a booking. Returns
// models.ErrNotFound when the booking has no owning association.
func (r *AssociationResolver) ResolveOwner(ctx context.Context, bookingID string) (string, error) {
	edges, _, err := r.batch.ReadAssociations(ctx, models.ObjectTypeBooking, []string{bookingID}, models.ObjectTypeContact)
	if err != nil {
		return "", fmt.Errorf("failed to read owner association: %w", err)
	}
	if len(edges) == 0 {
		return "", fmt.Errorf("owner of booking %s: %w", bookingID, models.ErrNotFound)
	}

	return edges[0].ToID.String(), nil
}

// VerifyOwnership reports whether claimedContactID owns the booking. The
// claimed identity typically arrives as a string from the auth step while
// the association endpoint may return a native number; both sides are
// canonicalized before comparison. An absent association means "cannot
// verify" and is reported as not owned, never as implicitly authorized.
func (r *AssociationResolver) VerifyOwnership(ctx context.Context, bookingID, claimedContactID string) (bool, error) {
	edges, failures, err := r.batch.ReadAssociations(ctx, models.ObjectTypeBooking, []string{bookingID}, models.ObjectTypeContact)
	if err != nil {
		return false, fmt.Errorf("failed to read owner associations: %w", err)
	}
	if len(failures) > 0 {
		// A partial read cannot prove non-ownership; deny rather than guess
		return false, fmt.Errorf("%w: ownership read incomplete", models.ErrUpstreamUnavailable)
	}

	claimed := models.CanonicalID(claimedContactID)
	for _, edge := range edges {
		if edge.ToID.Equals(claimed) {
			return true, nil
		}
	}

	if len(edges) == 0 {
		r.logger.WithField("booking_id", bookingID).Warn("Booking has no owner association")
	}

	return false, nil
}

// ResolveSession returns the exam session a booking is for, or
// models.ErrNotFound when the booking has no session association.
func (r *AssociationResolver) ResolveSession(ctx context.Context, bookingID string) (*models.ExamSession, error) {
	edges, _, err := r.batch.ReadAssociations(ctx, models.ObjectTypeBooking, []string{bookingID}, models.ObjectTypeExamSession)
	if err != nil {
		return nil, fmt.Errorf("failed to read session association: %w", err)
	}
	if len(edges) == 0 {
		return nil, fmt.Errorf("session of booking %s: %w", bookingID, models.ErrNotFound)
	}

	return r.sessionRepo.GetByID(ctx, edges[0].ToID.String())
}
