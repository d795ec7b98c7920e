/**
 * @description
 * Submission lifecycle logic: ingestion from the upload layer, admin review
 * decisions, and the administrative purge. Review approvals are what kick off
 * onboarding, by publishing an event once both categories have passed.
 *
 * @notes
 * - Review never touches the external KYC status. Once a provider customer
 *   exists, provider-derived status is authoritative; a rejected-then-
 *   resubmitted-then-approved submission cannot downgrade it.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/internal/store"
)

// ErrPurgeBlocked is returned when an administrative purge is refused because
// dependent resources already exist for the user.
var ErrPurgeBlocked = errors.New("cannot purge submission: provisioned resources exist for user")

// SubmissionService handles submission ingestion and review.
type SubmissionService struct {
	submissions store.SubmissionRepository
	resources   store.ResourceRepository
	publisher   EventPublisher
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(submissions store.SubmissionRepository, resources store.ResourceRepository, publisher EventPublisher) *SubmissionService {
	return &SubmissionService{
		submissions: submissions,
		resources:   resources,
		publisher:   publisher,
	}
}

// Ingest persists a new submission from the upload layer. File storage and
// signing are the caller's responsibility; the core only consumes the record.
func (s *SubmissionService) Ingest(ctx context.Context, sub *domain.VerificationSubmission) (*domain.VerificationSubmission, error) {
	if sub.UserID == "" {
		return nil, fmt.Errorf("submission requires a user id")
	}
	switch sub.Category {
	case domain.CategoryIdentity, domain.CategoryAddress:
	default:
		return nil, fmt.Errorf("unknown submission category %q", sub.Category)
	}
	if sub.DocumentRef == "" {
		return nil, fmt.Errorf("submission requires a document reference")
	}

	sub.Status = domain.SubmissionPending
	id, err := s.submissions.CreateSubmission(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to persist submission: %w", err)
	}
	sub.ID = id
	sub.CreatedAt = time.Now().UTC()
	log.Printf("Ingested %s submission %s for user %s", sub.Category, id, sub.UserID)
	return sub, nil
}

// Review applies an admin decision to a submission. On an approval that
// completes the pair, an onboarding-requested event is published so the
// orchestrator picks the user up.
func (s *SubmissionService) Review(ctx context.Context, submissionID string, action domain.ReviewAction, reason string) error {
	sub, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("submission %s not found: %w", submissionID, err)
	}

	var status domain.SubmissionStatus
	var reasonPtr *string
	switch action {
	case domain.ReviewApprove:
		status = domain.SubmissionApproved
	case domain.ReviewReject:
		if reason == "" {
			return fmt.Errorf("rejection requires a reason")
		}
		status = domain.SubmissionRejected
		reasonPtr = &reason
	case domain.ReviewReset:
		status = domain.SubmissionInReview
	default:
		return fmt.Errorf("unknown review action %q", action)
	}

	if err := s.submissions.UpdateReview(ctx, submissionID, status, reasonPtr); err != nil {
		return fmt.Errorf("failed to apply review to submission %s: %w", submissionID, err)
	}
	log.Printf("Submission %s for user %s reviewed: %s", submissionID, sub.UserID, status)

	if status == domain.SubmissionApproved && s.bothApproved(ctx, sub.UserID) {
		s.publishOnboardingRequested(ctx, sub.UserID)
	}
	return nil
}

// List returns all submissions belonging to a user, newest first.
func (s *SubmissionService) List(ctx context.Context, userID string) ([]domain.VerificationSubmission, error) {
	return s.submissions.ListByUser(ctx, userID)
}

// Purge hard-deletes a submission. Refused once the user has provisioned
// resources, since the submission is then part of the compliance trail for
// live financial accounts.
func (s *SubmissionService) Purge(ctx context.Context, submissionID string) error {
	sub, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("submission %s not found: %w", submissionID, err)
	}

	count, err := s.resources.CountByUser(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("failed to check resources for user %s: %w", sub.UserID, err)
	}
	if count > 0 {
		return ErrPurgeBlocked
	}

	if err := s.submissions.DeleteSubmission(ctx, submissionID); err != nil {
		return fmt.Errorf("failed to purge submission %s: %w", submissionID, err)
	}
	log.Printf("Purged submission %s for user %s", submissionID, sub.UserID)
	return nil
}

func (s *SubmissionService) bothApproved(ctx context.Context, userID string) bool {
	for _, category := range []domain.SubmissionCategory{domain.CategoryIdentity, domain.CategoryAddress} {
		sub, err := s.submissions.LatestByUserAndCategory(ctx, userID, category)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				log.Printf("Error checking %s submission for user %s: %v", category, userID, err)
			}
			return false
		}
		if sub.Status != domain.SubmissionApproved {
			return false
		}
	}
	return true
}

func (s *SubmissionService) publishOnboardingRequested(ctx context.Context, userID string) {
	if s.publisher == nil {
		return
	}
	event := domain.OnboardingRequestedEvent{UserID: userID, Source: "review"}
	if err := s.publisher.Publish(ctx, domain.OnboardingExchange, domain.RoutingKeyOnboardingRequested, event); err != nil {
		log.Printf("ERROR: failed to publish onboarding.requested for user %s: %v", userID, err)
		return
	}
	log.Printf("Both submissions approved for user %s; onboarding requested", userID)
}
