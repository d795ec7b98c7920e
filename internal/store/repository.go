/**
 * @description
 * This file defines the interfaces for the data access layer (repositories).
 * Defining interfaces allows for dependency injection and easy mocking in tests,
 * promoting a loosely coupled architecture.
 *
 * @notes
 * - Any component that needs to interact with the database should depend on
 *   these interfaces, not on the concrete PostgreSQL implementation.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// ErrCustomerLinkConflict is returned when a caller attempts to overwrite an
// already-set provider customer id with a different one. The id is immutable
// once set.
var ErrCustomerLinkConflict = errors.New("provider customer id already set to a different value")

// SubmissionRepository defines the contract for verification submission storage.
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, sub *domain.VerificationSubmission) (string, error)
	GetSubmission(ctx context.Context, id string) (*domain.VerificationSubmission, error)
	// LatestByUserAndCategory returns the authoritative submission for the
	// category: the most recently created one. Returns pgx.ErrNoRows when the
	// user has never submitted for the category.
	LatestByUserAndCategory(ctx context.Context, userID string, category domain.SubmissionCategory) (*domain.VerificationSubmission, error)
	ListByUser(ctx context.Context, userID string) ([]domain.VerificationSubmission, error)
	UpdateReview(ctx context.Context, id string, status domain.SubmissionStatus, reason *string) error
	DeleteSubmission(ctx context.Context, id string) error
}

// UserRepository defines the contract for user profile and customer link storage.
type UserRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	FindUserIDByProviderCustomerID(ctx context.Context, providerCustomerID string) (string, error)
	// LinkProviderCustomer persists the customer id (and agreement id if
	// non-empty) for a user. It is a no-op when the same id is already linked
	// and fails with ErrCustomerLinkConflict when a different id is.
	LinkProviderCustomer(ctx context.Context, userID, providerCustomerID, agreementID string) error
	UpdateAgreementID(ctx context.Context, userID, agreementID string) error
	UpdateVerificationState(ctx context.Context, userID string, state domain.VerificationStateUpdate) error
	SetResourcesProvisioned(ctx context.Context, userID string, provisioned bool) error
	ListSyncCandidates(ctx context.Context, limit int) ([]domain.SyncCandidate, error)
}

// ResourceRepository defines the contract for provisioned resource storage.
type ResourceRepository interface {
	FindResource(ctx context.Context, userID string, kind domain.ResourceKind, currency string) (*domain.ProvisionedResource, error)
	CreateResource(ctx context.Context, res *domain.ProvisionedResource) (string, error)
	ListByUser(ctx context.Context, userID string) ([]domain.ProvisionedResource, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// StatusCache is a read-through TTL cache over the derived verification
// status, invalidated on every sync write. It is never the authoritative copy
// of any idempotency state.
type StatusCache interface {
	Get(ctx context.Context, userID string) (*domain.CachedVerificationStatus, error)
	Set(ctx context.Context, userID string, status *domain.CachedVerificationStatus, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}
