/**
 * @description
 * The status synchronizer: reconciles the locally cached verification status
 * against the provider's current view, derives a canonical status from the
 * provider's heterogeneous response shapes, and triggers account provisioning
 * on the transition into approved.
 *
 * @notes
 * - deriveCanonicalStatus is the one auditable place the precedence rules
 *   live: explicit status field > account-status-plus-endorsement inference >
 *   endorsement-only inference.
 * - Status truth and resource provisioning are decoupled: a provisioner
 *   failure never rolls back the status write. Because the transition is only
 *   observed once, retries are gated on the resources_provisioned flag, not
 *   on re-observing the transition.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/internal/store"
)

// ErrNoProviderCustomer is returned when a sync is requested for a user who
// has no provider customer record yet.
var ErrNoProviderCustomer = errors.New("user has no provider customer to sync")

// ResourceProvisioner triggers post-approval resource creation. Implemented
// by *Provisioner.
type ResourceProvisioner interface {
	Provision(ctx context.Context, userID, providerCustomerID string) (bool, error)
}

// Synchronizer reconciles local verification state with the provider.
type Synchronizer struct {
	users       store.UserRepository
	gateway     ProviderGateway
	provisioner ResourceProvisioner
	cache       store.StatusCache
	publisher   EventPublisher
	cacheTTL    time.Duration
}

// NewSynchronizer creates a new Synchronizer.
func NewSynchronizer(users store.UserRepository, gateway ProviderGateway, provisioner ResourceProvisioner, cache store.StatusCache, publisher EventPublisher, cacheTTL time.Duration) *Synchronizer {
	return &Synchronizer{
		users:       users,
		gateway:     gateway,
		provisioner: provisioner,
		cache:       cache,
		publisher:   publisher,
		cacheTTL:    cacheTTL,
	}
}

// SyncResult reports what one reconciliation pass observed and did.
type SyncResult struct {
	Status       domain.KYCStatus `json:"status"`
	Transitioned bool             `json:"transitioned"`
	Provisioned  bool             `json:"provisioned"`
}

// Sync pulls the provider's view for one user, persists the derived status
// and triggers provisioning when warranted. Safe to call arbitrarily often,
// including concurrently with a webhook-triggered sync for the same user.
func (s *Synchronizer) Sync(ctx context.Context, userID string) (*SyncResult, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for user %s: %w", userID, err)
	}
	if !profile.HasProviderCustomer() {
		return nil, ErrNoProviderCustomer
	}
	customerID := *profile.ProviderCustomerID

	view, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		// Failed-but-possibly-changed-upstream: defer to the next pass.
		return nil, fmt.Errorf("failed to fetch provider customer %s: %w", customerID, err)
	}

	derived := deriveCanonicalStatus(view.Data.Attributes)
	previous := profile.ExternalKYCStatus

	endorsements, err := json.Marshal(view.Data.Attributes.Endorsements)
	if err != nil {
		endorsements = nil
	}
	now := time.Now().UTC()
	update := domain.VerificationStateUpdate{
		Status:           derived,
		RejectionReasons: view.Data.Attributes.RejectionReasons,
		Endorsements:     endorsements,
		SyncedAt:         now,
	}
	if err := s.users.UpdateVerificationState(ctx, userID, update); err != nil {
		return nil, fmt.Errorf("failed to persist verification state for user %s: %w", userID, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			log.Printf("Warning: failed to invalidate status cache for user %s: %v", userID, err)
		}
	}

	result := &SyncResult{
		Status:       derived,
		Transitioned: derived == domain.KYCStatusApproved && previous != domain.KYCStatusApproved,
	}

	if result.Transitioned {
		log.Printf("User %s transitioned to approved (was %s)", userID, previous)
		s.publishVerified(ctx, userID, customerID)
	}

	// Provision on the approval transition, and keep retrying on later syncs
	// until the resources are fully provisioned. The transition diff alone
	// cannot drive retries: once approved is stored, it never recurs.
	if derived == domain.KYCStatusApproved && (result.Transitioned || !profile.ResourcesProvisioned) {
		complete, provErr := s.provisioner.Provision(ctx, userID, customerID)
		if provErr != nil {
			// Status truth is already persisted; provisioning failures are
			// retried on the next cycle.
			log.Printf("ERROR: provisioning failed for user %s (retried next sync): %v", userID, provErr)
		}
		result.Provisioned = complete
	}

	return result, nil
}

// SyncByProviderCustomerID resolves the owning user and syncs. Used by
// webhook-triggered syncs, which only carry the provider's id.
func (s *Synchronizer) SyncByProviderCustomerID(ctx context.Context, providerCustomerID string) (*SyncResult, error) {
	userID, err := s.users.FindUserIDByProviderCustomerID(ctx, providerCustomerID)
	if err != nil {
		return nil, fmt.Errorf("no user linked to provider customer %s: %w", providerCustomerID, err)
	}
	return s.Sync(ctx, userID)
}

// GetStatus serves the cached canonical status view, reading through to the
// profile on a miss.
func (s *Synchronizer) GetStatus(ctx context.Context, userID string) (*domain.CachedVerificationStatus, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, userID); err == nil {
			return cached, nil
		} else if !errors.Is(err, store.ErrCacheMiss) {
			log.Printf("Warning: status cache read failed for user %s: %v", userID, err)
		}
	}

	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for user %s: %w", userID, err)
	}
	status := &domain.CachedVerificationStatus{
		UserID:               userID,
		Status:               profile.ExternalKYCStatus,
		RejectionReasons:     profile.RejectionReasons,
		ResourcesProvisioned: profile.ResourcesProvisioned,
		LastSyncedAt:         profile.LastSyncedAt,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, status, s.cacheTTL); err != nil {
			log.Printf("Warning: failed to fill status cache for user %s: %v", userID, err)
		}
	}
	return status, nil
}

func (s *Synchronizer) publishVerified(ctx context.Context, userID, customerID string) {
	if s.publisher == nil {
		return
	}
	event := domain.CustomerVerifiedEvent{UserID: userID, ProviderCustomerID: customerID}
	if err := s.publisher.Publish(ctx, domain.OnboardingExchange, domain.RoutingKeyCustomerVerified, event); err != nil {
		log.Printf("Warning: failed to publish customer.verified for user %s: %v", userID, err)
	}
}

// deriveCanonicalStatus maps the provider's heterogeneous customer attributes
// to one canonical status. Precedence, in order:
//
//  1. An explicit verification status field, when present.
//  2. The generic account status field combined with endorsement state:
//     "active" counts as approved only when some endorsement is approved.
//  3. Endorsement state alone.
//
// The provider does not guarantee which fields any given response populates,
// so the order must be deterministic.
func deriveCanonicalStatus(attrs domain.CustomerViewAttributes) domain.KYCStatus {
	if explicit := strings.TrimSpace(attrs.VerificationStatus); explicit != "" {
		return mapExplicitStatus(explicit)
	}

	approved := hasApprovedEndorsement(attrs.Endorsements)

	if generic := strings.ToLower(strings.TrimSpace(attrs.Status)); generic != "" {
		switch generic {
		case "active":
			// "active" means the account shell exists, not that verification
			// passed. Only an approved endorsement upgrades it.
			if approved {
				return domain.KYCStatusApproved
			}
			return domain.KYCStatusPending
		case "rejected", "declined", "closed", "suspended":
			return domain.KYCStatusRejected
		case "manual_review", "in_review":
			return domain.KYCStatusManualReview
		default:
			return domain.KYCStatusPending
		}
	}

	if approved {
		return domain.KYCStatusApproved
	}
	return domain.KYCStatusPending
}

func mapExplicitStatus(status string) domain.KYCStatus {
	switch strings.ToLower(status) {
	case "approved", "verified":
		return domain.KYCStatusApproved
	case "rejected", "declined", "failed":
		return domain.KYCStatusRejected
	case "manual_review", "manualreview", "in_review":
		return domain.KYCStatusManualReview
	case "pending", "unverified", "awaiting_documents":
		return domain.KYCStatusPending
	default:
		// Unknown explicit value: the explicit field still wins over
		// inference, but the value itself is unusable.
		log.Printf("Unrecognized explicit provider status %q; treating as pending", status)
		return domain.KYCStatusPending
	}
}

func hasApprovedEndorsement(endorsements []domain.Endorsement) bool {
	for _, e := range endorsements {
		if strings.EqualFold(strings.TrimSpace(e.Status), "approved") {
			return true
		}
	}
	return false
}
