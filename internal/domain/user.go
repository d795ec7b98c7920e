/**
 * @description
 * This file defines the user profile aggregate as seen by the onboarding
 * service, including the link to the external provider customer record.
 *
 * @notes
 * - ProviderCustomerID, once set, is never overwritten with a different id.
 *   It is the idempotency anchor for every duplicate-creation guard in the
 *   service.
 */
package domain

import (
	"encoding/json"
	"time"
)

// KYCStatus is the canonical internal verification status derived from the
// provider's heterogeneous response shapes.
type KYCStatus string

const (
	KYCStatusUnknown      KYCStatus = "unknown"
	KYCStatusPending      KYCStatus = "pending"
	KYCStatusManualReview KYCStatus = "manual_review"
	KYCStatusApproved     KYCStatus = "approved"
	KYCStatusRejected     KYCStatus = "rejected"
)

// UserProfile is the long-lived aggregate root. Submissions, the provider
// customer link and provisioned resources are all addressed through its id.
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	// External customer link. Nullable until the orchestrator creates the
	// provider customer / the user signs the service agreement.
	ProviderCustomerID  *string `json:"provider_customer_id,omitempty"`
	ProviderAgreementID *string `json:"provider_agreement_id,omitempty"`

	ExternalKYCStatus    KYCStatus       `json:"external_kyc_status"`
	RejectionReasons     []string        `json:"rejection_reasons,omitempty"`
	Endorsements         json.RawMessage `json:"endorsements,omitempty"`
	ResourcesProvisioned bool            `json:"resources_provisioned"`
	LastSyncedAt         *time.Time      `json:"last_synced_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasProviderCustomer reports whether a provider customer record exists.
func (u *UserProfile) HasProviderCustomer() bool {
	return u.ProviderCustomerID != nil && *u.ProviderCustomerID != ""
}

// SyncCandidate is a minimal projection used by the periodic reconciliation
// job to pick users whose provider state still needs polling.
type SyncCandidate struct {
	UserID             string
	ProviderCustomerID string
	ExternalKYCStatus  KYCStatus
}

// VerificationStateUpdate is one atomic write of provider-derived state onto
// the user profile, performed by the status synchronizer.
type VerificationStateUpdate struct {
	Status           KYCStatus
	RejectionReasons []string
	Endorsements     json.RawMessage
	SyncedAt         time.Time
}

// CachedVerificationStatus is the read-model served from the status cache.
type CachedVerificationStatus struct {
	UserID               string     `json:"user_id"`
	Status               KYCStatus  `json:"status"`
	RejectionReasons     []string   `json:"rejection_reasons,omitempty"`
	ResourcesProvisioned bool       `json:"resources_provisioned"`
	LastSyncedAt         *time.Time `json:"last_synced_at,omitempty"`
}
