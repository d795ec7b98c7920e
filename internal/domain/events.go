/**
 * @description
 * This file defines the event payloads exchanged over RabbitMQ between the
 * webhook handler, the onboarding orchestrator and the status synchronizer.
 *
 * @notes
 * - These structures act as a contract for messages passed through RabbitMQ.
 *   Producers and consumers must agree on them.
 */
package domain

// Exchange and routing keys for onboarding events.
const (
	OnboardingExchange = "onboarding_events"

	RoutingKeyOnboardingRequested = "customer.onboarding.requested"
	RoutingKeySyncRequested       = "customer.sync.requested"
	RoutingKeyCustomerVerified    = "customer.verified"
)

// OnboardingRequestedEvent asks the orchestrator to create a provider customer
// for a user. Published when both submissions pass review, or by the
// administrative override channel.
type OnboardingRequestedEvent struct {
	UserID        string `json:"user_id"`
	AdminOverride bool   `json:"admin_override,omitempty"`
	Source        string `json:"source,omitempty"`
}

// SyncRequestedEvent asks the synchronizer to re-read provider state for a
// user. Either UserID or ProviderCustomerID may be set; the consumer resolves
// the other. Safe to publish arbitrarily often.
type SyncRequestedEvent struct {
	UserID             string `json:"user_id,omitempty"`
	ProviderCustomerID string `json:"provider_customer_id,omitempty"`
	Source             string `json:"source,omitempty"`
}

// CustomerVerifiedEvent is published when a user's derived status transitions
// into approved, for downstream consumers such as notification delivery.
type CustomerVerifiedEvent struct {
	UserID             string `json:"user_id"`
	ProviderCustomerID string `json:"provider_customer_id"`
}
