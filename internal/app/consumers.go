/**
 * @description
 * This file contains the RabbitMQ event handlers for the onboarding service.
 * They bridge the message bus to the orchestrator and the status
 * synchronizer.
 *
 * @notes
 * - Handlers return a boolean indicating whether the message should be
 *   acknowledged. Malformed messages and permanent failures are acked so they
 *   never requeue-loop; transient failures are nacked for redelivery, which
 *   is safe because both downstream operations are idempotent.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/pkg/providerclient"
)

const handlerTimeout = 30 * time.Second

// OnboardingEventHandler processes onboarding and sync events from the bus.
type OnboardingEventHandler struct {
	orchestrator *Orchestrator
	synchronizer *Synchronizer
}

// NewOnboardingEventHandler creates a new OnboardingEventHandler.
func NewOnboardingEventHandler(orchestrator *Orchestrator, synchronizer *Synchronizer) *OnboardingEventHandler {
	return &OnboardingEventHandler{
		orchestrator: orchestrator,
		synchronizer: synchronizer,
	}
}

// HandleOnboardingRequested processes a `customer.onboarding.requested` event
// by running the customer-creation flow. The orchestrator's duplicate guard
// makes redelivery harmless.
func (h *OnboardingEventHandler) HandleOnboardingRequested(body []byte) bool {
	var event domain.OnboardingRequestedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling onboarding.requested event: %v", err)
		return true // Acknowledge: malformed and cannot be retried.
	}
	if event.UserID == "" {
		log.Printf("onboarding.requested event missing user_id; acking")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	result, err := h.orchestrator.CreateCustomer(ctx, CreateCustomerInput{
		UserID:        event.UserID,
		AdminOverride: event.AdminOverride,
		Source:        event.Source,
	})
	if err != nil {
		return h.classifyOnboardingFailure(event.UserID, err)
	}

	if result.AlreadyExisted {
		log.Printf("Onboarding for user %s already satisfied (customer %s)", event.UserID, result.ProviderCustomerID)
	}
	return true
}

// classifyOnboardingFailure decides ack vs requeue for a failed creation.
func (h *OnboardingEventHandler) classifyOnboardingFailure(userID string, err error) bool {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		// Recoverable only by user resubmission; redelivery cannot help.
		log.Printf("ACK after validation failure for user %s: %v", userID, err)
		return true
	}

	var payloadErr *PayloadIncompleteError
	if errors.As(err, &payloadErr) {
		log.Printf("CRITICAL: payload schema gap for user %s (engineering attention required): %v", userID, err)
		return true
	}

	var reconcileErr *ReconciliationRequiredError
	if errors.As(err, &reconcileErr) {
		log.Printf("CRITICAL: reconciliation required for user %s (provider customer %s): %v",
			userID, reconcileErr.ProviderCustomerID, err)
		return true
	}

	if apiErr, ok := providerclient.AsAPIError(err); ok {
		if apiErr.IsAuthError() {
			log.Printf("CRITICAL: provider auth failure for user %s (operator attention required): %v", userID, err)
			return true
		}
		if apiErr.IsTransient() {
			log.Printf("Transient provider failure for user %s; requeueing: %v", userID, err)
			return false
		}
		// Remaining 4xx: permanent client error, requeueing cannot help.
		log.Printf("Non-retriable provider error for user %s (ACK): %v", userID, err)
		return true
	}

	// Network errors, timeouts, local store failures: retry via requeue. The
	// duplicate guard keeps redelivery safe.
	log.Printf("ERROR: onboarding failed for user %s; requeueing: %v", userID, err)
	return false
}

// HandleSyncRequested processes a `customer.sync.requested` event by
// re-reading provider state. Safe to receive arbitrarily often.
func (h *OnboardingEventHandler) HandleSyncRequested(body []byte) bool {
	var event domain.SyncRequestedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling sync.requested event: %v", err)
		return true
	}
	if event.UserID == "" && event.ProviderCustomerID == "" {
		log.Printf("sync.requested event carries neither user_id nor provider_customer_id; acking")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var err error
	if event.UserID != "" {
		_, err = h.synchronizer.Sync(ctx, event.UserID)
	} else {
		_, err = h.synchronizer.SyncByProviderCustomerID(ctx, event.ProviderCustomerID)
	}
	if err != nil {
		if errors.Is(err, ErrNoProviderCustomer) {
			log.Printf("Sync requested for user %s with no provider customer; acking", event.UserID)
			return true
		}
		if errors.Is(err, pgx.ErrNoRows) {
			// No user owns this provider customer. Redelivery cannot create
			// the link, so ack; the cron sweep picks the user up once linked.
			log.Printf("Sync requested for unknown provider customer %s; acking", event.ProviderCustomerID)
			return true
		}
		if apiErr, ok := providerclient.AsAPIError(err); ok && apiErr.IsAuthError() {
			log.Printf("CRITICAL: provider auth failure during sync (operator attention required): %v", err)
			return true
		}
		// Everything else is transient from the bus's point of view: the
		// sync is idempotent, so let redelivery retry it.
		log.Printf("Sync failed (source %s); requeueing: %v", event.Source, err)
		return false
	}
	return true
}
