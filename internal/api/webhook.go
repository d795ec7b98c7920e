/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from
 * the custody provider. It acts as the entry point for real-time verification
 * notifications.
 *
 * Key features:
 * - Security: Validates the HMAC signature of incoming webhooks to ensure
 *   authenticity.
 * - Parsing: Decodes the JSON payload into strongly-typed Go structs.
 * - Routing: Every customer-related event is collapsed into a sync request.
 *   Webhook payloads are hints, never truth; the synchronizer re-reads the
 *   provider's API before persisting anything.
 * - Event Publishing: Publishes sync-requested events to RabbitMQ for
 *   decoupled processing by the consumer.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha1, crypto/sha256: For webhook signature validation.
 * - encoding/json: For handling JSON data.
 * - The service's internal packages for domain models and event publishing.
 */
package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/transferhub/onboarding-service/internal/app"
	"github.com/transferhub/onboarding-service/internal/domain"
)

// customerEventPrefixes identify provider events that can change a customer's
// verification state or account set. Anything else is acknowledged and dropped.
var customerEventPrefixes = []string{
	"customer.identification.",
	"customer.created",
	"customer.updated",
	"account.opened",
	"account.initiated",
}

// WebhookHandler processes incoming webhooks from the custody provider.
type WebhookHandler struct {
	publisher       app.EventPublisher
	secret          string
	processedEvents map[string]time.Time
	mutex           sync.Mutex
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(publisher app.EventPublisher, secret string) *WebhookHandler {
	return &WebhookHandler{
		publisher:       publisher,
		secret:          secret,
		processedEvents: make(map[string]time.Time),
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = fmt.Sprintf("req_%d", time.Now().UnixNano())
	}

	// Read the body once for signature validation and again for decoding.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[%s] Error reading webhook body: %v", requestID, err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if !h.isValidSignature(r.Header.Get("x-provider-signature"), body) {
		log.Printf("[%s] Error: Invalid webhook signature", requestID)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.ProviderWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("[%s] Error decoding webhook JSON: %v", requestID, err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if event.Event == "" {
		log.Printf("[%s] Webhook missing event field, acknowledging without action", requestID)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Webhook received"))
		return
	}

	customerID := extractProviderCustomerID(event)
	log.Printf("[%s] Received webhook event: %s for resource ID: %s (provider customer: %s)",
		requestID, event.Event, event.Data.ID, customerID)

	if !isCustomerEvent(event.Event) {
		log.Printf("[%s] Unhandled webhook event type: %s", requestID, event.Event)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Webhook received"))
		return
	}

	if customerID == "" {
		log.Printf("[%s] Customer event %s carried no customer ID, acknowledging without action", requestID, event.Event)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Webhook received"))
		return
	}

	if h.isDuplicateEvent(event.Data.ID, event.Event) {
		log.Printf("[%s] Duplicate event detected and ignored: %s for resource ID: %s", requestID, event.Event, event.Data.ID)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Duplicate event ignored"))
		return
	}

	message := domain.SyncRequestedEvent{
		ProviderCustomerID: customerID,
		Source:             "webhook:" + event.Event,
	}
	if err := h.publisher.Publish(r.Context(), domain.OnboardingExchange, domain.RoutingKeySyncRequested, message); err != nil {
		log.Printf("[%s] Failed to publish sync request: %v", requestID, err)
		http.Error(w, "Internal server error during event processing", http.StatusInternalServerError)
		return
	}
	h.markEventProcessed(event.Data.ID, event.Event)

	log.Printf("[%s] Published sync request for provider customer %s", requestID, customerID)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook received"))
}

func isCustomerEvent(eventType string) bool {
	for _, prefix := range customerEventPrefixes {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}

// extractProviderCustomerID finds the provider customer ID for an event. The
// event's own resource may be the customer, or the customer may be referenced
// through relationships or included resources.
func extractProviderCustomerID(event domain.ProviderWebhookEvent) string {
	if strings.Contains(strings.ToLower(event.Data.Type), "customer") && event.Data.ID != "" {
		return event.Data.ID
	}
	if rel, ok := event.Data.Relationships["customer"]; ok && len(rel.Data) > 0 {
		var single domain.RelationshipData
		if err := json.Unmarshal(rel.Data, &single); err == nil && single.ID != "" {
			return single.ID
		}
		var list []domain.RelationshipData
		if err := json.Unmarshal(rel.Data, &list); err == nil {
			for _, item := range list {
				if item.ID != "" {
					return item.ID
				}
			}
		}
	}
	for _, included := range event.Included {
		if strings.Contains(strings.ToLower(included.Type), "customer") && included.ID != "" {
			return included.ID
		}
	}
	return ""
}

// isValidSignature validates the HMAC signature of the webhook. Providers vary
// in digest and encoding, so sha1/sha256 in base64 and hex are all accepted,
// with or without an algorithm prefix.
func (h *WebhookHandler) isValidSignature(signatureHeader string, body []byte) bool {
	if h.secret == "" {
		log.Println("Warning: PROVIDER_WEBHOOK_SECRET is not set. Skipping signature validation.")
		return true
	}

	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		log.Println("Missing x-provider-signature header")
		return false
	}

	sha1Mac := hmac.New(sha1.New, []byte(h.secret))
	sha1Mac.Write(body)
	sha1Expected := sha1Mac.Sum(nil)
	sha1Base64 := base64.StdEncoding.EncodeToString(sha1Expected)

	sha256Mac := hmac.New(sha256.New, []byte(h.secret))
	sha256Mac.Write(body)
	sha256Expected := sha256Mac.Sum(nil)
	sha256Base64 := base64.StdEncoding.EncodeToString(sha256Expected)
	sha256Hex := hex.EncodeToString(sha256Expected)

	// The header may carry multiple comma-separated signatures.
	for _, part := range strings.Split(header, ",") {
		sig := strings.TrimSpace(part)
		lower := strings.ToLower(sig)

		if strings.HasPrefix(lower, "sha256=") {
			sig = strings.TrimSpace(sig[7:])
		} else if strings.HasPrefix(lower, "sha1=") {
			sig = strings.TrimSpace(sig[5:])
		}

		if sig == sha1Base64 || sig == sha256Base64 || strings.EqualFold(sig, sha256Hex) {
			return true
		}
		if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil {
			if hmac.Equal(decoded, sha1Expected) || hmac.Equal(decoded, sha256Expected) {
				return true
			}
		}
		if decoded, err := hex.DecodeString(sig); err == nil {
			if hmac.Equal(decoded, sha1Expected) || hmac.Equal(decoded, sha256Expected) {
				return true
			}
		}
	}

	log.Printf("Signature mismatch. Provided header: %s", header)
	return false
}

// isDuplicateEvent checks if we've already processed this event recently.
// The event is recorded by markEventProcessed only once the sync request is
// on the bus, so a provider retry after a failed publish is not swallowed.
func (h *WebhookHandler) isDuplicateEvent(eventID, eventType string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	// Clean up old entries to prevent memory leaks.
	cutoff := time.Now().Add(-1 * time.Hour)
	for id, timestamp := range h.processedEvents {
		if timestamp.Before(cutoff) {
			delete(h.processedEvents, id)
		}
	}

	eventKey := fmt.Sprintf("%s:%s", eventID, eventType)
	if timestamp, exists := h.processedEvents[eventKey]; exists {
		if time.Since(timestamp) < 5*time.Minute {
			return true
		}
	}
	return false
}

func (h *WebhookHandler) markEventProcessed(eventID, eventType string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.processedEvents[fmt.Sprintf("%s:%s", eventID, eventType)] = time.Now()
}
