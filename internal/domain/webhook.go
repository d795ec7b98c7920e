/**
 * @description
 * This file defines the Go structs that model incoming webhook payloads from
 * the custody provider. These structures are essential for safely unmarshaling
 * the JSON data received at the webhook endpoint and processing it in a
 * type-safe manner.
 *
 * @notes
 * - Webhooks are treated purely as sync hints. The payload identifies which
 *   customer changed; the authoritative state is always re-read from the
 *   provider's API afterwards.
 */
package domain

import (
	"encoding/json"
	"time"
)

// ProviderWebhookEvent represents the top-level structure of a webhook payload
// from the custody provider.
type ProviderWebhookEvent struct {
	Event     string          `json:"event"` // e.g., "customer.identification.approved"
	Data      EventResource   `json:"data"`
	Included  []EventResource `json:"included,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventResource represents the `data` object within the webhook payload, which
// contains information about the resource that the event pertains to.
type EventResource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"` // e.g., "IndividualCustomer"
	Attributes    map[string]interface{}  `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Relationship captures the nested objects within the `relationships` field.
type Relationship struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// RelationshipData represents the data node inside a relationship.
type RelationshipData struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}
