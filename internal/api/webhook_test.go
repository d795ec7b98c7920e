package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/transferhub/onboarding-service/internal/domain"
)

type recordingPublisher struct {
	events []domain.SyncRequestedEvent
	keys   []string
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	if r.err != nil {
		return r.err
	}
	r.keys = append(r.keys, routingKey)
	if event, ok := payload.(domain.SyncRequestedEvent); ok {
		r.events = append(r.events, event)
	}
	return nil
}

const webhookSecret = "whsec_test"

func signSHA1Base64(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signSHA256Hex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func customerEventBody(t *testing.T, eventType, resourceID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": eventType,
		"data": map[string]interface{}{
			"id":   resourceID,
			"type": "IndividualCustomer",
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func postWebhook(handler *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("x-provider-signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookSignatureValidation(t *testing.T) {
	body := customerEventBody(t, "customer.identification.approved", "cus_42")

	tests := []struct {
		name       string
		signature  string
		wantStatus int
	}{
		{
			name:       "sha1 base64 signature accepted",
			signature:  signSHA1Base64(webhookSecret, body),
			wantStatus: http.StatusOK,
		},
		{
			name:       "sha256 hex signature accepted",
			signature:  signSHA256Hex(webhookSecret, body),
			wantStatus: http.StatusOK,
		},
		{
			name:       "sha256 prefixed signature accepted",
			signature:  "sha256=" + signSHA256Hex(webhookSecret, body),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing signature rejected",
			signature:  "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong secret rejected",
			signature:  signSHA1Base64("whsec_other", body),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage signature rejected",
			signature:  "not-a-signature",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewWebhookHandler(&recordingPublisher{}, webhookSecret)
			rec := postWebhook(handler, body, tt.signature)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestWebhookPublishesSyncRequest(t *testing.T) {
	publisher := &recordingPublisher{}
	handler := NewWebhookHandler(publisher, webhookSecret)
	body := customerEventBody(t, "customer.identification.approved", "cus_42")

	rec := postWebhook(handler, body, signSHA1Base64(webhookSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 sync request, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.ProviderCustomerID != "cus_42" {
		t.Fatalf("expected provider customer id cus_42, got %q", event.ProviderCustomerID)
	}
	if publisher.keys[0] != domain.RoutingKeySyncRequested {
		t.Fatalf("expected sync.requested routing key, got %q", publisher.keys[0])
	}
}

func TestWebhookSuppressesDuplicates(t *testing.T) {
	publisher := &recordingPublisher{}
	handler := NewWebhookHandler(publisher, webhookSecret)
	body := customerEventBody(t, "customer.identification.approved", "cus_42")
	signature := signSHA1Base64(webhookSecret, body)

	for i := 0; i < 3; i++ {
		rec := postWebhook(handler, body, signature)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 sync request across duplicate deliveries, got %d", len(publisher.events))
	}
}

func TestWebhookRetryAfterFailedPublishIsNotADuplicate(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	handler := NewWebhookHandler(publisher, webhookSecret)
	body := customerEventBody(t, "customer.identification.approved", "cus_42")
	signature := signSHA1Base64(webhookSecret, body)

	rec := postWebhook(handler, body, signature)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when publish fails, got %d", rec.Code)
	}

	publisher.err = nil
	rec = postWebhook(handler, body, signature)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on provider retry, got %d", rec.Code)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected the retry to publish the sync request, got %d events", len(publisher.events))
	}
}

func TestWebhookIgnoresUnrelatedEvents(t *testing.T) {
	publisher := &recordingPublisher{}
	handler := NewWebhookHandler(publisher, webhookSecret)
	body := customerEventBody(t, "payment.settled", "pay_1")

	rec := postWebhook(handler, body, signSHA1Base64(webhookSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("unrelated events must still be acknowledged, got %d", rec.Code)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no sync requests, got %d", len(publisher.events))
	}
}

func TestWebhookExtractsCustomerFromRelationships(t *testing.T) {
	publisher := &recordingPublisher{}
	handler := NewWebhookHandler(publisher, webhookSecret)

	body, err := json.Marshal(map[string]interface{}{
		"event": "account.opened",
		"data": map[string]interface{}{
			"id":   "acc_1",
			"type": "DepositAccount",
			"relationships": map[string]interface{}{
				"customer": map[string]interface{}{
					"data": map[string]interface{}{"id": "cus_77", "type": "IndividualCustomer"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	rec := postWebhook(handler, body, signSHA1Base64(webhookSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 sync request, got %d", len(publisher.events))
	}
	if publisher.events[0].ProviderCustomerID != "cus_77" {
		t.Fatalf("expected cus_77 from relationships, got %q", publisher.events[0].ProviderCustomerID)
	}
}

func TestWebhookInvalidJSONRejected(t *testing.T) {
	handler := NewWebhookHandler(&recordingPublisher{}, webhookSecret)
	body := []byte("{not json")

	rec := postWebhook(handler, body, signSHA1Base64(webhookSecret, body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
