package app

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/pkg/providerclient"
)

func handlerFixture() (*OnboardingEventHandler, *fakeUserRepo, *fakeSubmissionRepo, *fakeGateway) {
	users := newFakeUserRepo()
	submissions := newFakeSubmissionRepo()
	gateway := &fakeGateway{}
	builder := NewPayloadBuilder(submissions, users)
	orch := NewOrchestrator(users, submissions, builder, gateway, nil)
	sync := NewSynchronizer(users, gateway, &fakeProvisioner{complete: true}, nil, nil, time.Minute)
	return NewOnboardingEventHandler(orch, sync), users, submissions, gateway
}

func onboardingEvent(t *testing.T, userID string) []byte {
	t.Helper()
	body, err := json.Marshal(domain.OnboardingRequestedEvent{UserID: userID})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestHandleOnboardingRequested(t *testing.T) {
	t.Run("malformed message is acked", func(t *testing.T) {
		h, _, _, _ := handlerFixture()
		if !h.HandleOnboardingRequested([]byte("{not json")) {
			t.Fatal("malformed messages must be acked, not requeued")
		}
	})

	t.Run("missing user id is acked", func(t *testing.T) {
		h, _, _, _ := handlerFixture()
		if !h.HandleOnboardingRequested([]byte(`{}`)) {
			t.Fatal("expected ack")
		}
	})

	t.Run("successful creation is acked", func(t *testing.T) {
		h, users, submissions, gateway := handlerFixture()
		seedReadyUser(users, submissions, "user_1")
		if !h.HandleOnboardingRequested(onboardingEvent(t, "user_1")) {
			t.Fatal("expected ack on success")
		}
		if gateway.createCustomerCalls != 1 {
			t.Fatalf("expected 1 creation, got %d", gateway.createCustomerCalls)
		}
	})

	t.Run("redelivery after success is a harmless ack", func(t *testing.T) {
		h, users, submissions, gateway := handlerFixture()
		seedReadyUser(users, submissions, "user_1")
		body := onboardingEvent(t, "user_1")
		h.HandleOnboardingRequested(body)
		if !h.HandleOnboardingRequested(body) {
			t.Fatal("expected ack on redelivery")
		}
		if gateway.createCustomerCalls != 1 {
			t.Fatalf("redelivery must not create again, got %d calls", gateway.createCustomerCalls)
		}
	})

	t.Run("validation failure is acked", func(t *testing.T) {
		h, users, _, _ := handlerFixture()
		users.profiles["user_1"] = profileWithoutCustomer("user_1")
		// No submissions: validation fails; only resubmission can fix it.
		if !h.HandleOnboardingRequested(onboardingEvent(t, "user_1")) {
			t.Fatal("validation failures must be acked")
		}
	})

	t.Run("transient provider failure is requeued", func(t *testing.T) {
		h, users, submissions, gateway := handlerFixture()
		seedReadyUser(users, submissions, "user_1")
		gateway.createCustomerErr = &providerclient.APIError{StatusCode: http.StatusServiceUnavailable, Body: "upstream down"}
		if h.HandleOnboardingRequested(onboardingEvent(t, "user_1")) {
			t.Fatal("transient failures must be requeued")
		}
	})

	t.Run("auth failure is acked", func(t *testing.T) {
		h, users, submissions, gateway := handlerFixture()
		seedReadyUser(users, submissions, "user_1")
		gateway.createCustomerErr = &providerclient.APIError{StatusCode: http.StatusUnauthorized, Body: "bad key"}
		if !h.HandleOnboardingRequested(onboardingEvent(t, "user_1")) {
			t.Fatal("auth failures cannot be fixed by redelivery; must be acked")
		}
	})

	t.Run("permanent client error is acked", func(t *testing.T) {
		h, users, submissions, gateway := handlerFixture()
		seedReadyUser(users, submissions, "user_1")
		gateway.createCustomerErr = &providerclient.APIError{StatusCode: http.StatusUnprocessableEntity, Body: "invalid dob"}
		if !h.HandleOnboardingRequested(onboardingEvent(t, "user_1")) {
			t.Fatal("permanent 4xx must be acked")
		}
	})
}

func TestHandleSyncRequested(t *testing.T) {
	t.Run("malformed message is acked", func(t *testing.T) {
		h, _, _, _ := handlerFixture()
		if !h.HandleSyncRequested([]byte("{not json")) {
			t.Fatal("expected ack")
		}
	})

	t.Run("empty event is acked", func(t *testing.T) {
		h, _, _, _ := handlerFixture()
		if !h.HandleSyncRequested([]byte(`{}`)) {
			t.Fatal("expected ack")
		}
	})

	t.Run("user without provider customer is acked", func(t *testing.T) {
		h, users, _, _ := handlerFixture()
		users.profiles["user_1"] = profileWithoutCustomer("user_1")
		if !h.HandleSyncRequested([]byte(`{"user_id":"user_1"}`)) {
			t.Fatal("nothing to sync; expected ack")
		}
	})

	t.Run("sync by provider customer id", func(t *testing.T) {
		h, users, _, gateway := handlerFixture()
		customerID := "cus_42"
		users.profiles["user_1"] = &domain.UserProfile{
			ID:                 "user_1",
			ProviderCustomerID: &customerID,
			ExternalKYCStatus:  domain.KYCStatusPending,
		}
		gateway.getCustomerView = approvedCustomerView("cus_42")
		if !h.HandleSyncRequested([]byte(`{"provider_customer_id":"cus_42"}`)) {
			t.Fatal("expected ack on successful sync")
		}
		if users.profiles["user_1"].ExternalKYCStatus != domain.KYCStatusApproved {
			t.Fatal("expected status updated via webhook-shaped sync")
		}
	})

	t.Run("unknown provider customer is acked", func(t *testing.T) {
		h, _, _, _ := handlerFixture()
		body := []byte(`{"provider_customer_id":"cus_never_linked"}`)
		for i := 0; i < 3; i++ {
			if !h.HandleSyncRequested(body) {
				t.Fatalf("delivery %d: unlinked provider customers must be acked, not requeued", i)
			}
		}
	})

	t.Run("provider fetch failure is requeued", func(t *testing.T) {
		h, users, _, gateway := handlerFixture()
		customerID := "cus_42"
		users.profiles["user_1"] = &domain.UserProfile{ID: "user_1", ProviderCustomerID: &customerID}
		gateway.getCustomerErr = &providerclient.APIError{StatusCode: http.StatusInternalServerError, Body: "oops"}
		if h.HandleSyncRequested([]byte(`{"user_id":"user_1"}`)) {
			t.Fatal("transient sync failures must be requeued")
		}
	})
}
