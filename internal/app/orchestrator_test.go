package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/pkg/providerclient"
)

func orchestratorFixture() (*Orchestrator, *fakeUserRepo, *fakeSubmissionRepo, *fakeGateway) {
	users := newFakeUserRepo()
	submissions := newFakeSubmissionRepo()
	gateway := &fakeGateway{}
	builder := NewPayloadBuilder(submissions, users)
	orch := NewOrchestrator(users, submissions, builder, gateway, nil)
	return orch, users, submissions, gateway
}

func seedReadyUser(users *fakeUserRepo, submissions *fakeSubmissionRepo, userID string) {
	users.profiles[userID] = profileWithoutCustomer(userID)
	submissions.put(approvedSubmission(userID, domain.CategoryIdentity))
	submissions.put(approvedSubmission(userID, domain.CategoryAddress))
}

func TestCreateCustomerHappyPath(t *testing.T) {
	orch, users, submissions, gateway := orchestratorFixture()
	seedReadyUser(users, submissions, "user_1")

	result, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ProviderCustomerID != "cus_123" {
		t.Fatalf("expected cus_123, got %q", result.ProviderCustomerID)
	}
	if result.AlreadyExisted {
		t.Fatal("fresh creation must not report already existed")
	}
	if gateway.createCustomerCalls != 1 {
		t.Fatalf("expected 1 gateway call, got %d", gateway.createCustomerCalls)
	}
	if !users.profiles["user_1"].HasProviderCustomer() {
		t.Fatal("expected customer id persisted on profile")
	}
}

func TestCreateCustomerIsIdempotent(t *testing.T) {
	orch, users, submissions, gateway := orchestratorFixture()
	seedReadyUser(users, submissions, "user_1")

	first, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Replays must short-circuit on the stored link, never reaching the
	// provider again.
	for i := 0; i < 3; i++ {
		result, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1"})
		if err != nil {
			t.Fatalf("replay %d: unexpected error: %v", i, err)
		}
		if !result.AlreadyExisted {
			t.Fatalf("replay %d: expected AlreadyExisted", i)
		}
		if result.ProviderCustomerID != first.ProviderCustomerID {
			t.Fatalf("replay %d: expected same id %q, got %q", i, first.ProviderCustomerID, result.ProviderCustomerID)
		}
	}
	if gateway.createCustomerCalls != 1 {
		t.Fatalf("expected exactly 1 gateway call across replays, got %d", gateway.createCustomerCalls)
	}
}

func TestCreateCustomerBlockedByUnapprovedSubmission(t *testing.T) {
	orch, users, submissions, gateway := orchestratorFixture()
	users.profiles["user_1"] = profileWithoutCustomer("user_1")
	submissions.put(approvedSubmission("user_1", domain.CategoryIdentity))
	pendingAddress := approvedSubmission("user_1", domain.CategoryAddress)
	pendingAddress.Status = domain.SubmissionPending
	submissions.put(pendingAddress)

	_, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1"})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !containsString(validationErr.MissingFields, "address") {
		t.Fatalf("expected address listed as blocking, got %v", validationErr.MissingFields)
	}
	if gateway.createCustomerCalls != 0 {
		t.Fatal("validation failure must prevent the provider call")
	}
}

func TestCreateCustomerAdminOverrideBypassesApprovalGuard(t *testing.T) {
	orch, users, submissions, gateway := orchestratorFixture()
	users.profiles["user_1"] = profileWithoutCustomer("user_1")
	identity := approvedSubmission("user_1", domain.CategoryIdentity)
	identity.Status = domain.SubmissionPending
	submissions.put(identity)
	submissions.put(approvedSubmission("user_1", domain.CategoryAddress))

	result, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1", AdminOverride: true})
	if err != nil {
		t.Fatalf("override should proceed past approval guard, got %v", err)
	}
	if result.ProviderCustomerID == "" {
		t.Fatal("expected a customer id")
	}
	if gateway.createCustomerCalls != 1 {
		t.Fatalf("expected gateway call under override, got %d", gateway.createCustomerCalls)
	}
}

func TestCreateCustomerOverrideCannotFixMissingData(t *testing.T) {
	// Override bypasses the approval guard, not the schema. A submission with
	// no mappable document type still cannot produce a payload.
	orch, users, submissions, gateway := orchestratorFixture()
	users.profiles["user_1"] = profileWithoutCustomer("user_1")
	identity := approvedSubmission("user_1", domain.CategoryIdentity)
	identity.IDDocumentType = "library_card"
	submissions.put(identity)
	submissions.put(approvedSubmission("user_1", domain.CategoryAddress))

	_, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1", AdminOverride: true})
	var payloadErr *PayloadIncompleteError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected *PayloadIncompleteError, got %v", err)
	}
	if gateway.createCustomerCalls != 0 {
		t.Fatal("unmappable payload must never reach the provider")
	}
}

func TestCreateCustomerConflictRecovery(t *testing.T) {
	orch, users, submissions, gateway := orchestratorFixture()
	seedReadyUser(users, submissions, "user_1")
	gateway.createCustomerErr = &providerclient.APIError{
		StatusCode:         http.StatusBadRequest,
		Body:               `{"errors":[{"detail":"customer already exists"}]}`,
		ExistingCustomerID: "cus_recovered",
	}

	result, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1"})
	if err != nil {
		t.Fatalf("conflict with recoverable id must succeed, got %v", err)
	}
	if !result.AlreadyExisted {
		t.Fatal("expected AlreadyExisted after recovery")
	}
	if result.ProviderCustomerID != "cus_recovered" {
		t.Fatalf("expected recovered id, got %q", result.ProviderCustomerID)
	}
	if got := users.profiles["user_1"].ProviderCustomerID; got == nil || *got != "cus_recovered" {
		t.Fatal("expected recovered id persisted on profile")
	}
}

func TestCreateCustomerConflictWithoutIDRequiresReconciliation(t *testing.T) {
	orch, users, submissions, gateway := orchestratorFixture()
	seedReadyUser(users, submissions, "user_1")
	gateway.createCustomerErr = &providerclient.APIError{
		StatusCode: http.StatusConflict,
		Body:       "customer already exists",
	}

	_, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1"})
	var reconcileErr *ReconciliationRequiredError
	if !errors.As(err, &reconcileErr) {
		t.Fatalf("expected *ReconciliationRequiredError, got %v", err)
	}
}

func TestCreateCustomerLinkWriteFailureRequiresReconciliation(t *testing.T) {
	orch, users, submissions, _ := orchestratorFixture()
	seedReadyUser(users, submissions, "user_1")
	users.linkErr = errors.New("connection reset")

	_, err := orch.CreateCustomer(context.Background(), CreateCustomerInput{UserID: "user_1"})
	var reconcileErr *ReconciliationRequiredError
	if !errors.As(err, &reconcileErr) {
		t.Fatalf("expected *ReconciliationRequiredError, got %v", err)
	}
	if reconcileErr.ProviderCustomerID != "cus_123" {
		t.Fatalf("the external id must be carried in the error, got %q", reconcileErr.ProviderCustomerID)
	}
}

func TestRequestTermsLink(t *testing.T) {
	t.Run("agreement on file short-circuits", func(t *testing.T) {
		orch, users, _, _ := orchestratorFixture()
		profile := profileWithoutCustomer("user_1")
		agreement := "agr_1"
		profile.ProviderAgreementID = &agreement
		users.profiles["user_1"] = profile

		_, err := orch.RequestTermsLink(context.Background(), "user_1")
		if !errors.Is(err, ErrAgreementOnFile) {
			t.Fatalf("expected ErrAgreementOnFile, got %v", err)
		}
	})

	t.Run("standalone link before customer exists", func(t *testing.T) {
		orch, users, _, _ := orchestratorFixture()
		users.profiles["user_1"] = profileWithoutCustomer("user_1")

		link, err := orch.RequestTermsLink(context.Background(), "user_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if link.ID != "link_1" {
			t.Fatalf("expected standalone link, got %q", link.ID)
		}
	})

	t.Run("customer-scoped link once customer exists", func(t *testing.T) {
		orch, users, _, _ := orchestratorFixture()
		profile := profileWithoutCustomer("user_1")
		customerID := "cus_42"
		profile.ProviderCustomerID = &customerID
		users.profiles["user_1"] = profile

		link, err := orch.RequestTermsLink(context.Background(), "user_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if link.ID != "link_scoped" {
			t.Fatalf("expected customer-scoped link, got %q", link.ID)
		}
	})
}

func TestConfirmAgreement(t *testing.T) {
	t.Run("unsigned link records nothing", func(t *testing.T) {
		orch, users, _, gateway := orchestratorFixture()
		users.profiles["user_1"] = profileWithoutCustomer("user_1")
		gateway.agreement = &domain.AgreementStatus{LinkID: "link_1", Signed: false}

		status, err := orch.ConfirmAgreement(context.Background(), "user_1", "link_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status.Signed {
			t.Fatal("expected unsigned status")
		}
		if users.profiles["user_1"].ProviderAgreementID != nil {
			t.Fatal("unsigned agreement must not be recorded")
		}
	})

	t.Run("signed agreement is recorded and attached", func(t *testing.T) {
		orch, users, _, gateway := orchestratorFixture()
		profile := profileWithoutCustomer("user_1")
		customerID := "cus_42"
		profile.ProviderCustomerID = &customerID
		users.profiles["user_1"] = profile
		gateway.agreement = &domain.AgreementStatus{LinkID: "link_1", Signed: true, AgreementID: "agr_9"}

		status, err := orch.ConfirmAgreement(context.Background(), "user_1", "link_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !status.Signed {
			t.Fatal("expected signed status")
		}
		if got := users.profiles["user_1"].ProviderAgreementID; got == nil || *got != "agr_9" {
			t.Fatal("expected agreement recorded on profile")
		}
		if !containsString(gateway.attachedAgreements, "agr_9") {
			t.Fatal("expected agreement attached to the provider customer")
		}
	})
}
