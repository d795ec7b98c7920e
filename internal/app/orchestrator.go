/**
 * @description
 * The onboarding orchestrator: coordinates validation, payload building, the
 * provider gateway and profile writes to move a user through
 * NoCustomer -> CustomerCreationInFlight -> CustomerCreated, with the
 * terms-of-service sub-flow layered on top.
 *
 * @notes
 * - The single most important correctness property lives here: before any
 *   createCustomer call, an already-linked provider customer id short-circuits
 *   the request into an idempotent no-op returning the existing id.
 * - No transaction spans the local store and the provider. A successful
 *   external creation whose local write fails surfaces as a
 *   ReconciliationRequiredError; the external id is logged and never lost.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/internal/store"
	"github.com/transferhub/onboarding-service/pkg/providerclient"
)

// ErrAgreementOnFile is returned when a terms link is requested for a user
// whose agreement is already signed. The provider treats repeated link
// issuance for an accepted agreement as an error, so the request never leaves
// this service.
var ErrAgreementOnFile = errors.New("signed agreement already on file")

// Orchestrator drives provider customer creation for a user.
type Orchestrator struct {
	users       store.UserRepository
	submissions store.SubmissionRepository
	builder     *PayloadBuilder
	gateway     ProviderGateway
	cache       store.StatusCache
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(users store.UserRepository, submissions store.SubmissionRepository, builder *PayloadBuilder, gateway ProviderGateway, cache store.StatusCache) *Orchestrator {
	return &Orchestrator{
		users:       users,
		submissions: submissions,
		builder:     builder,
		gateway:     gateway,
		cache:       cache,
	}
}

// CreateCustomerInput is the request to create a provider customer.
type CreateCustomerInput struct {
	UserID string
	// AdminOverride bypasses the "both submissions approved" guard. Approval
	// status is still logged. Every other invariant stays enforced.
	AdminOverride bool
	Source        string
}

// CreateCustomerResult reports the outcome of a creation request.
type CreateCustomerResult struct {
	ProviderCustomerID string `json:"provider_customer_id"`
	// AlreadyExisted is true when the duplicate guard short-circuited the
	// request. This is a successful no-op, not an error.
	AlreadyExisted bool     `json:"already_existed"`
	Warnings       []string `json:"warnings,omitempty"`
}

// CreateCustomer runs the full creation flow for one user.
func (o *Orchestrator) CreateCustomer(ctx context.Context, input CreateCustomerInput) (*CreateCustomerResult, error) {
	profile, err := o.users.GetProfile(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for user %s: %w", input.UserID, err)
	}

	// Duplicate guard: an existing provider customer id makes this request
	// already satisfied. Never create a second customer.
	if profile.HasProviderCustomer() {
		log.Printf("Provider customer already linked (%s) for user %s. Skipping creation.", *profile.ProviderCustomerID, input.UserID)
		return &CreateCustomerResult{ProviderCustomerID: *profile.ProviderCustomerID, AlreadyExisted: true}, nil
	}

	identity := o.latestOrNil(ctx, input.UserID, domain.CategoryIdentity)
	address := o.latestOrNil(ctx, input.UserID, domain.CategoryAddress)

	result := ValidateOnboarding(identity, address, profile)
	appendApprovalErrors(&result, identity, address)
	result.IsValid = len(result.Errors) == 0

	if !result.IsValid {
		if !input.AdminOverride {
			return nil, result.Err()
		}
		log.Printf("Admin override for user %s: proceeding despite %d validation errors: %s",
			input.UserID, len(result.Errors), strings.Join(result.Errors, "; "))
	}

	agreementID := ""
	if profile.ProviderAgreementID != nil {
		agreementID = *profile.ProviderAgreementID
	}

	payload, err := o.builder.Build(ctx, input.UserID, agreementID)
	if err != nil {
		return nil, err
	}

	// A deterministic per-user key lets the provider deduplicate replays of
	// the same creation on its side.
	idempotencyKey := uuid.NewSHA1(uuid.NameSpaceOID, []byte("customer:"+input.UserID)).String()

	view, err := o.gateway.CreateCustomer(ctx, *payload, idempotencyKey)
	if err != nil {
		return o.handleCreateFailure(ctx, input.UserID, agreementID, err)
	}

	if err := o.persistLink(ctx, input.UserID, view.Data.ID, agreementID); err != nil {
		return nil, err
	}

	log.Printf("Successfully created provider customer %s for user %s", view.Data.ID, input.UserID)
	return &CreateCustomerResult{ProviderCustomerID: view.Data.ID, Warnings: result.Warnings}, nil
}

// handleCreateFailure classifies a gateway failure. A "customer already
// exists" conflict with a recoverable id means a previous creation succeeded
// but the link write failed; relink instead of failing.
func (o *Orchestrator) handleCreateFailure(ctx context.Context, userID, agreementID string, err error) (*CreateCustomerResult, error) {
	apiErr, ok := providerclient.AsAPIError(err)
	if !ok {
		return nil, fmt.Errorf("provider customer creation failed for user %s: %w", userID, err)
	}

	if apiErr.IsAuthError() {
		log.Printf("CRITICAL: provider auth failure during customer creation for user %s: %v", userID, apiErr)
		return nil, err
	}

	if apiErr.IsCustomerConflict() {
		if apiErr.ExistingCustomerID != "" {
			log.Printf("Provider reports existing customer %s for user %s. Recovering link.", apiErr.ExistingCustomerID, userID)
			if linkErr := o.persistLink(ctx, userID, apiErr.ExistingCustomerID, agreementID); linkErr != nil {
				return nil, linkErr
			}
			return &CreateCustomerResult{ProviderCustomerID: apiErr.ExistingCustomerID, AlreadyExisted: true}, nil
		}
		log.Printf("CRITICAL: customer exists on provider but is not linked for user %s and no id could be recovered. Manual reconciliation required.", userID)
		return nil, &ReconciliationRequiredError{UserID: userID, Cause: err}
	}

	return nil, err
}

// persistLink writes the customer id (and agreement id) onto the profile and
// invalidates the cached status view. The external id must not be lost: a
// failed local write is surfaced as reconciliation-required, distinct from a
// creation failure.
func (o *Orchestrator) persistLink(ctx context.Context, userID, customerID, agreementID string) error {
	if err := o.users.LinkProviderCustomer(ctx, userID, customerID, agreementID); err != nil {
		log.Printf("ERROR: failed to persist provider customer %s for user %s: %v", customerID, userID, err)
		return &ReconciliationRequiredError{UserID: userID, ProviderCustomerID: customerID, Cause: err}
	}
	if o.cache != nil {
		if err := o.cache.Invalidate(ctx, userID); err != nil {
			log.Printf("Warning: failed to invalidate status cache for user %s: %v", userID, err)
		}
	}
	return nil
}

// RequestTermsLink issues a terms-of-service signing link for a user. An
// agreement already on file short-circuits with ErrAgreementOnFile. When a
// provider customer exists, the customer-scoped endpoint is used; the
// standalone endpoint is not guaranteed to be available for existing
// customers.
func (o *Orchestrator) RequestTermsLink(ctx context.Context, userID string) (*domain.TosLink, error) {
	profile, err := o.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for user %s: %w", userID, err)
	}

	if profile.ProviderAgreementID != nil && *profile.ProviderAgreementID != "" {
		return nil, ErrAgreementOnFile
	}

	if profile.HasProviderCustomer() {
		link, err := o.gateway.GetTosAcceptanceLink(ctx, *profile.ProviderCustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to issue customer-scoped terms link for user %s: %w", userID, err)
		}
		return link, nil
	}

	req := domain.CreateTosLinkRequest{
		Data: domain.RequestData{
			Type:       "TosLink",
			Attributes: domain.TosLinkAttributes{},
		},
	}
	link, err := o.gateway.CreateTosLink(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to issue terms link for user %s: %w", userID, err)
	}
	return link, nil
}

// ConfirmAgreement checks whether the agreement behind a terms link has been
// signed and, if so, records it and attaches it to the provider customer when
// one exists.
func (o *Orchestrator) ConfirmAgreement(ctx context.Context, userID, linkID string) (*domain.AgreementStatus, error) {
	status, err := o.gateway.GetSignedAgreementStatus(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to check agreement status for link %s: %w", linkID, err)
	}
	if !status.Signed || status.AgreementID == "" {
		return status, nil
	}

	if err := o.users.UpdateAgreementID(ctx, userID, status.AgreementID); err != nil {
		return nil, fmt.Errorf("failed to record signed agreement for user %s: %w", userID, err)
	}

	profile, err := o.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload profile for user %s: %w", userID, err)
	}
	if profile.HasProviderCustomer() {
		if err := o.gateway.UpdateCustomerAgreement(ctx, *profile.ProviderCustomerID, status.AgreementID); err != nil {
			// The agreement is recorded locally; attaching it provider-side
			// is retried on the next sync pass.
			log.Printf("Warning: failed to attach agreement %s to provider customer %s: %v", status.AgreementID, *profile.ProviderCustomerID, err)
		}
	}

	log.Printf("Recorded signed agreement %s for user %s", status.AgreementID, userID)
	return status, nil
}

func (o *Orchestrator) latestOrNil(ctx context.Context, userID string, category domain.SubmissionCategory) *domain.VerificationSubmission {
	sub, err := o.submissions.LatestByUserAndCategory(ctx, userID, category)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("Error loading %s submission for user %s: %v", category, userID, err)
		}
		return nil
	}
	return sub
}

// appendApprovalErrors enforces the authorization rule: both submissions must
// have passed review before a customer can be created.
func appendApprovalErrors(result *ValidationResult, identity, address *domain.VerificationSubmission) {
	for _, check := range []struct {
		sub      *domain.VerificationSubmission
		category domain.SubmissionCategory
	}{
		{identity, domain.CategoryIdentity},
		{address, domain.CategoryAddress},
	} {
		if check.sub == nil {
			continue // already reported as missing
		}
		if check.sub.Status != domain.SubmissionApproved {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s submission is not approved (status: %s)", check.category, check.sub.Status))
			result.MissingFields = append(result.MissingFields, string(check.category))
		}
	}
}
