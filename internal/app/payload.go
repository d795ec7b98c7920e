/**
 * @description
 * Builds the provider customer-creation request from the authoritative
 * submissions and the user profile. This is the schema-compatibility layer:
 * the validator checks presence, the builder checks that every value can be
 * expressed in the provider's schema.
 *
 * @notes
 * - The builder always re-fetches submissions from the store instead of
 *   trusting caller-supplied copies, so a concurrent resubmission cannot
 *   produce a payload sourced from stale data.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/internal/store"
)

// idDocumentTypeMap maps internal id-document types to the provider enum.
var idDocumentTypeMap = map[string]string{
	"passport":         "PASSPORT",
	"drivers_license":  "DRIVING_LICENSE",
	"national_id":      "NATIONAL_ID",
	"residence_permit": "RESIDENCE_PERMIT",
}

// addressDocumentTypeMap maps internal address-proof types to the provider enum.
var addressDocumentTypeMap = map[string]string{
	"utility_bill":      "UTILITY_BILL",
	"bank_statement":    "BANK_STATEMENT",
	"tenancy_agreement": "TENANCY_AGREEMENT",
	"government_letter": "GOVERNMENT_LETTER",
}

// PayloadBuilder assembles provider customer-creation requests.
type PayloadBuilder struct {
	submissions store.SubmissionRepository
	users       store.UserRepository
}

// NewPayloadBuilder creates a new PayloadBuilder.
func NewPayloadBuilder(submissions store.SubmissionRepository, users store.UserRepository) *PayloadBuilder {
	return &PayloadBuilder{submissions: submissions, users: users}
}

// Build assembles the full customer-creation request for a user. It fails
// with a *PayloadIncompleteError if any field the provider schema requires
// cannot be sourced or mapped.
func (b *PayloadBuilder) Build(ctx context.Context, userID, signedAgreementID string) (*domain.CreateCustomerRequest, error) {
	profile, err := b.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for user %s: %w", userID, err)
	}

	identity, err := b.latest(ctx, userID, domain.CategoryIdentity)
	if err != nil {
		return nil, err
	}
	address, err := b.latest(ctx, userID, domain.CategoryAddress)
	if err != nil {
		return nil, err
	}

	idDocType, ok := idDocumentTypeMap[strings.ToLower(strings.TrimSpace(identity.IDDocumentType))]
	if !ok {
		return nil, &PayloadIncompleteError{
			Field:  "identity.id_document_type",
			Reason: fmt.Sprintf("no provider mapping for internal type %q", identity.IDDocumentType),
		}
	}
	addressDocType, ok := addressDocumentTypeMap[strings.ToLower(strings.TrimSpace(address.DocumentType))]
	if !ok {
		return nil, &PayloadIncompleteError{
			Field:  "address.document_type",
			Reason: fmt.Sprintf("no provider mapping for internal type %q", address.DocumentType),
		}
	}

	attrs := domain.CustomerAttributes{
		FullName: domain.FullName{
			FirstName:  identity.FirstName,
			LastName:   identity.LastName,
			MiddleName: identity.MiddleName,
		},
		DateOfBirth: identity.DateOfBirth,
		Email:       profile.Email,
		Address: domain.ProviderAddress{
			AddressLine1: address.AddressText,
			Country:      strings.ToUpper(address.Country),
		},
		IdentityDocument: domain.DocumentProof{
			Type:      idDocType,
			Reference: identity.DocumentRef,
		},
		AddressProof: domain.DocumentProof{
			Type:      addressDocType,
			Reference: address.DocumentRef,
		},
		SignedAgreementID: signedAgreementID,
	}

	if err := checkRequiredAttributes(attrs); err != nil {
		return nil, err
	}

	return &domain.CreateCustomerRequest{
		Data: domain.RequestData{
			Type:       "Customer",
			Attributes: attrs,
		},
	}, nil
}

func (b *PayloadBuilder) latest(ctx context.Context, userID string, category domain.SubmissionCategory) (*domain.VerificationSubmission, error) {
	sub, err := b.submissions.LatestByUserAndCategory(ctx, userID, category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &PayloadIncompleteError{
				Field:  string(category),
				Reason: "no submission on record",
			}
		}
		return nil, fmt.Errorf("failed to load %s submission for user %s: %w", category, userID, err)
	}
	return sub, nil
}

// checkRequiredAttributes is the final defense: every field the provider
// schema marks required must be non-empty, regardless of how it was sourced.
func checkRequiredAttributes(attrs domain.CustomerAttributes) error {
	required := map[string]string{
		"fullName.firstName":         attrs.FullName.FirstName,
		"fullName.lastName":          attrs.FullName.LastName,
		"dateOfBirth":                attrs.DateOfBirth,
		"email":                      attrs.Email,
		"address.addressLine_1":      attrs.Address.AddressLine1,
		"address.country":            attrs.Address.Country,
		"identityDocument.reference": attrs.IdentityDocument.Reference,
		"addressProof.reference":     attrs.AddressProof.Reference,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return &PayloadIncompleteError{Field: field, Reason: "required by provider schema but empty"}
		}
	}
	return nil
}
