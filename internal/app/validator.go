/**
 * @description
 * Local pre-flight validation of onboarding inputs. This runs before any
 * network call so preventable mistakes never burn provider API quota or come
 * back as confusing provider-side errors.
 *
 * @notes
 * - The validator checks presence only. Schema compatibility (enum mappings
 *   and the like) is the payload builder's job, a second independent layer.
 */
package app

import (
	"fmt"
	"strings"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// ValidationResult is the outcome of the local pre-flight check.
type ValidationResult struct {
	IsValid       bool     `json:"is_valid"`
	Errors        []string `json:"errors,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// Err converts a failed result into a *ValidationError, or nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Errors: r.Errors, Warnings: r.Warnings, MissingFields: r.MissingFields}
}

// ValidateOnboarding checks that both submissions exist and that every field
// the provider requires is present, both on the submissions and the profile.
// Missing recommended fields produce warnings, not errors.
func ValidateOnboarding(identity, address *domain.VerificationSubmission, profile *domain.UserProfile) ValidationResult {
	var result ValidationResult

	if identity == nil {
		result.Errors = append(result.Errors, "identity submission is missing")
		result.MissingFields = append(result.MissingFields, "identity")
	} else {
		requireField(&result, identity.FirstName, "identity.first_name")
		requireField(&result, identity.LastName, "identity.last_name")
		requireField(&result, identity.DateOfBirth, "identity.date_of_birth")
		requireField(&result, identity.Country, "identity.country")
		requireField(&result, identity.IDDocumentType, "identity.id_document_type")
		if strings.TrimSpace(identity.MiddleName) == "" {
			result.Warnings = append(result.Warnings, "identity.middle_name is not set")
		}
	}

	if address == nil {
		result.Errors = append(result.Errors, "address submission is missing")
		result.MissingFields = append(result.MissingFields, "address")
	} else {
		requireField(&result, address.Country, "address.country")
		requireField(&result, address.AddressText, "address.address_text")
		requireField(&result, address.DocumentType, "address.document_type")
	}

	if profile == nil {
		result.Errors = append(result.Errors, "user profile is missing")
		result.MissingFields = append(result.MissingFields, "profile")
	} else {
		requireField(&result, profile.Email, "profile.email")
		requireField(&result, profile.FirstName, "profile.first_name")
		requireField(&result, profile.LastName, "profile.last_name")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

func requireField(result *ValidationResult, value, field string) {
	if strings.TrimSpace(value) == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("required field %s is empty", field))
		result.MissingFields = append(result.MissingFields, field)
	}
}
