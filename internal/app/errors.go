/**
 * @description
 * Typed errors for the onboarding pipeline. Each maps to one branch of the
 * propagation policy: validation failures go back to the user with field
 * detail, payload gaps page engineering, reconciliation-required states alert
 * operators, and duplicate-guard short circuits are not errors at all.
 */
package app

import (
	"fmt"
	"strings"
)

// ValidationError reports locally-detected submission problems. Recoverable
// by user resubmission; never reaches the provider.
type ValidationError struct {
	Errors        []string
	Warnings      []string
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("onboarding validation failed: %s", strings.Join(e.Errors, "; "))
}

// PayloadIncompleteError signals a schema-mapping gap between approved local
// data and the provider's customer schema. This is a bug or missing
// country-specific support, not a user mistake.
type PayloadIncompleteError struct {
	Field  string
	Reason string
}

func (e *PayloadIncompleteError) Error() string {
	return fmt.Sprintf("payload incomplete: field %q: %s", e.Field, e.Reason)
}

// ReconciliationRequiredError is returned when the provider accepted a
// creation but the local link write failed. The external id must not be lost;
// callers log at error severity and surface this distinctly from a creation
// failure.
type ReconciliationRequiredError struct {
	UserID             string
	ProviderCustomerID string
	Cause              error
}

func (e *ReconciliationRequiredError) Error() string {
	return fmt.Sprintf("provider customer %s created for user %s but local link failed: %v",
		e.ProviderCustomerID, e.UserID, e.Cause)
}

func (e *ReconciliationRequiredError) Unwrap() error { return e.Cause }
