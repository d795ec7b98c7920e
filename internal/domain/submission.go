/**
 * @description
 * This file defines the domain model for identity and address verification
 * submissions. A submission is one uploaded document plus the fields extracted
 * from it, carrying a local review status.
 *
 * @notes
 * - A user has at most one *authoritative* submission per category: the most
 *   recently created one. Older rows are kept for audit but never drive
 *   provisioning decisions.
 */
package domain

import "time"

// SubmissionCategory identifies which kind of verification a submission covers.
type SubmissionCategory string

const (
	CategoryIdentity SubmissionCategory = "identity"
	CategoryAddress  SubmissionCategory = "address"
)

// SubmissionStatus is the local review state of a submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionInReview SubmissionStatus = "in_review"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// VerificationSubmission is one uploaded verification document per (user, category).
type VerificationSubmission struct {
	ID       string             `json:"id"`
	UserID   string             `json:"user_id"`
	Category SubmissionCategory `json:"category"`
	Status   SubmissionStatus   `json:"status"`

	// Identity fields.
	FirstName      string `json:"first_name,omitempty"`
	MiddleName     string `json:"middle_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"` // Format: "YYYY-MM-DD"
	IDDocumentType string `json:"id_document_type,omitempty"`

	// Address fields.
	AddressText  string `json:"address_text,omitempty"`
	DocumentType string `json:"document_type,omitempty"`

	// Shared fields.
	Country     string `json:"country"`
	DocumentRef string `json:"document_ref"`

	RejectionReason *string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
}

// ReviewAction is an admin decision applied to a submission.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
	ReviewReset   ReviewAction = "reset"
)
