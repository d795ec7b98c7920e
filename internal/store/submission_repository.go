/**
 * @description
 * This file implements the data access layer for verification submissions.
 * It provides a clean, abstracted interface for the application logic to
 * interact with the `submissions` table without needing to know the
 * underlying SQL queries.
 *
 * @notes
 * - This implementation follows the repository pattern, separating data access
 *   concerns from the core business logic in the `app` layer.
 * - The "latest row wins" rule lives here: LatestByUserAndCategory orders by
 *   created_at and returns one row, so a resubmission supersedes its
 *   predecessors without mutating them.
 */
package store

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// PostgresSubmissionRepository is the PostgreSQL implementation of the
// SubmissionRepository.
type PostgresSubmissionRepository struct {
	db *pgxpool.Pool
}

// NewPostgresSubmissionRepository creates a new instance of PostgresSubmissionRepository.
func NewPostgresSubmissionRepository(db *pgxpool.Pool) *PostgresSubmissionRepository {
	return &PostgresSubmissionRepository{db: db}
}

const submissionColumns = `
	id, user_id, category, status,
	first_name, middle_name, last_name, date_of_birth, id_document_type,
	address_text, document_type, country, document_ref,
	rejection_reason, created_at, reviewed_at
`

// CreateSubmission inserts a new submission row and returns its id.
func (r *PostgresSubmissionRepository) CreateSubmission(ctx context.Context, sub *domain.VerificationSubmission) (string, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = domain.SubmissionPending
	}
	query := `
        INSERT INTO submissions (
            id, user_id, category, status,
            first_name, middle_name, last_name, date_of_birth, id_document_type,
            address_text, document_type, country, document_ref, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
        RETURNING id
    `
	var id string
	err := r.db.QueryRow(ctx, query,
		sub.ID, sub.UserID, sub.Category, sub.Status,
		nullable(sub.FirstName), nullable(sub.MiddleName), nullable(sub.LastName),
		nullable(sub.DateOfBirth), nullable(sub.IDDocumentType),
		nullable(sub.AddressText), nullable(sub.DocumentType),
		sub.Country, sub.DocumentRef,
	).Scan(&id)
	if err != nil {
		log.Printf("Error inserting submission for user %s: %v", sub.UserID, err)
		return "", err
	}
	return id, nil
}

// GetSubmission fetches one submission by id.
func (r *PostgresSubmissionRepository) GetSubmission(ctx context.Context, id string) (*domain.VerificationSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// LatestByUserAndCategory returns the most recently created submission for
// the (user, category) pair. Only this row is authoritative for provisioning
// decisions.
func (r *PostgresSubmissionRepository) LatestByUserAndCategory(ctx context.Context, userID string, category domain.SubmissionCategory) (*domain.VerificationSubmission, error) {
	query := `
        SELECT ` + submissionColumns + `
        FROM submissions
        WHERE user_id = $1 AND category = $2
        ORDER BY created_at DESC
        LIMIT 1
    `
	return r.scanOne(ctx, query, userID, category)
}

// ListByUser returns every submission a user has made, newest first.
func (r *PostgresSubmissionRepository) ListByUser(ctx context.Context, userID string) ([]domain.VerificationSubmission, error) {
	query := `
        SELECT ` + submissionColumns + `
        FROM submissions
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		log.Printf("Error listing submissions for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var subs []domain.VerificationSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// UpdateReview applies a review decision to a submission. The review
// timestamp is always refreshed; the rejection reason is cleared unless the
// decision carries one.
func (r *PostgresSubmissionRepository) UpdateReview(ctx context.Context, id string, status domain.SubmissionStatus, reason *string) error {
	query := `
        UPDATE submissions
        SET status = $1, rejection_reason = $2, reviewed_at = NOW()
        WHERE id = $3
    `
	commandTag, err := r.db.Exec(ctx, query, status, reason, id)
	if err != nil {
		log.Printf("Error updating review for submission %s: %v", id, err)
		return err
	}
	if commandTag.RowsAffected() == 0 {
		log.Printf("Warning: No submission found with ID %s to review", id)
	}
	return nil
}

// DeleteSubmission hard-deletes a submission. Only the administrative purge
// path calls this; the app layer refuses it once dependent resources exist.
func (r *PostgresSubmissionRepository) DeleteSubmission(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		log.Printf("Error deleting submission %s: %v", id, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresSubmissionRepository) scanOne(ctx context.Context, query string, args ...any) (*domain.VerificationSubmission, error) {
	return scanSubmission(r.db.QueryRow(ctx, query, args...))
}

func scanSubmission(row rowScanner) (*domain.VerificationSubmission, error) {
	var (
		sub                                       domain.VerificationSubmission
		firstName, middleName, lastName           *string
		dateOfBirth, idDocType, addrText, docType *string
		reviewedAt                                *time.Time
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.Category, &sub.Status,
		&firstName, &middleName, &lastName, &dateOfBirth, &idDocType,
		&addrText, &docType, &sub.Country, &sub.DocumentRef,
		&sub.RejectionReason, &sub.CreatedAt, &reviewedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.FirstName = deref(firstName)
	sub.MiddleName = deref(middleName)
	sub.LastName = deref(lastName)
	sub.DateOfBirth = deref(dateOfBirth)
	sub.IDDocumentType = deref(idDocType)
	sub.AddressText = deref(addrText)
	sub.DocumentType = deref(docType)
	sub.ReviewedAt = reviewedAt
	return &sub, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
