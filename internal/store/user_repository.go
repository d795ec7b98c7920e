/**
 * @description
 * This file implements the data access layer for user-related operations in
 * the database. It owns the external customer link columns on the `users`
 * table: provider customer id, agreement id, derived KYC status, rejection
 * reasons, raw endorsements and the resources-provisioned flag.
 *
 * @notes
 * - LinkProviderCustomer is the persistence half of the idempotency anchor:
 *   the UPDATE only matches when the stored id is NULL or already equal to the
 *   incoming one, so a different id can never overwrite an existing link.
 */
package store

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// PostgresUserRepository is the PostgreSQL implementation of the UserRepository.
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

// NewPostgresUserRepository creates a new instance of PostgresUserRepository.
func NewPostgresUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// GetProfile loads the user profile together with its external customer link.
func (r *PostgresUserRepository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	query := `
        SELECT id, email, first_name, last_name,
               provider_customer_id, provider_agreement_id,
               external_kyc_status, external_rejection_reasons, external_endorsements,
               resources_provisioned, last_synced_at, updated_at
        FROM users
        WHERE id = $1
    `
	var (
		p       domain.UserProfile
		status  *string
		reasons []string
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName,
		&p.ProviderCustomerID, &p.ProviderAgreementID,
		&status, &reasons, &p.Endorsements,
		&p.ResourcesProvisioned, &p.LastSyncedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err != pgx.ErrNoRows {
			log.Printf("Error fetching profile for user %s: %v", userID, err)
		}
		return nil, err
	}
	p.ExternalKYCStatus = domain.KYCStatusUnknown
	if status != nil && *status != "" {
		p.ExternalKYCStatus = domain.KYCStatus(*status)
	}
	p.RejectionReasons = reasons
	return &p, nil
}

// FindUserIDByProviderCustomerID resolves a provider customer id back to the
// owning user. Needed by webhook-triggered syncs, which only carry the
// provider's id.
func (r *PostgresUserRepository) FindUserIDByProviderCustomerID(ctx context.Context, providerCustomerID string) (string, error) {
	query := `SELECT id FROM users WHERE provider_customer_id = $1`
	var userID string
	err := r.db.QueryRow(ctx, query, providerCustomerID).Scan(&userID)
	if err != nil {
		if err != pgx.ErrNoRows {
			log.Printf("Error finding user by provider_customer_id: %v", err)
		}
		return "", err
	}
	return userID, nil
}

// LinkProviderCustomer persists the provider customer id (and the agreement
// id when non-empty). The conditional WHERE enforces immutability of the
// customer id; linking the same id twice is a harmless no-op.
func (r *PostgresUserRepository) LinkProviderCustomer(ctx context.Context, userID, providerCustomerID, agreementID string) error {
	query := `
        UPDATE users
        SET provider_customer_id = $1,
            provider_agreement_id = COALESCE(NULLIF($2, ''), provider_agreement_id),
            updated_at = NOW()
        WHERE id = $3
          AND (provider_customer_id IS NULL OR provider_customer_id = $1)
    `
	commandTag, err := r.db.Exec(ctx, query, providerCustomerID, agreementID, userID)
	if err != nil {
		log.Printf("Error linking provider customer %s for user %s: %v", providerCustomerID, userID, err)
		return err
	}
	if commandTag.RowsAffected() == 0 {
		// Either the user does not exist or a different customer id is
		// already linked. Distinguish the two for the caller.
		var existing *string
		checkErr := r.db.QueryRow(ctx, `SELECT provider_customer_id FROM users WHERE id = $1`, userID).Scan(&existing)
		if checkErr != nil {
			return checkErr
		}
		if existing != nil && *existing != providerCustomerID {
			log.Printf("Refusing to overwrite provider customer id for user %s: have %s, got %s", userID, *existing, providerCustomerID)
			return ErrCustomerLinkConflict
		}
		log.Printf("Warning: No user found with ID %s to link provider customer", userID)
	}
	return nil
}

// UpdateAgreementID stores the signed agreement id for a user.
func (r *PostgresUserRepository) UpdateAgreementID(ctx context.Context, userID, agreementID string) error {
	query := `
        UPDATE users
        SET provider_agreement_id = $1, updated_at = NOW()
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, agreementID, userID)
	if err != nil {
		log.Printf("Error updating agreement id for user %s: %v", userID, err)
	}
	return err
}

// UpdateVerificationState persists the synchronizer's derived status together
// with the provider's stated rejection reasons and raw endorsement list.
func (r *PostgresUserRepository) UpdateVerificationState(ctx context.Context, userID string, state domain.VerificationStateUpdate) error {
	query := `
        UPDATE users
        SET external_kyc_status = $1,
            external_rejection_reasons = $2,
            external_endorsements = $3,
            last_synced_at = $4,
            updated_at = NOW()
        WHERE id = $5
    `
	commandTag, err := r.db.Exec(ctx, query,
		string(state.Status), state.RejectionReasons, state.Endorsements, state.SyncedAt, userID)
	if err != nil {
		log.Printf("Error updating verification state for user %s: %v", userID, err)
		return err
	}
	if commandTag.RowsAffected() == 0 {
		log.Printf("Warning: No user found with ID %s to update verification state", userID)
	}
	return nil
}

// SetResourcesProvisioned flips the flag gating provisioning retries.
func (r *PostgresUserRepository) SetResourcesProvisioned(ctx context.Context, userID string, provisioned bool) error {
	query := `
        UPDATE users
        SET resources_provisioned = $1, updated_at = NOW()
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, provisioned, userID)
	if err != nil {
		log.Printf("Error setting resources_provisioned for user %s: %v", userID, err)
	}
	return err
}

// ListSyncCandidates returns users whose provider customer still needs
// polling: anyone not yet approved, or approved but not fully provisioned.
func (r *PostgresUserRepository) ListSyncCandidates(ctx context.Context, limit int) ([]domain.SyncCandidate, error) {
	query := `
        SELECT id, provider_customer_id, COALESCE(external_kyc_status, 'unknown')
        FROM users
        WHERE provider_customer_id IS NOT NULL
          AND (external_kyc_status IS DISTINCT FROM 'approved' OR resources_provisioned = FALSE)
        ORDER BY updated_at ASC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		log.Printf("Error listing sync candidates: %v", err)
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.SyncCandidate
	for rows.Next() {
		var c domain.SyncCandidate
		var status string
		if err := rows.Scan(&c.UserID, &c.ProviderCustomerID, &status); err != nil {
			return nil, err
		}
		c.ExternalKYCStatus = domain.KYCStatus(status)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
