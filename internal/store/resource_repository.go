/**
 * @description
 * This file implements the data access layer for provisioned financial
 * resources (custody wallets and virtual accounts).
 *
 * @notes
 * - FindResource backs the provisioner's check-before-create guard. A unique
 *   index on (user_id, kind, currency) is the second line of defense against
 *   races; the 23505 branch treats that violation as "already provisioned".
 */
package store

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// ErrResourceExists is returned when an insert races a concurrent
// provisioning attempt for the same (user, kind, currency).
var ErrResourceExists = errors.New("resource already provisioned for user, kind and currency")

// PostgresResourceRepository is the PostgreSQL implementation of the ResourceRepository.
type PostgresResourceRepository struct {
	db *pgxpool.Pool
}

// NewPostgresResourceRepository creates a new instance of PostgresResourceRepository.
func NewPostgresResourceRepository(db *pgxpool.Pool) *PostgresResourceRepository {
	return &PostgresResourceRepository{db: db}
}

// FindResource returns the resource for (user, kind, currency), or
// pgx.ErrNoRows when none has been provisioned yet.
func (r *PostgresResourceRepository) FindResource(ctx context.Context, userID string, kind domain.ResourceKind, currency string) (*domain.ProvisionedResource, error) {
	query := `
        SELECT id, user_id, kind, currency, external_id, created_at
        FROM provisioned_resources
        WHERE user_id = $1 AND kind = $2 AND currency = $3
    `
	var res domain.ProvisionedResource
	err := r.db.QueryRow(ctx, query, userID, kind, currency).Scan(
		&res.ID, &res.UserID, &res.Kind, &res.Currency, &res.ExternalID, &res.CreatedAt,
	)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("Error finding %s/%s resource for user %s: %v", kind, currency, userID, err)
		}
		return nil, err
	}
	return &res, nil
}

// CreateResource inserts a new provisioned resource record.
func (r *PostgresResourceRepository) CreateResource(ctx context.Context, res *domain.ProvisionedResource) (string, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	query := `
        INSERT INTO provisioned_resources (id, user_id, kind, currency, external_id, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id
    `
	var id string
	err := r.db.QueryRow(ctx, query, res.ID, res.UserID, res.Kind, res.Currency, res.ExternalID).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" { // unique_violation
			log.Printf("Resource %s/%s already recorded for user %s", res.Kind, res.Currency, res.UserID)
			return "", ErrResourceExists
		}
		log.Printf("Error inserting provisioned resource for user %s: %v", res.UserID, err)
		return "", err
	}
	return id, nil
}

// ListByUser returns every provisioned resource owned by a user.
func (r *PostgresResourceRepository) ListByUser(ctx context.Context, userID string) ([]domain.ProvisionedResource, error) {
	query := `
        SELECT id, user_id, kind, currency, external_id, created_at
        FROM provisioned_resources
        WHERE user_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		log.Printf("Error listing resources for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var resources []domain.ProvisionedResource
	for rows.Next() {
		var res domain.ProvisionedResource
		if err := rows.Scan(&res.ID, &res.UserID, &res.Kind, &res.Currency, &res.ExternalID, &res.CreatedAt); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

// CountByUser counts a user's provisioned resources. The administrative
// submission purge refuses to run when this is non-zero.
func (r *PostgresResourceRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM provisioned_resources WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		log.Printf("Error counting resources for user %s: %v", userID, err)
		return 0, err
	}
	return count, nil
}
