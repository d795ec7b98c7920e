/**
 * @description
 * The account provisioner: creates the custody wallet and virtual bank
 * accounts for a user after verification approval.
 *
 * @notes
 * - Must be safely callable any number of times: concurrent webhook and
 *   polling invocations for the same user are expected. The guard is
 *   check-before-create against the local resource table, not any provider
 *   uniqueness behavior.
 * - One failing currency never blocks the others. Partial success is normal
 *   and retried on the next sync pass.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/internal/store"
)

// Provisioner creates wallets and virtual accounts post-approval.
type Provisioner struct {
	resources  store.ResourceRepository
	users      store.UserRepository
	gateway    ProviderGateway
	currencies []string
}

// NewProvisioner creates a new Provisioner. currencies lists the desired
// virtual-account/wallet currencies, e.g. ["USD", "EUR"].
func NewProvisioner(resources store.ResourceRepository, users store.UserRepository, gateway ProviderGateway, currencies []string) *Provisioner {
	return &Provisioner{
		resources:  resources,
		users:      users,
		gateway:    gateway,
		currencies: currencies,
	}
}

// Provision ensures a wallet and a virtual account exist for every desired
// currency. It returns complete=true when every resource now exists, and
// flips the user's resources_provisioned flag the first time that happens.
// Calling it when everything already exists is a successful no-op.
func (p *Provisioner) Provision(ctx context.Context, userID, providerCustomerID string) (complete bool, err error) {
	if providerCustomerID == "" {
		return false, fmt.Errorf("cannot provision resources for user %s: no provider customer id", userID)
	}

	complete = true
	for _, currency := range p.currencies {
		if !p.ensureResource(ctx, userID, providerCustomerID, domain.ResourceWallet, currency) {
			complete = false
		}
		if !p.ensureResource(ctx, userID, providerCustomerID, domain.ResourceVirtualAccount, currency) {
			complete = false
		}
	}

	if complete {
		if err := p.users.SetResourcesProvisioned(ctx, userID, true); err != nil {
			log.Printf("Warning: resources exist but failed to set provisioned flag for user %s: %v", userID, err)
			return true, err
		}
	}
	return complete, nil
}

// ensureResource makes sure one (kind, currency) resource exists, creating it
// if absent. Returns false when the resource still does not exist; failures
// are logged, not propagated, so the remaining currencies proceed.
func (p *Provisioner) ensureResource(ctx context.Context, userID, providerCustomerID string, kind domain.ResourceKind, currency string) bool {
	existing, err := p.resources.FindResource(ctx, userID, kind, currency)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("ERROR: failed to check existing %s/%s for user %s: %v", kind, currency, userID, err)
		return false
	}
	if existing != nil {
		return true
	}

	var externalID string
	switch kind {
	case domain.ResourceWallet:
		resp, createErr := p.gateway.CreateWallet(ctx, providerCustomerID, currency)
		if createErr != nil {
			log.Printf("ERROR: failed to create %s wallet for user %s: %v", currency, userID, createErr)
			return false
		}
		externalID = resp.Data.ID
	case domain.ResourceVirtualAccount:
		resp, createErr := p.gateway.CreateVirtualAccount(ctx, providerCustomerID, currency)
		if createErr != nil {
			log.Printf("ERROR: failed to create %s virtual account for user %s: %v", currency, userID, createErr)
			return false
		}
		externalID = resp.Data.ID
	default:
		log.Printf("ERROR: unknown resource kind %q", kind)
		return false
	}

	record := &domain.ProvisionedResource{
		UserID:     userID,
		Kind:       kind,
		Currency:   currency,
		ExternalID: externalID,
	}
	if _, err := p.resources.CreateResource(ctx, record); err != nil {
		if errors.Is(err, store.ErrResourceExists) {
			// Lost a race with a concurrent provisioning attempt; the
			// resource exists, which is all that matters.
			return true
		}
		// The external resource exists but the record write failed. The next
		// pass will find no local record and call create again, so this must
		// be surfaced loudly.
		log.Printf("CRITICAL: provider %s %s created (id %s) for user %s but local record failed: %v",
			currency, kind, externalID, userID, err)
		return false
	}

	log.Printf("Provisioned %s %s (external id %s) for user %s", currency, kind, externalID, userID)
	return true
}
