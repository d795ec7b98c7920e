// Package domain models for provisioned financial resources.
package domain

import "time"

// ResourceKind distinguishes the custody wallet from virtual bank accounts.
type ResourceKind string

const (
	ResourceWallet         ResourceKind = "wallet"
	ResourceVirtualAccount ResourceKind = "virtual_account"
)

// ProvisionedResource is a wallet or virtual account created on the provider
// after verification approval. At most one exists per (user, kind, currency);
// the provisioner enforces this by checking before creating, since the
// provider's create endpoints are not guaranteed idempotent.
type ProvisionedResource struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Kind       ResourceKind `json:"kind"`
	Currency   string       `json:"currency"`
	ExternalID string       `json:"external_id"`
	CreatedAt  time.Time    `json:"created_at"`
}
