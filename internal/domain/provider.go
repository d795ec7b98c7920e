/**
 * @description
 * This file defines the Go structs that map to the JSON:API shapes used by the
 * external compliance/custody provider. These models are used to construct
 * request bodies and parse responses when communicating with the provider API.
 *
 * @notes
 * - The provider is an eventually-consistent, partially-documented system.
 *   Response structs deliberately leave every attribute optional so unknown or
 *   missing fields never break decoding.
 * - The `json:"..."` tags are crucial for correct serialization and
 *   deserialization of JSON data.
 */
package domain

// --- Generic JSON:API structures ---

// RequestData is a generic container for a JSON:API request payload.
type RequestData struct {
	Type          string                 `json:"type"`
	Attributes    interface{}            `json:"attributes"`
	Relationships map[string]interface{} `json:"relationships,omitempty"`
}

// ResponseData is a generic container for a JSON:API response payload.
type ResponseData struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Attributes interface{} `json:"attributes"`
}

// CustomerRelationship links a secondary resource (wallet, virtual account)
// back to its owning customer.
type CustomerRelationship struct {
	Data struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

// --- Customer creation ---

// CreateCustomerRequest is the top-level request for creating a customer.
type CreateCustomerRequest struct {
	Data RequestData `json:"data"`
}

// CustomerAttributes defines the attributes for creating a new customer.
// Every field here is required by the provider schema unless tagged omitempty;
// the payload builder fails before the network call when one cannot be sourced.
type CustomerAttributes struct {
	FullName          FullName        `json:"fullName"`
	DateOfBirth       string          `json:"dateOfBirth"` // Format: "YYYY-MM-DD"
	Email             string          `json:"email"`
	Address           ProviderAddress `json:"address"`
	IdentityDocument  DocumentProof   `json:"identityDocument"`
	AddressProof      DocumentProof   `json:"addressProof"`
	SignedAgreementID string          `json:"signedAgreementId,omitempty"`
}

// FullName represents a person's full name.
type FullName struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	MiddleName string `json:"middleName,omitempty"`
}

// ProviderAddress is the address shape the provider expects. The platform
// stores addresses as free text, so everything goes into line 1.
type ProviderAddress struct {
	AddressLine1 string `json:"addressLine_1"`
	Country      string `json:"country"` // ISO 3166-1 alpha-2, upper case
}

// DocumentProof references an uploaded verification document.
type DocumentProof struct {
	Type      string `json:"type"` // provider enum, e.g. "PASSPORT"
	Reference string `json:"reference"`
}

// --- Customer view ---

// CustomerView is the provider's current view of a customer. Which attributes
// are populated varies between responses; the status synchronizer derives one
// canonical status from whatever is present.
type CustomerView struct {
	Data CustomerViewData `json:"data"`
}

// CustomerViewData carries the customer resource id plus its attributes.
type CustomerViewData struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Attributes CustomerViewAttributes `json:"attributes"`
}

// CustomerViewAttributes is the union of every customer attribute shape the
// provider has been observed to return.
type CustomerViewAttributes struct {
	// Explicit verification status, authoritative when present.
	VerificationStatus string `json:"verificationStatus,omitempty"`
	// Generic account status, e.g. "active". Only meaningful combined with
	// endorsement state.
	Status           string        `json:"status,omitempty"`
	Endorsements     []Endorsement `json:"endorsements,omitempty"`
	RejectionReasons []string      `json:"rejectionReasons,omitempty"`
}

// Endorsement is a provider-side sub-verification (e.g. a currency rail) with
// its own approval status.
type Endorsement struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status"`
}

// --- Terms of service ---

// CreateTosLinkRequest asks the provider for a terms-of-service signing link.
type CreateTosLinkRequest struct {
	Data RequestData `json:"data"`
}

// TosLinkAttributes carries the redirect target for the signing flow.
type TosLinkAttributes struct {
	RedirectURI string `json:"redirectUri,omitempty"`
}

// TosLink is a terms-of-service signing link issued by the provider.
type TosLink struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// AgreementStatus is the signing state of a terms link.
type AgreementStatus struct {
	LinkID      string `json:"link_id"`
	Signed      bool   `json:"signed"`
	AgreementID string `json:"agreement_id,omitempty"`
}

// --- Wallets and virtual accounts ---

// CreateWalletRequest provisions a custody wallet for a customer.
type CreateWalletRequest struct {
	Data RequestData `json:"data"`
}

// WalletAttributes defines the wallet currency.
type WalletAttributes struct {
	Currency string `json:"currency"`
}

// CreateVirtualAccountRequest provisions a virtual bank account for a customer.
type CreateVirtualAccountRequest struct {
	Data RequestData `json:"data"`
}

// VirtualAccountAttributes defines the virtual account currency.
type VirtualAccountAttributes struct {
	Currency string `json:"currency"`
}

// ResourceResponse is the generic response for created wallets and accounts.
type ResourceResponse struct {
	Data ResponseData `json:"data"`
}
