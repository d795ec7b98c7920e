/**
 * @description
 * This package provides a client for interacting with the external
 * compliance/custody provider API. It encapsulates the logic for making
 * authenticated HTTP requests, handling request/response bodies, and
 * normalizing errors from the API.
 *
 * @notes
 * - Every call is bounded by the client timeout so a hung upstream call cannot
 *   occupy a web-request goroutine indefinitely.
 * - The client never retries. Retry policy belongs to callers, whose
 *   idempotency requirements differ.
 * - Failed calls surface an *APIError carrying the status code and the
 *   provider's error body, so callers can distinguish credential failures
 *   (fatal) from transient ones (retryable).
 */
package providerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// DefaultTimeout bounds every provider call.
const DefaultTimeout = 8 * time.Second

// APIError is a normalized provider API failure.
type APIError struct {
	StatusCode int
	Body       string
	// ExistingCustomerID is set when the provider rejected a creation because
	// the customer already exists and an id could be recovered from the error
	// body. Callers use it to relink instead of failing.
	ExistingCustomerID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API request failed with status %d: %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether the failure is a credential or permission
// problem. These are fatal and must not be retried.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsTransient reports whether the failure is safe to retry later.
func (e *APIError) IsTransient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsCustomerConflict reports whether the provider said the customer already
// exists.
func (e *APIError) IsCustomerConflict() bool {
	if e.StatusCode != http.StatusBadRequest && e.StatusCode != http.StatusConflict {
		return false
	}
	return strings.Contains(strings.ToLower(e.Body), "already exist")
}

// AsAPIError unwraps err into an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Client is a client for interacting with the provider API.
type Client struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewClient creates a new provider API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// CreateCustomer sends a request to the provider to create a new customer.
// The idempotencyKey is forwarded so the provider can deduplicate replays on
// its side, but local check-before-create guards remain the real protection.
func (c *Client) CreateCustomer(ctx context.Context, req domain.CreateCustomerRequest, idempotencyKey string) (*domain.CustomerView, error) {
	var view domain.CustomerView
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["x-idempotency-key"] = idempotencyKey
	}
	if err := c.do(ctx, http.MethodPost, "/v1/customers", req, &view, headers); err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.IsCustomerConflict() {
			apiErr.ExistingCustomerID = extractCustomerIDFromError(apiErr.Body)
		}
		return nil, err
	}
	return &view, nil
}

// GetCustomer fetches the provider's current view of a customer.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*domain.CustomerView, error) {
	var view domain.CustomerView
	path := fmt.Sprintf("/v1/customers/%s", customerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &view, nil); err != nil {
		return nil, err
	}
	return &view, nil
}

// UpdateCustomerAgreement attaches a signed agreement to an existing customer.
func (c *Client) UpdateCustomerAgreement(ctx context.Context, customerID, agreementID string) error {
	body := map[string]interface{}{
		"data": map[string]interface{}{
			"type": "Agreement",
			"attributes": map[string]string{
				"signedAgreementId": agreementID,
			},
		},
	}
	path := fmt.Sprintf("/v1/customers/%s/agreement", customerID)
	return c.do(ctx, http.MethodPut, path, body, nil, nil)
}

// CreateTosLink issues a standalone terms-of-service signing link. Only valid
// before a customer record exists; existing customers must use
// GetTosAcceptanceLink.
func (c *Client) CreateTosLink(ctx context.Context, req domain.CreateTosLinkRequest) (*domain.TosLink, error) {
	var resp domain.ResourceResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tos_links", req, &resp, nil); err != nil {
		return nil, err
	}
	return tosLinkFromResponse(resp), nil
}

// GetTosAcceptanceLink issues a terms acceptance link scoped to an existing
// customer. The standalone endpoint is not guaranteed to be available once
// the customer exists.
func (c *Client) GetTosAcceptanceLink(ctx context.Context, customerID string) (*domain.TosLink, error) {
	var resp domain.ResourceResponse
	path := fmt.Sprintf("/v1/customers/%s/tos_link", customerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, nil); err != nil {
		return nil, err
	}
	return tosLinkFromResponse(resp), nil
}

// GetSignedAgreementStatus reports whether the agreement behind a terms link
// has been signed.
func (c *Client) GetSignedAgreementStatus(ctx context.Context, linkID string) (*domain.AgreementStatus, error) {
	var resp domain.ResourceResponse
	path := fmt.Sprintf("/v1/tos_links/%s", linkID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, nil); err != nil {
		return nil, err
	}

	status := &domain.AgreementStatus{LinkID: resp.Data.ID}
	if attrs, ok := resp.Data.Attributes.(map[string]interface{}); ok {
		if signed, ok := attrs["signed"].(bool); ok {
			status.Signed = signed
		}
		if s, ok := attrs["status"].(string); ok && strings.EqualFold(s, "signed") {
			status.Signed = true
		}
		if id, ok := attrs["agreementId"].(string); ok {
			status.AgreementID = id
		}
	}
	return status, nil
}

// CreateWallet provisions a custody wallet for a customer in one currency.
func (c *Client) CreateWallet(ctx context.Context, customerID, currency string) (*domain.ResourceResponse, error) {
	req := domain.CreateWalletRequest{
		Data: domain.RequestData{
			Type:          "Wallet",
			Attributes:    domain.WalletAttributes{Currency: currency},
			Relationships: customerRelationship(customerID),
		},
	}
	var resp domain.ResourceResponse
	if err := c.do(ctx, http.MethodPost, "/v1/wallets", req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateVirtualAccount provisions a virtual bank account for a customer in
// one currency.
func (c *Client) CreateVirtualAccount(ctx context.Context, customerID, currency string) (*domain.ResourceResponse, error) {
	req := domain.CreateVirtualAccountRequest{
		Data: domain.RequestData{
			Type:          "VirtualAccount",
			Attributes:    domain.VirtualAccountAttributes{Currency: currency},
			Relationships: customerRelationship(customerID),
		},
	}
	var resp domain.ResourceResponse
	if err := c.do(ctx, http.MethodPost, "/v1/virtual_accounts", req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

func customerRelationship(customerID string) map[string]interface{} {
	rel := domain.CustomerRelationship{}
	rel.Data.ID = customerID
	rel.Data.Type = "Customer"
	return map[string]interface{}{"customer": rel}
}

func tosLinkFromResponse(resp domain.ResourceResponse) *domain.TosLink {
	link := &domain.TosLink{ID: resp.Data.ID}
	if attrs, ok := resp.Data.Attributes.(map[string]interface{}); ok {
		if u, ok := attrs["url"].(string); ok {
			link.URL = u
		}
	}
	return link
}

// do performs one provider call: marshal, send, check status, decode.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewBuffer(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	c.setHeaders(httpReq)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to provider: %w", err)
	}
	defer resp.Body.Close()

	// Both 200 OK and 201 Created are valid success responses.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.handleErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode successful response: %w", err)
	}
	return nil
}

// setHeaders adds the authentication and content-type headers to the request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-provider-key", c.APIKey)
}

// handleErrorResponse reads the body of a failed API call and returns a
// normalized *APIError.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Failed to read error response body: %v", err)
		return &APIError{StatusCode: resp.StatusCode, Body: "(unreadable response body)"}
	}
	return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
}

// extractCustomerIDFromError attempts to extract a customer id from provider
// "already exists" error responses. Best effort: the provider does not expose
// a standard field for the conflicting id.
func extractCustomerIDFromError(errorBody string) string {
	// Provider customer ids follow the pattern <number>-cus_<suffix>.
	for _, line := range strings.Split(errorBody, "\n") {
		if !strings.Contains(line, "-cus_") {
			continue
		}
		for _, part := range strings.Fields(line) {
			if !strings.Contains(part, "-cus_") {
				continue
			}
			cleanID := strings.Trim(part, ".,;:\"'()[]{}")
			if len(cleanID) > 10 && strings.Contains(cleanID, "-cus_") {
				return cleanID
			}
		}
	}
	return ""
}
