/**
 * @description
 * Interfaces the application logic depends on for external collaborators: the
 * provider API gateway and the event bus publisher. Declaring them here keeps
 * the orchestration code independent of the concrete HTTP and AMQP clients
 * and makes the state-machine logic testable with hand-written fakes.
 */
package app

import (
	"context"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// ProviderGateway is the network boundary to the external compliance/custody
// provider. Implemented by providerclient.Client.
type ProviderGateway interface {
	CreateCustomer(ctx context.Context, req domain.CreateCustomerRequest, idempotencyKey string) (*domain.CustomerView, error)
	GetCustomer(ctx context.Context, customerID string) (*domain.CustomerView, error)
	UpdateCustomerAgreement(ctx context.Context, customerID, agreementID string) error
	CreateTosLink(ctx context.Context, req domain.CreateTosLinkRequest) (*domain.TosLink, error)
	GetTosAcceptanceLink(ctx context.Context, customerID string) (*domain.TosLink, error)
	GetSignedAgreementStatus(ctx context.Context, linkID string) (*domain.AgreementStatus, error)
	CreateWallet(ctx context.Context, customerID, currency string) (*domain.ResourceResponse, error)
	CreateVirtualAccount(ctx context.Context, customerID, currency string) (*domain.ResourceResponse, error)
}

// EventPublisher publishes internal events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error
}
