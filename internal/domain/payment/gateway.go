// internal/domain/payment/gateway.go
package payment

import (
	"context"
	"fmt"

	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// Gateway abstracts a payment provider. Each adapter owns its credentials,
// wire format and signature scheme; the payment service only speaks in these
// types.
type Gateway interface {
	// Name returns the provider identifier (razorpay, stripe, cod).
	Name() string

	// CreateIntent registers the pending charge with the provider and
	// returns the reference the client needs to collect payment.
	CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error)

	// VerifySignature checks the signature a client submits after
	// completing payment on the provider's checkout.
	VerifySignature(providerOrderID, providerPaymentID, signature string) error

	// VerifyWebhookSignature authenticates a webhook delivery against the
	// raw request body.
	VerifyWebhookSignature(body []byte, signature string) error

	// ParseWebhookEvent decodes a verified webhook body into the
	// provider-neutral event the service reconciles against.
	ParseWebhookEvent(body []byte) (*WebhookEvent, error)

	// CreateRefund issues a refund with the provider.
	CreateRefund(ctx context.Context, providerPaymentID string, amount int64, reason string) (*ProviderRefund, error)
}

// IntentRequest carries what a provider needs to register a pending charge.
type IntentRequest struct {
	OrderNumber string
	Amount      int64 // Minor currency units
	Currency    string
	Email       string
	Notes       map[string]string
}

// Intent is the provider's handle for a registered charge.
type Intent struct {
	ProviderOrderID string
	ClientSecret    string // Provider-side token the frontend needs, when applicable
	Amount          int64
	Currency        string
}

// Webhook event types, normalized across providers.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// WebhookEvent is the provider-neutral form of a webhook notification.
type WebhookEvent struct {
	Type              string
	ProviderOrderID   string
	ProviderPaymentID string
	Amount            int64
	FailureReason     string
}

// ProviderRefund is the provider's acknowledgement of a refund.
type ProviderRefund struct {
	ProviderRefundID string
	Amount           int64
	Status           string
}

// Registry maps provider names to gateway adapters.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry builds a registry from the given gateways.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

// Get returns the gateway for a provider name.
func (r *Registry) Get(provider string) (Gateway, error) {
	g, ok := r.gateways[provider]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("unsupported payment provider: %s", provider))
	}
	return g, nil
}

// Providers lists the registered provider names.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}
