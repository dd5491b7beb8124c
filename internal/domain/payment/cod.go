// internal/domain/payment/cod.go
package payment

import (
	"context"
	"fmt"

	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// CODGateway is the cash-on-delivery adapter. There is no external provider:
// the intent is synthetic, nothing is signed, and refunds are recorded
// without a provider call.
type CODGateway struct{}

// NewCODGateway creates a cash on delivery gateway
func NewCODGateway() *CODGateway {
	return &CODGateway{}
}

func (g *CODGateway) Name() string { return "cod" }

func (g *CODGateway) CreateIntent(_ context.Context, req *IntentRequest) (*Intent, error) {
	return &Intent{
		ProviderOrderID: "cod_" + req.OrderNumber,
		Amount:          req.Amount,
		Currency:        req.Currency,
	}, nil
}

func (g *CODGateway) VerifySignature(_, _, _ string) error {
	return apperrors.Validation("cash on delivery payments are not verified by signature")
}

func (g *CODGateway) VerifyWebhookSignature(_ []byte, _ string) error {
	return apperrors.Validation("cash on delivery has no webhooks")
}

func (g *CODGateway) ParseWebhookEvent(_ []byte) (*WebhookEvent, error) {
	return nil, apperrors.Validation("cash on delivery has no webhooks")
}

func (g *CODGateway) CreateRefund(_ context.Context, providerPaymentID string, amount int64, _ string) (*ProviderRefund, error) {
	return &ProviderRefund{
		ProviderRefundID: fmt.Sprintf("cod_refund_%s", providerPaymentID),
		Amount:           amount,
		Status:           "processed",
	}, nil
}
