// internal/domain/payment/razorpay.go
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// RazorpayGateway implements Gateway against the Razorpay Orders API.
type RazorpayGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
	logger        *logrus.Logger
}

// NewRazorpayGateway creates a Razorpay gateway from configuration.
func NewRazorpayGateway(cfg *config.RazorpayConfig, logger *logrus.Logger) *RazorpayGateway {
	return &RazorpayGateway{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       cfg.BaseURL,
		client:        &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}
}

func (g *RazorpayGateway) Name() string { return "razorpay" }

// razorpayOrder is the subset of the Razorpay order resource we read.
type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayRefund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// CreateIntent creates a Razorpay order for the amount. The returned order
// id is what the frontend hands to Razorpay checkout.
func (g *RazorpayGateway) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	payload := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.OrderNumber,
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}

	var order razorpayOrder
	if err := g.makeAPICall(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"provider_order_id": order.ID,
		"receipt":           order.Receipt,
		"amount":            order.Amount,
	}).Info("Razorpay order created")

	return &Intent{
		ProviderOrderID: order.ID,
		Amount:          order.Amount,
		Currency:        order.Currency,
	}, nil
}

// VerifySignature checks the checkout callback signature: HMAC-SHA256 of
// "<order_id>|<payment_id>" keyed with the API secret, hex encoded.
func (g *RazorpayGateway) VerifySignature(providerOrderID, providerPaymentID, signature string) error {
	expected := hmacHex(g.keySecret, []byte(providerOrderID+"|"+providerPaymentID))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperrors.Unauthorized("invalid payment signature")
	}
	return nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header: HMAC-SHA256
// of the raw body keyed with the webhook secret.
func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) error {
	expected := hmacHex(g.webhookSecret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperrors.Unauthorized("invalid webhook signature")
	}
	return nil
}

// razorpayWebhookPayload mirrors the envelope Razorpay posts.
type razorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Amount           int64  `json:"amount"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID     string `json:"id"`
				Amount int64  `json:"amount"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// ParseWebhookEvent maps Razorpay events onto the neutral event set.
// Unhandled event types come back as a nil event, not an error.
func (g *RazorpayGateway) ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var payload razorpayWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Validation("malformed webhook payload")
	}

	switch payload.Event {
	case "payment.captured":
		entity := payload.Payload.Payment.Entity
		return &WebhookEvent{
			Type:              EventPaymentCaptured,
			ProviderOrderID:   entity.OrderID,
			ProviderPaymentID: entity.ID,
			Amount:            entity.Amount,
		}, nil
	case "payment.failed":
		entity := payload.Payload.Payment.Entity
		return &WebhookEvent{
			Type:              EventPaymentFailed,
			ProviderOrderID:   entity.OrderID,
			ProviderPaymentID: entity.ID,
			Amount:            entity.Amount,
			FailureReason:     entity.ErrorDescription,
		}, nil
	case "order.paid":
		entity := payload.Payload.Order.Entity
		return &WebhookEvent{
			Type:            EventOrderPaid,
			ProviderOrderID: entity.ID,
			Amount:          entity.Amount,
		}, nil
	default:
		g.logger.WithField("event", payload.Event).Debug("Ignoring unhandled Razorpay event")
		return nil, nil
	}
}

// CreateRefund issues a refund against a captured payment.
func (g *RazorpayGateway) CreateRefund(ctx context.Context, providerPaymentID string, amount int64, reason string) (*ProviderRefund, error) {
	payload := map[string]interface{}{
		"amount": amount,
	}
	if reason != "" {
		payload["notes"] = map[string]string{"reason": reason}
	}

	var refund razorpayRefund
	endpoint := fmt.Sprintf("/payments/%s/refund", providerPaymentID)
	if err := g.makeAPICall(ctx, http.MethodPost, endpoint, payload, &refund); err != nil {
		return nil, err
	}

	return &ProviderRefund{
		ProviderRefundID: refund.ID,
		Amount:           refund.Amount,
		Status:           refund.Status,
	}, nil
}

// makeAPICall performs an authenticated call against the Razorpay API and
// decodes the response into out.
func (g *RazorpayGateway) makeAPICall(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return apperrors.Internal("failed to encode request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, body)
	if err != nil {
		return apperrors.Internal("failed to build request", err)
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return apperrors.GatewayUnavailable("razorpay unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.GatewayUnavailable("failed to read razorpay response", err)
	}

	g.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Razorpay API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.GatewayUnavailable(
			fmt.Sprintf("razorpay returned status %d", resp.StatusCode),
			fmt.Errorf("razorpay %s %s: %s", method, endpoint, string(respBody)))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperrors.GatewayUnavailable("malformed razorpay response", err)
		}
	}
	return nil
}

func hmacHex(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
