// internal/domain/payment/stripe.go
package payment

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// StripeGateway implements Gateway against the Stripe PaymentIntents API.
type StripeGateway struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
	logger        *logrus.Logger

	// webhookTolerance bounds how old a signed webhook timestamp may be.
	webhookTolerance time.Duration
	now              func() time.Time
}

// NewStripeGateway creates a Stripe gateway from configuration.
func NewStripeGateway(cfg *config.StripeConfig, logger *logrus.Logger) *StripeGateway {
	return &StripeGateway{
		secretKey:        cfg.SecretKey,
		webhookSecret:    cfg.WebhookSecret,
		baseURL:          cfg.BaseURL,
		client:           &http.Client{Timeout: cfg.Timeout},
		logger:           logger,
		webhookTolerance: 5 * time.Minute,
		now:              time.Now,
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

type stripePaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// CreateIntent creates a PaymentIntent. Stripe takes form-encoded bodies.
func (g *StripeGateway) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[order_number]", req.OrderNumber)
	if req.Email != "" {
		form.Set("receipt_email", req.Email)
	}

	var intent stripePaymentIntent
	if err := g.makeAPICall(ctx, http.MethodPost, "/payment_intents", form, &intent); err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"provider_order_id": intent.ID,
		"order_number":      req.OrderNumber,
		"amount":            intent.Amount,
	}).Info("Stripe payment intent created")

	return &Intent{
		ProviderOrderID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        strings.ToUpper(intent.Currency),
	}, nil
}

// VerifySignature checks a client-submitted confirmation. Stripe has no
// order/payment pair signature like Razorpay; the client echoes back the
// intent id, and the signature is the HMAC of "<intent_id>|<payment_id>"
// keyed with the webhook secret, issued by our own frontend session.
func (g *StripeGateway) VerifySignature(providerOrderID, providerPaymentID, signature string) error {
	expected := hmacHex(g.webhookSecret, []byte(providerOrderID+"|"+providerPaymentID))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperrors.Unauthorized("invalid payment signature")
	}
	return nil
}

// VerifyWebhookSignature checks the Stripe-Signature header, which carries
// a timestamp and one or more v1 signatures over "<timestamp>.<body>".
func (g *StripeGateway) VerifyWebhookSignature(body []byte, signature string) error {
	var timestamp string
	var candidates []string
	for _, part := range strings.Split(signature, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return apperrors.Unauthorized("invalid webhook signature")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return apperrors.Unauthorized("invalid webhook signature")
	}
	age := g.now().Sub(time.Unix(ts, 0))
	if age > g.webhookTolerance || age < -g.webhookTolerance {
		return apperrors.Unauthorized("webhook timestamp outside tolerance")
	}

	signed := append([]byte(timestamp+"."), body...)
	expected := hmacHex(g.webhookSecret, signed)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return apperrors.Unauthorized("invalid webhook signature")
}

type stripeWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID        string `json:"id"`
			Amount    int64  `json:"amount"`
			LastError struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
			LatestCharge string `json:"latest_charge"`
		} `json:"object"`
	} `json:"data"`
}

// ParseWebhookEvent maps Stripe events onto the neutral event set. For
// Stripe the intent id serves as the provider order id and the charge id as
// the provider payment id.
func (g *StripeGateway) ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var payload stripeWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Validation("malformed webhook payload")
	}

	object := payload.Data.Object
	switch payload.Type {
	case "payment_intent.succeeded":
		return &WebhookEvent{
			Type:              EventPaymentCaptured,
			ProviderOrderID:   object.ID,
			ProviderPaymentID: object.LatestCharge,
			Amount:            object.Amount,
		}, nil
	case "payment_intent.payment_failed":
		return &WebhookEvent{
			Type:              EventPaymentFailed,
			ProviderOrderID:   object.ID,
			ProviderPaymentID: object.LatestCharge,
			Amount:            object.Amount,
			FailureReason:     object.LastError.Message,
		}, nil
	default:
		g.logger.WithField("event", payload.Type).Debug("Ignoring unhandled Stripe event")
		return nil, nil
	}
}

// CreateRefund refunds a charge.
func (g *StripeGateway) CreateRefund(ctx context.Context, providerPaymentID string, amount int64, reason string) (*ProviderRefund, error) {
	form := url.Values{}
	form.Set("charge", providerPaymentID)
	form.Set("amount", strconv.FormatInt(amount, 10))
	if reason != "" {
		form.Set("metadata[reason]", reason)
	}

	var refund stripeRefund
	if err := g.makeAPICall(ctx, http.MethodPost, "/refunds", form, &refund); err != nil {
		return nil, err
	}

	return &ProviderRefund{
		ProviderRefundID: refund.ID,
		Amount:           refund.Amount,
		Status:           refund.Status,
	}, nil
}

func (g *StripeGateway) makeAPICall(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, body)
	if err != nil {
		return apperrors.Internal("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return apperrors.GatewayUnavailable("stripe unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.GatewayUnavailable("failed to read stripe response", err)
	}

	g.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Stripe API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.GatewayUnavailable(
			fmt.Sprintf("stripe returned status %d", resp.StatusCode),
			fmt.Errorf("stripe %s %s: %s", method, endpoint, string(respBody)))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperrors.GatewayUnavailable("malformed stripe response", err)
		}
	}
	return nil
}
