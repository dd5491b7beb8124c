// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/your-org/commerce-core/internal/domain/checkout"
	"github.com/your-org/commerce-core/internal/domain/order"
	"github.com/your-org/commerce-core/internal/domain/payment"
	"github.com/your-org/commerce-core/internal/interfaces/http/middleware"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// PaymentHandler handles payment verification, webhooks and refunds
type PaymentHandler struct {
	payments *payment.Service
	orders   *order.Service
	checkout *checkout.Service
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *payment.Service, orders *order.Service, checkoutService *checkout.Service, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, orders: orders, checkout: checkoutService, logger: logger}
}

// verifyPaymentRequest carries the gateway callback fields. The stored
// provider order id is authoritative; the signature is checked against it,
// so a tampered provider_order_id fails verification.
type verifyPaymentRequest struct {
	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id" binding:"required"`
	Signature         string `json:"signature" binding:"required"`
}

// VerifyPayment confirms a payment from the client-side callback
// POST /payments/:id/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	paymentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	o, err := h.checkout.VerifyPayment(c.Request.Context(), userID, paymentID, req.ProviderPaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment verified", "order": o})
}

type failPaymentRequest struct {
	Reason string `json:"reason"`
}

// FailPayment records a client-reported payment failure
// POST /payments/:id/failed
func (h *PaymentHandler) FailPayment(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	paymentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req failPaymentRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.checkout.FailPayment(c.Request.Context(), userID, paymentID, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment failure recorded"})
}

// GetStatus returns the payment's current state
// GET /payments/:id/status
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	paymentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	p, err := h.payments.GetPayment(paymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	if p.UserID != userID {
		respondError(c, apperrors.NotFound("payment not found"))
		return
	}

	o, err := h.orders.GetOrder(p.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             p.ID,
		"status":         p.Status,
		"amount":         p.Amount,
		"currency":       p.Currency,
		"total_refunded": p.TotalRefunded,
		"order_id":       o.ID,
		"order_status":   o.Status,
	})
}

// Webhook processes asynchronous gateway notifications
// POST /payments/webhooks/:provider
//
// Rejected signatures get a 401 so the gateway knows the secret is wrong.
// Once the signature checks out the response is always 200; returning an
// error would make the gateway retry an event we have already handled.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}

	err = h.checkout.HandleWebhook(c.Request.Context(), provider, body, webhookSignature(c, provider))
	if err != nil {
		switch apperrors.KindOf(err) {
		case apperrors.KindUnauthorized:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
			return
		case apperrors.KindValidation:
			respondError(c, err)
			return
		}
		h.logger.WithFields(logrus.Fields{
			"provider": provider,
			"error":    err.Error(),
		}).Error("Webhook processing failed")
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// webhookSignature picks the signature header each provider sends.
func webhookSignature(c *gin.Context, provider string) string {
	switch provider {
	case "razorpay":
		return c.GetHeader("X-Razorpay-Signature")
	case "stripe":
		return c.GetHeader("Stripe-Signature")
	default:
		return c.GetHeader("X-Webhook-Signature")
	}
}

type refundRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason"`
}

// AdminRefund issues a full or partial refund through the gateway
// POST /admin/payments/:id/refund
func (h *PaymentHandler) AdminRefund(c *gin.Context) {
	paymentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	adminID, _ := middleware.GetUserIDFromContext(c)
	refund, err := h.payments.Refund(c.Request.Context(), paymentID, req.Amount, req.Reason, adminID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Refund processed", "refund": refund})
}

// AdminGetPayment returns any payment with its refunds
// GET /admin/payments/:id
func (h *PaymentHandler) AdminGetPayment(c *gin.Context) {
	paymentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	p, err := h.payments.GetPayment(paymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
