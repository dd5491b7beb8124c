// internal/domain/payment/service.go
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// Service owns payment rows and their settlement. Status changes are
// conditional updates keyed on the current status, so duplicate
// confirmations (client verify racing a webhook, or a webhook redelivery)
// resolve to exactly one winner and the rest become no-ops or conflicts.
type Service struct {
	db       *gorm.DB
	registry *Registry
	config   *config.Config
	logger   *logrus.Logger
}

// NewService creates a new payment service
func NewService(db *gorm.DB, registry *Registry, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		db:       db,
		registry: registry,
		config:   cfg,
		logger:   logger,
	}
}

// CreateRequest carries what is needed to open a payment for an order.
type CreateRequest struct {
	OrderID     uint
	UserID      uint
	OrderNumber string
	Email       string
	Amount      int64
	Currency    string
	Provider    string
	Method      string
}

// CreateTx registers the charge with the provider and persists the payment
// row in initiated status, inside the caller's transaction.
func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, req *CreateRequest) (*Payment, *Intent, error) {
	if req.Amount <= 0 {
		return nil, nil, apperrors.Validation("payment amount must be positive")
	}

	gateway, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, nil, err
	}

	intent, err := gateway.CreateIntent(ctx, &IntentRequest{
		OrderNumber: req.OrderNumber,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Email:       req.Email,
		Notes:       map[string]string{"order_number": req.OrderNumber},
	})
	if err != nil {
		return nil, nil, err
	}

	p := &Payment{
		OrderID:         req.OrderID,
		UserID:          req.UserID,
		Provider:        req.Provider,
		Method:          req.Method,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          StatusInitiated,
		ProviderOrderID: intent.ProviderOrderID,
	}
	if err := tx.Create(p).Error; err != nil {
		return nil, nil, apperrors.Internal("failed to create payment", err)
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":        p.ID,
		"order_id":          p.OrderID,
		"provider":          p.Provider,
		"provider_order_id": p.ProviderOrderID,
		"amount":            p.Amount,
	}).Info("Payment initiated")

	return p, intent, nil
}

// GetPayment retrieves a payment by ID with its refunds
func (s *Service) GetPayment(paymentID uint) (*Payment, error) {
	var p Payment
	err := s.db.Preload("Refunds").First(&p, paymentID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("payment not found")
		}
		return nil, apperrors.Internal("failed to get payment", err)
	}
	return &p, nil
}

// GetByProviderOrderID retrieves a payment by the provider's order/intent id
func (s *Service) GetByProviderOrderID(providerOrderID string) (*Payment, error) {
	var p Payment
	err := s.db.Where("provider_order_id = ?", providerOrderID).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("payment not found")
		}
		return nil, apperrors.Internal("failed to get payment", err)
	}
	return &p, nil
}

// GetLatestForOrder returns the most recent payment attempt for an order.
func (s *Service) GetLatestForOrder(orderID uint) (*Payment, error) {
	var p Payment
	err := s.db.Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("no payment for order")
		}
		return nil, apperrors.Internal("failed to get payment", err)
	}
	return &p, nil
}

// VerifyClientSignature checks a client-submitted confirmation signature
// against the payment's provider adapter.
func (s *Service) VerifyClientSignature(p *Payment, providerPaymentID, signature string) error {
	gateway, err := s.registry.Get(p.Provider)
	if err != nil {
		return err
	}
	return gateway.VerifySignature(p.ProviderOrderID, providerPaymentID, signature)
}

// ConfirmTx marks the payment completed with a single conditional update.
// The WHERE clause lists the confirmable statuses, so only one confirmation
// ever takes effect.
//
// Returns confirmed=true when this call won the transition. A payment that
// is already completed returns (false, nil): the duplicate is a no-op and
// the caller must not repeat its side effects. A payment already failed
// returns a conflict.
func (s *Service) ConfirmTx(tx *gorm.DB, paymentID uint, providerPaymentID, signature string) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       StatusCompleted,
		"completed_at": now,
		"updated_at":   now,
	}
	if providerPaymentID != "" {
		updates["provider_payment_id"] = providerPaymentID
	}
	if signature != "" {
		updates["provider_signature"] = signature
	}

	result := tx.Model(&Payment{}).
		Where("id = ? AND status IN ?", paymentID, ConfirmableStatuses).
		Updates(updates)
	if result.Error != nil {
		return false, apperrors.Internal("failed to confirm payment", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.WithFields(logrus.Fields{
			"payment_id":          paymentID,
			"provider_payment_id": providerPaymentID,
		}).Info("Payment confirmed")
		return true, nil
	}

	// Lost the conditional update: find out what state won.
	var p Payment
	if err := tx.First(&p, paymentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, apperrors.NotFound("payment not found")
		}
		return false, apperrors.Internal("failed to load payment", err)
	}
	switch p.Status {
	case StatusCompleted:
		s.logger.WithField("payment_id", paymentID).Info("Duplicate payment confirmation ignored")
		return false, nil
	case StatusFailed:
		return false, apperrors.Conflict(
			fmt.Sprintf("payment %d already failed and cannot be confirmed", paymentID))
	default:
		return false, apperrors.Conflict(
			fmt.Sprintf("payment %d cannot be confirmed from status %s", paymentID, p.Status))
	}
}

// FailTx marks the payment failed, with the same conditional-update shape as
// ConfirmTx. A payment already failed is a no-op; a completed payment cannot
// be failed afterwards.
func (s *Service) FailTx(tx *gorm.DB, paymentID uint, reason string) (bool, error) {
	now := time.Now().UTC()
	result := tx.Model(&Payment{}).
		Where("id = ? AND status IN ?", paymentID, FailableStatuses).
		Updates(map[string]interface{}{
			"status":         StatusFailed,
			"failure_reason": reason,
			"failed_at":      now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, apperrors.Internal("failed to mark payment failed", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.WithFields(logrus.Fields{
			"payment_id": paymentID,
			"reason":     reason,
		}).Warn("Payment failed")
		return true, nil
	}

	var p Payment
	if err := tx.First(&p, paymentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, apperrors.NotFound("payment not found")
		}
		return false, apperrors.Internal("failed to load payment", err)
	}
	switch p.Status {
	case StatusFailed:
		return false, nil
	case StatusCompleted:
		return false, apperrors.Conflict(
			fmt.Sprintf("payment %d is completed and cannot be failed", paymentID))
	default:
		return false, apperrors.Conflict(
			fmt.Sprintf("payment %d cannot be failed from status %s", paymentID, p.Status))
	}
}

// Refund issues a refund with the provider, then records it. The amount
// guard lives in the UPDATE's WHERE clause, so concurrent refunds can never
// push the refunded total past the captured amount.
func (s *Service) Refund(ctx context.Context, paymentID uint, amount int64, reason string, adminID uint) (*Refund, error) {
	if amount <= 0 {
		return nil, apperrors.Validation("refund amount must be positive")
	}

	p, err := s.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if !IsRefundable(p.Status) {
		return nil, apperrors.InvalidTransition(
			fmt.Sprintf("payment %d in status %s cannot be refunded", paymentID, p.Status))
	}
	if amount > p.RemainingRefundable() {
		return nil, apperrors.Validation(
			fmt.Sprintf("refund amount %d exceeds remaining refundable %d", amount, p.RemainingRefundable()))
	}

	gateway, err := s.registry.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	providerRefund, err := gateway.CreateRefund(ctx, p.ProviderPaymentID, amount, reason)
	if err != nil {
		return nil, err
	}

	var record *Refund
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Payment{}).
			Where("id = ? AND total_refunded + ? <= amount AND status IN ?",
				paymentID, amount, RefundableStatuses).
			Update("total_refunded", gorm.Expr("total_refunded + ?", amount))
		if result.Error != nil {
			return apperrors.Internal("failed to record refund total", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict(
				fmt.Sprintf("refund rejected: payment %d changed concurrently or amount exceeds refundable", paymentID))
		}

		var updated Payment
		if err := tx.First(&updated, paymentID).Error; err != nil {
			return apperrors.Internal("failed to reload payment", err)
		}
		newStatus := DeriveRefundStatus(updated.Amount, updated.TotalRefunded)
		if err := tx.Model(&Payment{}).Where("id = ?", paymentID).
			Update("status", newStatus).Error; err != nil {
			return apperrors.Internal("failed to update payment status", err)
		}

		record = &Refund{
			PaymentID:        paymentID,
			ProviderRefundID: providerRefund.ProviderRefundID,
			Amount:           amount,
			Status:           providerRefund.Status,
			Reason:           reason,
			CreatedBy:        adminID,
		}
		if err := tx.Create(record).Error; err != nil {
			return apperrors.Internal("failed to record refund", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":         paymentID,
		"refund_id":          record.ID,
		"provider_refund_id": record.ProviderRefundID,
		"amount":             amount,
	}).Info("Refund recorded")

	return record, nil
}

// Gateway exposes the adapter for a provider, for webhook verification in
// the HTTP layer.
func (s *Service) Gateway(provider string) (Gateway, error) {
	return s.registry.Get(provider)
}

// Providers lists the configured payment providers.
func (s *Service) Providers() []string {
	return s.registry.Providers()
}
