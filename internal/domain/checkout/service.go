// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/domain/cart"
	"github.com/your-org/commerce-core/internal/domain/inventory"
	"github.com/your-org/commerce-core/internal/domain/order"
	"github.com/your-org/commerce-core/internal/domain/payment"
	"github.com/your-org/commerce-core/internal/domain/user"
	"github.com/your-org/commerce-core/internal/infrastructure/database/redis"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
	"github.com/your-org/commerce-core/internal/pkg/email"
)

const (
	appliedCouponKeyFormat = "applied_coupon:%d"
	appliedCouponTTL       = 24 * time.Hour
)

// Service orchestrates the checkout workflow: staging the cart, pricing,
// creating the order and payment, and settling payment outcomes. Settlement
// runs payment confirmation, the order transition and the inventory commit
// in one database transaction; the payment-side conditional update decides
// the single winner when a client verify races a webhook.
type Service struct {
	db         *gorm.DB
	carts      *cart.Service
	orders     *order.Service
	payments   *payment.Service
	inventory  *inventory.Coordinator
	redis      *redis.Client
	calculator *Calculator
	config     *config.Config
	logger     *logrus.Logger
	email      *email.EmailService
}

// NewService creates a new checkout service
func NewService(
	db *gorm.DB,
	carts *cart.Service,
	orders *order.Service,
	payments *payment.Service,
	inv *inventory.Coordinator,
	redisClient *redis.Client,
	calculator *Calculator,
	cfg *config.Config,
	logger *logrus.Logger,
) *Service {
	return &Service{
		db:         db,
		carts:      carts,
		orders:     orders,
		payments:   payments,
		inventory:  inv,
		redis:      redisClient,
		calculator: calculator,
		config:     cfg,
		logger:     logger,
	}
}

// WithEmailService enables buyer notifications. Without it the orchestrator
// runs silently, which is what tests do.
func (s *Service) WithEmailService(mailer *email.EmailService) *Service {
	s.email = mailer
	return s
}

// Summary is the checkout preview: staged cart, pricing and the available
// shipping and payment options.
type Summary struct {
	Staged           *cart.StagedCart `json:"cart"`
	Pricing          Pricing          `json:"pricing"`
	ShippingMethods  []ShippingMethod `json:"shipping_methods"`
	PaymentProviders []string         `json:"payment_providers"`
	AppliedCoupon    *Coupon          `json:"applied_coupon,omitempty"`
}

// PlaceOrderRequest is the checkout submission.
type PlaceOrderRequest struct {
	ShippingAddress  order.Address `json:"shipping_address" binding:"required"`
	ShippingMethodID string        `json:"shipping_method" binding:"required"`
	PaymentProvider  string        `json:"payment_provider" binding:"required"`
	PaymentMethod    string        `json:"payment_method"`
	CouponCode       string        `json:"coupon_code"`
	Notes            string        `json:"notes"`
}

// PlaceOrderResult is what the client needs after checkout: the order, the
// payment row and, for online providers, the intent to hand to the
// provider's checkout UI.
type PlaceOrderResult struct {
	Order         *order.Order     `json:"order"`
	Payment       *payment.Payment `json:"payment"`
	PaymentIntent *payment.Intent  `json:"payment_intent,omitempty"`
}

// GetSummary stages the cart and prices it for preview.
func (s *Service) GetSummary(ctx context.Context, userID uint, sessionID, shippingMethodID string) (*Summary, error) {
	staged, err := s.carts.StageForCheckout(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	var method *ShippingMethod
	if shippingMethodID != "" {
		if method, err = s.calculator.ShippingMethodByID(shippingMethodID); err != nil {
			return nil, err
		}
	}

	coupon := s.appliedCoupon(ctx, userID, staged.Subtotal)
	return &Summary{
		Staged:           staged,
		Pricing:          s.calculator.Compute(staged.Subtotal, coupon, method),
		ShippingMethods:  s.calculator.Methods,
		PaymentProviders: s.payments.Providers(),
		AppliedCoupon:    coupon,
	}, nil
}

// ApplyCoupon validates a coupon against the current cart and remembers it
// for the user's next checkout.
func (s *Service) ApplyCoupon(ctx context.Context, userID uint, sessionID, code string) (*Coupon, error) {
	staged, err := s.carts.StageForCheckout(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	coupon, err := s.calculator.CouponByCode(code, staged.Subtotal)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf(appliedCouponKeyFormat, userID)
	if err := s.redis.Set(ctx, key, coupon.Code, appliedCouponTTL); err != nil {
		return nil, apperrors.Internal("failed to save coupon", err)
	}
	return coupon, nil
}

// RemoveCoupon forgets the user's applied coupon.
func (s *Service) RemoveCoupon(ctx context.Context, userID uint) error {
	key := fmt.Sprintf(appliedCouponKeyFormat, userID)
	if err := s.redis.Del(ctx, key); err != nil {
		return apperrors.Internal("failed to remove coupon", err)
	}
	return nil
}

func (s *Service) appliedCoupon(ctx context.Context, userID uint, subtotal int64) *Coupon {
	if userID == 0 || s.redis == nil {
		return nil
	}
	code, err := s.redis.Get(ctx, fmt.Sprintf(appliedCouponKeyFormat, userID))
	if err != nil {
		return nil
	}
	coupon, err := s.calculator.CouponByCode(code, subtotal)
	if err != nil {
		return nil
	}
	return coupon
}

// PlaceOrder runs the checkout workflow. The cart must stage cleanly; a
// staging error (insufficient stock, nothing purchasable) fails checkout
// before any order exists. Order, payment and cart clearing commit in one
// transaction. Cash on delivery then commits inventory and moves the order
// to processing in a second transaction; if that fails the order survives
// in pending with no stock committed.
func (s *Service) PlaceOrder(ctx context.Context, userID uint, sessionID string, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	if userID == 0 {
		return nil, apperrors.Unauthorized("checkout requires a signed-in user")
	}

	gatewayName := strings.ToLower(req.PaymentProvider)
	if _, err := s.payments.Gateway(gatewayName); err != nil {
		return nil, err
	}
	method, err := s.calculator.ShippingMethodByID(req.ShippingMethodID)
	if err != nil {
		return nil, err
	}

	staged, err := s.carts.StageForCheckout(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !staged.Valid {
		return nil, apperrors.Validation("cart failed checkout validation", staged.Errors...)
	}

	var buyer user.User
	if err := s.db.First(&buyer, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal("failed to load user", err)
	}

	var coupon *Coupon
	if req.CouponCode != "" {
		if coupon, err = s.calculator.CouponByCode(req.CouponCode, staged.Subtotal); err != nil {
			return nil, err
		}
	} else {
		coupon = s.appliedCoupon(ctx, userID, staged.Subtotal)
	}
	pricing := s.calculator.Compute(staged.Subtotal, coupon, method)

	initialStatus := order.StatusPaymentPending
	if gatewayName == "cod" {
		initialStatus = order.StatusPending
	}

	o := &order.Order{
		UserID:          userID,
		Email:           buyer.Email,
		Status:          initialStatus,
		SubtotalAmount:  pricing.Subtotal,
		TaxAmount:       pricing.Tax,
		ShippingAmount:  pricing.Shipping,
		DiscountAmount:  pricing.Discount,
		TotalAmount:     pricing.Total,
		ShippingAddress: req.ShippingAddress,
		Currency:        s.config.App.Currency,
		Notes:           req.Notes,
		PaymentMethod:   gatewayName,
		ShippingMethod:  method.ID,
		Items:           buildOrderItems(staged.Lines),
	}
	if coupon != nil {
		o.CouponCode = coupon.Code
	}

	var p *payment.Payment
	var intent *payment.Intent
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orders.CreateTx(tx, o); err != nil {
			return err
		}
		var err error
		p, intent, err = s.payments.CreateTx(ctx, tx, &payment.CreateRequest{
			OrderID:     o.ID,
			UserID:      userID,
			OrderNumber: o.OrderNumber,
			Email:       buyer.Email,
			Amount:      pricing.Total,
			Currency:    o.Currency,
			Provider:    gatewayName,
			Method:      req.PaymentMethod,
		})
		if err != nil {
			return err
		}
		return s.carts.ClearTx(tx, userID)
	})
	if err != nil {
		return nil, err
	}

	if coupon != nil && s.redis != nil {
		if err := s.RemoveCoupon(ctx, userID); err != nil {
			s.logger.WithError(err).Warn("Failed to clear applied coupon after checkout")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"user_id":      userID,
		"provider":     gatewayName,
		"total":        pricing.Total,
	}).Info("Order placed")

	if gatewayName == "cod" {
		if err := s.processCOD(o, p.ID, userID); err != nil {
			return nil, err
		}
		if refreshed, err := s.payments.GetPayment(p.ID); err == nil {
			p = refreshed
		}
		s.notifyOrderConfirmed(o, buyer.GetFullName())
	}

	return &PlaceOrderResult{Order: o, Payment: p, PaymentIntent: intent}, nil
}

// processCOD completes the payment, commits inventory and moves a
// cash-on-delivery order to processing. Cash collects on delivery, so the
// payment row completes the moment the order is accepted. All three happen
// in one transaction, so a stock shortfall on any line leaves the order
// untouched in pending with the payment still initiated.
func (s *Service) processCOD(o *order.Order, paymentID, actor uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.payments.ConfirmTx(tx, paymentID, "", ""); err != nil {
			return err
		}
		if err := s.inventory.CommitTx(tx, order.InventoryLines(o.Items)); err != nil {
			return err
		}
		return s.orders.TransitionTx(tx, o, order.StatusProcessing, actor, "COD order confirmed")
	})
}

// VerifyPayment settles a payment from the client's post-checkout callback.
// The provider signature is checked first; settlement is then identical to
// the webhook path.
func (s *Service) VerifyPayment(ctx context.Context, userID, paymentID uint, providerPaymentID, signature string) (*order.Order, error) {
	p, err := s.payments.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && p.UserID != userID {
		return nil, apperrors.NotFound("payment not found")
	}
	if err := s.payments.VerifyClientSignature(p, providerPaymentID, signature); err != nil {
		return nil, err
	}
	return s.settle(p.ID, providerPaymentID, signature)
}

// FailPayment records a failed payment attempt and cancels the order while
// it is still awaiting payment. No inventory was committed, so there is
// nothing to restore.
func (s *Service) FailPayment(ctx context.Context, userID, paymentID uint, reason string) error {
	p, err := s.payments.GetPayment(paymentID)
	if err != nil {
		return err
	}
	if userID != 0 && p.UserID != userID {
		return apperrors.NotFound("payment not found")
	}
	return s.failAndCancel(p, reason)
}

func (s *Service) failAndCancel(p *payment.Payment, reason string) error {
	var cancelled *order.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		failed, err := s.payments.FailTx(tx, p.ID, reason)
		if err != nil {
			return err
		}
		if !failed {
			return nil
		}

		var o order.Order
		if err := tx.Preload("Items").First(&o, p.OrderID).Error; err != nil {
			return apperrors.Internal("failed to load order", err)
		}
		if o.Status != order.StatusPaymentPending {
			return nil
		}
		comment := "Payment failed"
		if reason != "" {
			comment = "Payment failed: " + reason
		}
		if err := s.orders.TransitionTx(tx, &o, order.StatusCancelled, 0, comment); err != nil {
			return err
		}
		cancelled = &o
		return nil
	})
	if err != nil {
		return err
	}

	if cancelled != nil && s.email != nil {
		var buyer user.User
		if err := s.db.First(&buyer, cancelled.UserID).Error; err == nil {
			if err := s.email.SendPaymentFailed(cancelled, buyer.GetFullName(), reason, p.Amount); err != nil {
				s.logger.WithError(err).WithField("order_id", cancelled.ID).
					Warn("Failed to send payment failed email")
			}
		}
	}
	return nil
}

// HandleWebhook authenticates and applies a provider webhook. Signature
// failures surface as unauthorized; after that, processing errors are
// returned for logging but the HTTP layer still acknowledges the delivery.
func (s *Service) HandleWebhook(ctx context.Context, provider string, body []byte, signature string) error {
	gateway, err := s.payments.Gateway(provider)
	if err != nil {
		return err
	}
	if err := gateway.VerifyWebhookSignature(body, signature); err != nil {
		return err
	}

	event, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}

	p, err := s.payments.GetByProviderOrderID(event.ProviderOrderID)
	if err != nil {
		return err
	}

	switch event.Type {
	case payment.EventPaymentCaptured, payment.EventOrderPaid:
		_, err = s.settle(p.ID, event.ProviderPaymentID, "")
		return err
	case payment.EventPaymentFailed:
		return s.failAndCancel(p, event.FailureReason)
	default:
		s.logger.WithField("event", event.Type).Debug("Ignoring webhook event")
		return nil
	}
}

// settle confirms the payment and, when this call wins the confirmation,
// commits inventory and moves the order to processing, all in one
// transaction. A duplicate settlement (webhook redelivery, verify racing a
// webhook) loses the conditional update and returns with no side effects.
func (s *Service) settle(paymentID uint, providerPaymentID, signature string) (*order.Order, error) {
	var settled *order.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		won, err := s.payments.ConfirmTx(tx, paymentID, providerPaymentID, signature)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		var p payment.Payment
		if err := tx.First(&p, paymentID).Error; err != nil {
			return apperrors.Internal("failed to load payment", err)
		}
		var o order.Order
		if err := tx.Preload("Items").First(&o, p.OrderID).Error; err != nil {
			return apperrors.Internal("failed to load order", err)
		}

		if err := s.inventory.CommitTx(tx, order.InventoryLines(o.Items)); err != nil {
			return err
		}
		if err := s.orders.TransitionTx(tx, &o, order.StatusProcessing, 0, "Payment confirmed"); err != nil {
			return err
		}
		settled = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled != nil {
		s.logger.WithFields(logrus.Fields{
			"order_id":   settled.ID,
			"payment_id": paymentID,
		}).Info("Payment settled, order processing")

		var buyer user.User
		if err := s.db.First(&buyer, settled.UserID).Error; err == nil {
			s.notifyOrderConfirmed(settled, buyer.GetFullName())
		}
	}
	return settled, nil
}

// notifyOrderConfirmed sends the confirmation email; delivery failures are
// logged, never surfaced to the buyer.
func (s *Service) notifyOrderConfirmed(o *order.Order, buyerName string) {
	if s.email == nil {
		return
	}
	if err := s.email.SendOrderConfirmation(o, buyerName); err != nil {
		s.logger.WithError(err).WithField("order_id", o.ID).
			Warn("Failed to send order confirmation email")
	}
}

func buildOrderItems(lines []cart.StagedLine) []order.Item {
	items := make([]order.Item, 0, len(lines))
	for _, line := range lines {
		items = append(items, order.Item{
			ProductID:        line.ProductID,
			ProductVariantID: line.ProductVariantID,
			SKU:              line.SKU,
			Name:             line.Name,
			ImageURL:         line.ImageURL,
			VariantTitle:     line.VariantName,
			Quantity:         line.Quantity,
			Price:            line.UnitPrice,
			TotalPrice:       line.TotalPrice,
		})
	}
	return items
}
