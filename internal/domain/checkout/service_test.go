// internal/domain/checkout/service_test.go
package checkout

import (
	"context"
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/domain/cart"
	"github.com/your-org/commerce-core/internal/domain/inventory"
	"github.com/your-org/commerce-core/internal/domain/order"
	"github.com/your-org/commerce-core/internal/domain/payment"
	"github.com/your-org/commerce-core/internal/domain/product"
	"github.com/your-org/commerce-core/internal/domain/user"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// stubGateway stands in for an online provider. Intents are synthetic and
// signatures verify unless failVerify is set.
type stubGateway struct {
	gatewayName  string
	failVerify   bool
	webhookEvent *payment.WebhookEvent
}

func (g *stubGateway) Name() string { return g.gatewayName }

func (g *stubGateway) CreateIntent(_ context.Context, req *payment.IntentRequest) (*payment.Intent, error) {
	return &payment.Intent{
		ProviderOrderID: "stub_order_" + req.OrderNumber,
		Amount:          req.Amount,
		Currency:        req.Currency,
	}, nil
}

func (g *stubGateway) VerifySignature(_, _, _ string) error {
	if g.failVerify {
		return apperrors.Unauthorized("invalid payment signature")
	}
	return nil
}

func (g *stubGateway) VerifyWebhookSignature(_ []byte, signature string) error {
	if signature != "valid" {
		return apperrors.Unauthorized("invalid webhook signature")
	}
	return nil
}

func (g *stubGateway) ParseWebhookEvent(_ []byte) (*payment.WebhookEvent, error) {
	return g.webhookEvent, nil
}

func (g *stubGateway) CreateRefund(_ context.Context, providerPaymentID string, amount int64, _ string) (*payment.ProviderRefund, error) {
	return &payment.ProviderRefund{ProviderRefundID: "stub_rfnd", Amount: amount, Status: "processed"}, nil
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	carts    *cart.Service
	orders   *order.Service
	payments *payment.Service
	razorpay *stubGateway
	buyer    *user.User
}

func newFixture(t *testing.T, calc *Calculator) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&user.User{}, &user.Address{},
		&product.Product{}, &product.ProductVariant{},
		&cart.CartItem{},
		&order.Order{}, &order.Item{}, &order.StatusHistory{}, &order.AdminNote{},
		&payment.Payment{}, &payment.Refund{},
	))

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{App: config.AppConfig{Currency: "INR"}}
	razorpay := &stubGateway{gatewayName: "razorpay"}
	registry := payment.NewRegistry(razorpay, payment.NewCODGateway())

	inv := inventory.NewCoordinator(db)
	carts := cart.NewService(db, nil, cfg, log)
	orders := order.NewService(db, inv, cfg)
	payments := payment.NewService(db, registry, cfg, log)
	svc := NewService(db, carts, orders, payments, inv, nil, calc, cfg, log)

	buyer := &user.User{Email: "buyer@example.com", Password: "x", FirstName: "Asha", IsActive: true}
	require.NoError(t, db.Create(buyer).Error)

	return &fixture{
		db: db, svc: svc, carts: carts, orders: orders,
		payments: payments, razorpay: razorpay, buyer: buyer,
	}
}

func (f *fixture) seedProduct(t *testing.T, sku string, price int64, qty int) *product.Product {
	t.Helper()
	p := &product.Product{
		SKU: sku, Name: sku, Slug: sku,
		Price: price, IsActive: true, TrackQuantity: true,
		Quantity: qty, IsAvailable: qty > 0,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) addToCart(t *testing.T, productID uint, qty int) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), f.buyer.ID, "", &cart.AddItemRequest{
		ProductID: productID,
		Quantity:  qty,
	})
	require.NoError(t, err)
}

func placeOrderRequest(provider string) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		ShippingAddress: order.Address{
			FirstName: "Asha", LastName: "Rao",
			AddressLine1: "12 MG Road", City: "Bengaluru",
			State: "KA", PostalCode: "560001", Country: "IN",
		},
		ShippingMethodID: "flat",
		PaymentProvider:  provider,
	}
}

func TestCODCheckoutCommitsStockAndProcessesOrder(t *testing.T) {
	f := newFixture(t, flatShippingCalculator())
	ctx := context.Background()

	cheap := f.seedProduct(t, "MUG", 50000, 10)
	dear := f.seedProduct(t, "LAMP", 150000, 5)
	f.addToCart(t, cheap.ID, 2)
	f.addToCart(t, dear.ID, 1)

	result, err := f.svc.PlaceOrder(ctx, f.buyer.ID, "", placeOrderRequest("cod"))
	require.NoError(t, err)

	assert.Equal(t, int64(250000), result.Order.SubtotalAmount)
	assert.Equal(t, int64(5000), result.Order.ShippingAmount)
	assert.Equal(t, int64(0), result.Order.TaxAmount)
	assert.Equal(t, int64(255000), result.Order.TotalAmount)
	assert.Equal(t, order.StatusProcessing, result.Order.Status)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{6}$`, result.Order.OrderNumber)

	// Cash collects on delivery: the payment completes with the order, so
	// refunds and the status endpoint see a settled payment.
	assert.Equal(t, payment.StatusCompleted, result.Payment.Status)
	pay, err := f.payments.GetPayment(result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, pay.Status)
	assert.NotNil(t, pay.CompletedAt)

	var p1, p2 product.Product
	require.NoError(t, f.db.First(&p1, cheap.ID).Error)
	require.NoError(t, f.db.First(&p2, dear.ID).Error)
	assert.Equal(t, 8, p1.Quantity)
	assert.Equal(t, 4, p2.Quantity)

	// Cart cleared by checkout
	c, err := f.carts.GetCart(ctx, f.buyer.ID, "")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	// History: created then processing
	got, err := f.orders.GetOrder(result.Order.ID)
	require.NoError(t, err)
	require.Len(t, got.StatusHistory, 2)
	assert.Equal(t, order.StatusPending, got.StatusHistory[0].Status)
	assert.Equal(t, order.StatusProcessing, got.StatusHistory[1].Status)
}

func TestOnlineCheckoutVerifyThenDuplicateWebhook(t *testing.T) {
	f := newFixture(t, flatShippingCalculator())
	ctx := context.Background()

	p := f.seedProduct(t, "WATCH", 1000000, 3)
	f.addToCart(t, p.ID, 1)

	result, err := f.svc.PlaceOrder(ctx, f.buyer.ID, "", placeOrderRequest("razorpay"))
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentPending, result.Order.Status)
	require.NotNil(t, result.PaymentIntent)
	assert.Equal(t, "stub_order_"+result.Order.OrderNumber, result.PaymentIntent.ProviderOrderID)

	// No stock committed while payment is pending
	var live product.Product
	require.NoError(t, f.db.First(&live, p.ID).Error)
	assert.Equal(t, 3, live.Quantity)

	settled, err := f.svc.VerifyPayment(ctx, f.buyer.ID, result.Payment.ID, "pay_abc", "sig")
	require.NoError(t, err)
	require.NotNil(t, settled)
	assert.Equal(t, order.StatusProcessing, settled.Status)

	pay, err := f.payments.GetPayment(result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, pay.Status)

	require.NoError(t, f.db.First(&live, p.ID).Error)
	assert.Equal(t, 2, live.Quantity)

	// The provider redelivers the captured event: no second commit, no
	// second transition.
	f.razorpay.webhookEvent = &payment.WebhookEvent{
		Type:              payment.EventPaymentCaptured,
		ProviderOrderID:   pay.ProviderOrderID,
		ProviderPaymentID: "pay_abc",
	}
	require.NoError(t, f.svc.HandleWebhook(ctx, "razorpay", []byte(`{}`), "valid"))

	require.NoError(t, f.db.First(&live, p.ID).Error)
	assert.Equal(t, 2, live.Quantity, "duplicate webhook must not re-commit stock")

	got, err := f.orders.GetOrder(result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Len(t, got.StatusHistory, 2, "duplicate webhook must not append history")
}

func TestWebhookBadSignatureRejected(t *testing.T) {
	f := newFixture(t, flatShippingCalculator())

	err := f.svc.HandleWebhook(context.Background(), "razorpay", []byte(`{}`), "forged")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
}

func TestCheckoutFailsWhenStockShort(t *testing.T) {
	f := newFixture(t, flatShippingCalculator())
	ctx := context.Background()

	p := f.seedProduct(t, "SHOE", 200000, 5)
	f.addToCart(t, p.ID, 5)

	// Stock drops to 3 after the item went into the cart
	require.NoError(t, f.db.Model(&product.Product{}).
		Where("id = ?", p.ID).Update("quantity", 3).Error)

	_, err := f.svc.PlaceOrder(ctx, f.buyer.ID, "", placeOrderRequest("cod"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	require.NotEmpty(t, appErr.Details)
	assert.Contains(t, appErr.Details[0], "SHOE")

	var count int64
	require.NoError(t, f.db.Model(&order.Order{}).Count(&count).Error)
	assert.Zero(t, count, "no order may exist after failed staging")
}

func TestCODPartialStockFailureLeavesOrderPending(t *testing.T) {
	f := newFixture(t, flatShippingCalculator())

	rich := f.seedProduct(t, "PEN", 10000, 10)
	poor := f.seedProduct(t, "INK", 5000, 1)

	o := &order.Order{
		UserID: f.buyer.ID,
		Email:  f.buyer.Email,
		Status: order.StatusPending,
		Items: []order.Item{
			{ProductID: rich.ID, SKU: "PEN", Name: "PEN", Quantity: 2, Price: 10000, TotalPrice: 20000},
			{ProductID: poor.ID, SKU: "INK", Name: "INK", Quantity: 3, Price: 5000, TotalPrice: 15000},
		},
		SubtotalAmount: 35000, TotalAmount: 35000,
	}
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.orders.CreateTx(tx, o)
	}))
	pay := &payment.Payment{
		OrderID: o.ID, UserID: f.buyer.ID, Provider: "cod",
		Amount: o.TotalAmount, Currency: "INR", Status: payment.StatusInitiated,
	}
	require.NoError(t, f.db.Create(pay).Error)

	err := f.svc.processCOD(o, pay.ID, f.buyer.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))

	// Whole transaction rolled back: order still pending, payment still
	// initiated, no stock moved
	got, err := f.orders.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)

	reloaded, err := f.payments.GetPayment(pay.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusInitiated, reloaded.Status)

	var p1, p2 product.Product
	require.NoError(t, f.db.First(&p1, rich.ID).Error)
	require.NoError(t, f.db.First(&p2, poor.ID).Error)
	assert.Equal(t, 10, p1.Quantity)
	assert.Equal(t, 1, p2.Quantity)
}

func TestFailPaymentCancelsAwaitingOrder(t *testing.T) {
	f := newFixture(t, flatShippingCalculator())
	ctx := context.Background()

	p := f.seedProduct(t, "BAG", 300000, 2)
	f.addToCart(t, p.ID, 1)

	result, err := f.svc.PlaceOrder(ctx, f.buyer.ID, "", placeOrderRequest("razorpay"))
	require.NoError(t, err)

	require.NoError(t, f.svc.FailPayment(ctx, f.buyer.ID, result.Payment.ID, "card declined"))

	pay, err := f.payments.GetPayment(result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, pay.Status)
	assert.Equal(t, "card declined", pay.FailureReason)

	got, err := f.orders.GetOrder(result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	// Confirming after failure is a conflict
	_, err = f.svc.VerifyPayment(ctx, f.buyer.ID, result.Payment.ID, "pay_abc", "sig")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	// Stock was never committed
	var live product.Product
	require.NoError(t, f.db.First(&live, p.ID).Error)
	assert.Equal(t, 2, live.Quantity)
}

func TestVerifyPaymentRejectsForeignUser(t *testing.T) {
	f := newFixture(t, flatShippingCalculator())
	ctx := context.Background()

	p := f.seedProduct(t, "HAT", 50000, 5)
	f.addToCart(t, p.ID, 1)

	result, err := f.svc.PlaceOrder(ctx, f.buyer.ID, "", placeOrderRequest("razorpay"))
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(ctx, f.buyer.ID+1, result.Payment.ID, "pay_abc", "sig")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestCancelProcessingOrderRestoresStock(t *testing.T) {
	f := newFixture(t, flatShippingCalculator())
	ctx := context.Background()

	p := f.seedProduct(t, "DESK", 500000, 4)
	f.addToCart(t, p.ID, 2)

	result, err := f.svc.PlaceOrder(ctx, f.buyer.ID, "", placeOrderRequest("cod"))
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, result.Order.Status)

	var live product.Product
	require.NoError(t, f.db.First(&live, p.ID).Error)
	assert.Equal(t, 2, live.Quantity)

	cancelled, err := f.orders.CancelOrder(result.Order.ID, f.buyer.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	require.NoError(t, f.db.First(&live, p.ID).Error)
	assert.Equal(t, 4, live.Quantity, "cancelling a processing order restores committed stock")
	assert.True(t, live.IsAvailable)
}
