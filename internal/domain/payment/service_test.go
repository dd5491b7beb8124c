// internal/domain/payment/service_test.go
package payment

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// fakeGateway records calls and succeeds unconditionally.
type fakeGateway struct {
	name        string
	refundCalls int
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) CreateIntent(_ context.Context, req *IntentRequest) (*Intent, error) {
	return &Intent{
		ProviderOrderID: "fake_order_" + req.OrderNumber,
		Amount:          req.Amount,
		Currency:        req.Currency,
	}, nil
}

func (f *fakeGateway) VerifySignature(_, _, _ string) error            { return nil }
func (f *fakeGateway) VerifyWebhookSignature(_ []byte, _ string) error { return nil }
func (f *fakeGateway) ParseWebhookEvent(_ []byte) (*WebhookEvent, error) {
	return nil, nil
}

func (f *fakeGateway) CreateRefund(_ context.Context, providerPaymentID string, amount int64, _ string) (*ProviderRefund, error) {
	f.refundCalls++
	return &ProviderRefund{
		ProviderRefundID: fmt.Sprintf("fake_rfnd_%d", f.refundCalls),
		Amount:           amount,
		Status:           "processed",
	}, nil
}

func setupService(t *testing.T) (*Service, *gorm.DB, *fakeGateway) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Payment{}, &Refund{}))

	fake := &fakeGateway{name: "razorpay"}
	cfg := &config.Config{App: config.AppConfig{Currency: "INR"}}
	svc := NewService(db, NewRegistry(fake), cfg, testLogger())
	return svc, db, fake
}

func seedPayment(t *testing.T, db *gorm.DB, status Status, amount int64) *Payment {
	t.Helper()
	p := &Payment{
		OrderID:           1,
		UserID:            1,
		Provider:          "razorpay",
		Amount:            amount,
		Currency:          "INR",
		Status:            status,
		ProviderOrderID:   "order_abc",
		ProviderPaymentID: "pay_xyz",
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestConfirmWinsFromInitiated(t *testing.T) {
	svc, db, _ := setupService(t)
	p := seedPayment(t, db, StatusInitiated, 149900)

	confirmed, err := svc.ConfirmTx(db, p.ID, "pay_new", "sig")
	require.NoError(t, err)
	assert.True(t, confirmed)

	got, err := svc.GetPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "pay_new", got.ProviderPaymentID)
	assert.NotNil(t, got.CompletedAt)
}

func TestConfirmIsIdempotent(t *testing.T) {
	svc, db, _ := setupService(t)
	p := seedPayment(t, db, StatusInitiated, 149900)

	confirmed, err := svc.ConfirmTx(db, p.ID, "pay_xyz", "sig")
	require.NoError(t, err)
	assert.True(t, confirmed)

	// Webhook redelivery confirms again: no error, no second win
	confirmed, err = svc.ConfirmTx(db, p.ID, "pay_xyz", "sig")
	require.NoError(t, err)
	assert.False(t, confirmed)
}

func TestConcurrentConfirmsHaveOneWinner(t *testing.T) {
	svc, db, _ := setupService(t)

	// Every pooled connection to an in-memory sqlite database is its own
	// database, so pin the pool to one connection before racing.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	p := seedPayment(t, db, StatusInitiated, 149900)

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var won bool
			err := db.Transaction(func(tx *gorm.DB) error {
				var txErr error
				won, txErr = svc.ConfirmTx(tx, p.ID, fmt.Sprintf("pay_%d", n), "sig")
				return txErr
			})
			if err == nil {
				wins <- won
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners int
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent confirmation may win")

	got, err := svc.GetPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestConfirmAfterFailureConflicts(t *testing.T) {
	svc, db, _ := setupService(t)
	p := seedPayment(t, db, StatusFailed, 149900)

	confirmed, err := svc.ConfirmTx(db, p.ID, "pay_xyz", "sig")
	require.Error(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestFailAfterCompletionConflicts(t *testing.T) {
	svc, db, _ := setupService(t)
	p := seedPayment(t, db, StatusCompleted, 149900)

	failed, err := svc.FailTx(db, p.ID, "card declined")
	require.Error(t, err)
	assert.False(t, failed)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestFailIsIdempotent(t *testing.T) {
	svc, db, _ := setupService(t)
	p := seedPayment(t, db, StatusPending, 149900)

	failed, err := svc.FailTx(db, p.ID, "card declined")
	require.NoError(t, err)
	assert.True(t, failed)

	failed, err = svc.FailTx(db, p.ID, "card declined")
	require.NoError(t, err)
	assert.False(t, failed)

	got, err := svc.GetPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "card declined", got.FailureReason)
	assert.NotNil(t, got.FailedAt)
}

func TestConfirmMissingPayment(t *testing.T) {
	svc, db, _ := setupService(t)

	_, err := svc.ConfirmTx(db, 999, "pay_xyz", "sig")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestPartialThenFullRefund(t *testing.T) {
	svc, db, fake := setupService(t)
	p := seedPayment(t, db, StatusCompleted, 100000)
	ctx := context.Background()

	refund, err := svc.Refund(ctx, p.ID, 30000, "damaged item", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), refund.Amount)
	assert.Equal(t, "processed", refund.Status, "provider refund state must be kept on the record")
	assert.Equal(t, 1, fake.refundCalls)

	var stored Refund
	require.NoError(t, db.First(&stored, refund.ID).Error)
	assert.Equal(t, "processed", stored.Status)

	got, err := svc.GetPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyRefunded, got.Status)
	assert.Equal(t, int64(30000), got.TotalRefunded)

	// Refund the remainder
	_, err = svc.Refund(ctx, p.ID, 70000, "order cancelled", 42)
	require.NoError(t, err)

	got, err = svc.GetPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
	assert.Equal(t, int64(100000), got.TotalRefunded)
	assert.Len(t, got.Refunds, 2)

	// Nothing left to refund
	_, err = svc.Refund(ctx, p.ID, 1, "again", 42)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))
}

func TestRefundCannotExceedAmount(t *testing.T) {
	svc, db, fake := setupService(t)
	p := seedPayment(t, db, StatusCompleted, 50000)

	_, err := svc.Refund(context.Background(), p.ID, 60000, "too much", 42)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, 0, fake.refundCalls, "provider must not be called for a rejected refund")
}

func TestRefundRejectedForUnsettledPayment(t *testing.T) {
	svc, db, _ := setupService(t)
	p := seedPayment(t, db, StatusInitiated, 50000)

	_, err := svc.Refund(context.Background(), p.ID, 10000, "early", 42)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))
}

func TestCreateTxInitiatesPayment(t *testing.T) {
	svc, db, _ := setupService(t)

	p, intent, err := svc.CreateTx(context.Background(), db, &CreateRequest{
		OrderID:     7,
		UserID:      3,
		OrderNumber: "ORD-20260827-AB12CD",
		Email:       "buyer@example.com",
		Amount:      149900,
		Currency:    "INR",
		Provider:    "razorpay",
		Method:      "card",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInitiated, p.Status)
	assert.Equal(t, "fake_order_ORD-20260827-AB12CD", p.ProviderOrderID)
	assert.Equal(t, p.ProviderOrderID, intent.ProviderOrderID)

	_, _, err = svc.CreateTx(context.Background(), db, &CreateRequest{
		OrderID: 7, UserID: 3, Amount: 0, Provider: "razorpay",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, _, err = svc.CreateTx(context.Background(), db, &CreateRequest{
		OrderID: 7, UserID: 3, Amount: 100, Provider: "paypal",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
