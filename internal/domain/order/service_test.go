// internal/domain/order/service_test.go
package order

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/domain/inventory"
	"github.com/your-org/commerce-core/internal/domain/product"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&product.Product{}, &product.ProductVariant{},
		&Order{}, &Item{}, &StatusHistory{}, &AdminNote{},
	))

	cfg := &config.Config{App: config.AppConfig{Currency: "INR"}}
	return NewService(db, inventory.NewCoordinator(db), cfg), db
}

func seedOrder(t *testing.T, svc *Service, db *gorm.DB, userID uint, status Status) *Order {
	t.Helper()

	o := &Order{
		UserID:         userID,
		Status:         status,
		PaymentMethod:  "razorpay",
		SubtotalAmount: 49900,
		TotalAmount:    49900,
		Items: []Item{{
			ProductID:  1,
			SKU:        "TEE-BLK",
			Name:       "Black Tee",
			Price:      49900,
			Quantity:   1,
			TotalPrice: 49900,
		}},
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.CreateTx(tx, o)
	}))
	return o
}

func TestCreateAssignsNumberAndHistory(t *testing.T) {
	svc, db := setupService(t)

	o := seedOrder(t, svc, db, 7, StatusPaymentPending)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{6}$`, o.OrderNumber)
	assert.Equal(t, "INR", o.Currency)

	var history []StatusHistory
	require.NoError(t, db.Where("order_id = ?", o.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, StatusPaymentPending, history[0].Status)
	assert.Equal(t, "Order created", history[0].Comment)
}

func TestCreateRejectsEmptyOrder(t *testing.T) {
	svc, db := setupService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.CreateTx(tx, &Order{UserID: 1})
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestUpdateStatusFollowsGraph(t *testing.T) {
	svc, db := setupService(t)
	o := seedOrder(t, svc, db, 7, StatusPending)

	updated, err := svc.UpdateStatus(o.ID, StatusProcessing, 99, "Packing started")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, updated.Status)
	assert.NotNil(t, updated.ProcessedAt)

	// Skipping shipped straight to completed is not allowed
	_, err = svc.UpdateStatus(o.ID, StatusCompleted, 99, "")
	assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))
}

func TestTransitionLosesWhenRowMoved(t *testing.T) {
	svc, db := setupService(t)
	o := seedOrder(t, svc, db, 7, StatusPending)

	// Another request moves the order after this one loaded it
	require.NoError(t, db.Model(&Order{}).Where("id = ?", o.ID).
		Update("status", StatusProcessing).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.TransitionTx(tx, o, StatusProcessing, 0, "")
	})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestGetOrderForUserHidesForeignOrders(t *testing.T) {
	svc, db := setupService(t)
	o := seedOrder(t, svc, db, 7, StatusPending)

	_, err := svc.GetOrderForUser(o.ID, 8)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	got, err := svc.GetOrderForUser(o.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)
}

func TestListOrdersPaginatesAndFilters(t *testing.T) {
	svc, db := setupService(t)
	for i := 0; i < 3; i++ {
		seedOrder(t, svc, db, 7, StatusPending)
	}
	seedOrder(t, svc, db, 7, StatusPaymentPending)

	page, err := svc.ListOrders(StatusPending, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Orders, 2)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	_, err = svc.ListOrders(Status("garbage"), 1, 10)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCancelRestoresCommittedStock(t *testing.T) {
	svc, db := setupService(t)

	p := &product.Product{
		SKU: "TEE-BLK", Name: "Black Tee", Slug: "black-tee",
		Price: 49900, IsActive: true, TrackQuantity: true, Quantity: 5, IsAvailable: true,
	}
	require.NoError(t, db.Create(p).Error)

	o := seedOrder(t, svc, db, 7, StatusPending)
	require.NoError(t, db.Model(&Item{}).Where("order_id = ?", o.ID).
		Update("product_id", p.ID).Error)

	// Move to processing and commit the stock the way settlement does
	loaded, err := svc.GetOrder(o.ID)
	require.NoError(t, err)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := inventory.NewCoordinator(db).CommitTx(tx, InventoryLines(loaded.Items)); err != nil {
			return err
		}
		return svc.TransitionTx(tx, loaded, StatusProcessing, 0, "Payment confirmed")
	}))

	cancelled, err := svc.CancelOrder(o.ID, 7, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	var got product.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 5, got.Quantity)
}

func TestCancelRejectsShippedOrder(t *testing.T) {
	svc, db := setupService(t)
	o := seedOrder(t, svc, db, 7, StatusProcessing)

	_, err := svc.UpdateStatus(o.ID, StatusShipped, 99, "")
	require.NoError(t, err)

	_, err = svc.CancelOrder(o.ID, 7, "")
	assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))
}

func TestUpdateTrackingShipsOrder(t *testing.T) {
	svc, db := setupService(t)
	o := seedOrder(t, svc, db, 7, StatusProcessing)

	updated, err := svc.UpdateTracking(o.ID, 99, "TRK123456", "BlueDart")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status)
	assert.Equal(t, "TRK123456", updated.TrackingNumber)
	assert.NotNil(t, updated.ShippedAt)

	_, err = svc.UpdateTracking(o.ID, 99, "", "BlueDart")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
