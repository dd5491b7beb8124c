// internal/domain/inventory/coordinator_test.go
package inventory

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/commerce-core/internal/domain/product"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&product.Product{}, &product.ProductVariant{}))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, qty int, tracked bool) *product.Product {
	t.Helper()

	p := &product.Product{
		SKU:           "TEE-BLK",
		Name:          "Black Tee",
		Slug:          "black-tee",
		Price:         49900,
		IsActive:      true,
		TrackQuantity: tracked,
		Quantity:      qty,
		IsAvailable:   qty > 0 || !tracked,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestCommitDecrementsStock(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 10, true)
	c := NewCoordinator(db)

	err := c.Commit([]Line{{ProductID: p.ID, SKU: p.SKU, Quantity: 4}})
	require.NoError(t, err)

	var got product.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 6, got.Quantity)
	assert.True(t, got.IsAvailable)
}

func TestCommitExhaustsToZero(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 3, true)
	c := NewCoordinator(db)

	require.NoError(t, c.Commit([]Line{{ProductID: p.ID, Quantity: 3}}))

	var got product.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 0, got.Quantity)
	assert.False(t, got.IsAvailable, "exhausted unit must flip availability off")
}

func TestCommitInsufficientStock(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 2, true)
	c := NewCoordinator(db)

	err := c.Commit([]Line{{ProductID: p.ID, SKU: p.SKU, Quantity: 5}})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))

	// Quantity untouched after the failed commit
	var got product.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 2, got.Quantity)
}

func TestCommitUntrackedIsNoop(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 0, false)
	c := NewCoordinator(db)

	require.NoError(t, c.Commit([]Line{{ProductID: p.ID, Quantity: 99}}))

	var got product.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 0, got.Quantity)
}

func TestCommitBatchAllOrNothing(t *testing.T) {
	db := setupDB(t)
	c := NewCoordinator(db)

	rich := seedProduct(t, db, 10, true)
	poor := &product.Product{
		SKU: "TEE-WHT", Name: "White Tee", Slug: "white-tee",
		Price: 49900, IsActive: true, TrackQuantity: true, Quantity: 1, IsAvailable: true,
	}
	require.NoError(t, db.Create(poor).Error)

	err := c.Commit([]Line{
		{ProductID: rich.ID, Quantity: 5},
		{ProductID: poor.ID, Quantity: 2},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))

	// First line rolled back along with the failed second
	var got product.Product
	require.NoError(t, db.First(&got, rich.ID).Error)
	assert.Equal(t, 10, got.Quantity)
}

func TestSequentialCommitsCannotOversell(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 5, true)
	c := NewCoordinator(db)

	// Eight commits of 1 against a stock of 5: exactly five succeed.
	succeeded := 0
	for i := 0; i < 8; i++ {
		if err := c.Commit([]Line{{ProductID: p.ID, Quantity: 1}}); err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))
		}
	}
	assert.Equal(t, 5, succeeded)

	var got product.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 0, got.Quantity)
	assert.False(t, got.IsAvailable)
}

func TestConcurrentCommitsCannotOversell(t *testing.T) {
	db := setupDB(t)

	// Every pooled connection to an in-memory sqlite database is its own
	// database, so pin the pool to one connection before racing.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	p := seedProduct(t, db, 5, true)
	c := NewCoordinator(db)

	// Eight goroutines race commits of 1 against a stock of 5: exactly
	// five succeed, the rest see insufficient stock.
	const buyers = 8
	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Commit([]Line{{ProductID: p.ID, SKU: p.SKU, Quantity: 1}})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))
		}
	}
	assert.Equal(t, 5, succeeded)

	var got product.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 0, got.Quantity)
	assert.False(t, got.IsAvailable)
}

func TestRestoreAddsStockBack(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 3, true)
	c := NewCoordinator(db)

	require.NoError(t, c.Commit([]Line{{ProductID: p.ID, Quantity: 3}}))
	require.NoError(t, c.Restore([]Line{{ProductID: p.ID, Quantity: 3}}))

	var got product.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 3, got.Quantity)
	assert.True(t, got.IsAvailable, "restore must bring the unit back to available")
}

func TestVariantCommitAndRestore(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 0, true)
	c := NewCoordinator(db)

	v := &product.ProductVariant{
		ProductID: p.ID, SKU: "TEE-BLK-L", Name: "Large",
		Quantity: 2, IsAvailable: true, IsActive: true,
	}
	require.NoError(t, db.Create(v).Error)

	line := Line{ProductID: p.ID, VariantID: &v.ID, SKU: v.SKU, Quantity: 2}
	require.NoError(t, c.Commit([]Line{line}))

	var got product.ProductVariant
	require.NoError(t, db.First(&got, v.ID).Error)
	assert.Equal(t, 0, got.Quantity)
	assert.False(t, got.IsAvailable)

	// Parent product stock is untouched by variant movements
	var parent product.Product
	require.NoError(t, db.First(&parent, p.ID).Error)
	assert.Equal(t, 0, parent.Quantity)

	err := c.Commit([]Line{line})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))

	require.NoError(t, c.Restore([]Line{line}))
	require.NoError(t, db.First(&got, v.ID).Error)
	assert.Equal(t, 2, got.Quantity)
	assert.True(t, got.IsAvailable)
}

func TestCommitRejectsNonPositiveQuantity(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 5, true)
	c := NewCoordinator(db)

	err := c.Commit([]Line{{ProductID: p.ID, Quantity: 0}})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
