// internal/domain/product/entity_test.go
package product

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Product{}, &ProductVariant{}))
	return db
}

func TestFalseFlagsSurviveCreate(t *testing.T) {
	db := setupDB(t)

	p := &Product{
		SKU: "GIFTCARD-500", Name: "Gift Card", Slug: "gift-card",
		Price: 50000, IsActive: false, TrackQuantity: false, IsAvailable: false,
	}
	require.NoError(t, db.Create(p).Error)

	var got Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.False(t, got.IsActive)
	assert.False(t, got.TrackQuantity)
	assert.False(t, got.IsAvailable)

	v := &ProductVariant{
		ProductID: p.ID, SKU: "GIFTCARD-500-X", Name: "Inactive",
		IsAvailable: false, IsActive: false,
	}
	require.NoError(t, db.Create(v).Error)

	var gotVariant ProductVariant
	require.NoError(t, db.First(&gotVariant, v.ID).Error)
	assert.False(t, gotVariant.IsAvailable)
	assert.False(t, gotVariant.IsActive)
}

func TestIsInStockIgnoresQuantityWhenUntracked(t *testing.T) {
	tracked := &Product{TrackQuantity: true, Quantity: 0}
	assert.False(t, tracked.IsInStock())

	untracked := &Product{TrackQuantity: false, Quantity: 0}
	assert.True(t, untracked.IsInStock())
}

func TestEffectivePriceHonorsVariantOverride(t *testing.T) {
	p := &Product{Price: 49900}
	assert.Equal(t, int64(49900), p.EffectivePrice(nil))
	assert.Equal(t, int64(49900), p.EffectivePrice(&ProductVariant{Price: 0}))
	assert.Equal(t, int64(59900), p.EffectivePrice(&ProductVariant{Price: 59900}))
}
