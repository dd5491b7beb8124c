// internal/domain/product/entity.go
package product

import (
	"time"

	"gorm.io/gorm"
)

// Product represents the product entity. Catalog management is handled by a
// separate service; this backend only reads products for carts and orders and
// mutates the inventory unit fields (Quantity, IsAvailable) through the
// inventory coordinator.
type Product struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	SKU         string `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name        string `gorm:"not null;size:255" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	Price       int64  `gorm:"not null" json:"price"` // Price in minor currency units
	ImageURL    string `gorm:"size:500" json:"image_url"`
	// Boolean flags carry no column default: gorm omits zero-valued fields
	// with a default tag from the INSERT, which would silently turn a false
	// into the default. Creators set these explicitly.
	IsActive      bool           `json:"is_active"`
	TrackQuantity bool           `json:"track_quantity"`
	Quantity      int            `gorm:"default:0" json:"quantity"`
	IsAvailable   bool           `json:"is_available"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Variants []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"variants,omitempty"`
}

// ProductVariant represents product variants (size, color, etc.). A variant
// carries its own inventory unit; when set, its price overrides the product's.
type ProductVariant struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProductID   uint           `gorm:"not null;index" json:"product_id"`
	SKU         string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name        string         `gorm:"not null;size:255" json:"name"`
	Price       int64          `json:"price"` // Override product price if set
	Quantity    int            `gorm:"default:0" json:"quantity"`
	IsAvailable bool           `json:"is_available"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Product) TableName() string        { return "products" }
func (ProductVariant) TableName() string { return "product_variants" }

// Business methods for Product

func (p *Product) IsInStock() bool {
	return p.Quantity > 0 || !p.TrackQuantity
}

// EffectivePrice returns the unit price for a cart line, honoring variant
// price overrides.
func (p *Product) EffectivePrice(variant *ProductVariant) int64 {
	if variant != nil && variant.Price > 0 {
		return variant.Price
	}
	return p.Price
}

func (p *Product) GetFormattedPrice() float64 {
	return float64(p.Price) / 100
}
