// internal/domain/cart/entity.go
package cart

import (
	"time"
)

// CartItem is a stored cart line for a logged-in user. Guest cart lines live
// in Redis as guestLine JSON under a session key and never touch this table.
type CartItem struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index:idx_cart_user_product,unique" json:"user_id"`
	ProductID        uint      `gorm:"not null;index:idx_cart_user_product,unique" json:"product_id"`
	ProductVariantID *uint     `gorm:"index:idx_cart_user_product,unique" json:"product_variant_id"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	PriceAtAdd       int64     `gorm:"not null" json:"price_at_add"` // Unit price when the line was added, minor units
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (CartItem) TableName() string {
	return "cart_items"
}

// guestLine is the Redis-persisted form of a guest cart line.
type guestLine struct {
	ProductID        uint  `json:"product_id"`
	ProductVariantID *uint `json:"product_variant_id,omitempty"`
	Quantity         int   `json:"quantity"`
	PriceAtAdd       int64 `json:"price_at_add"`
}

// Line is a resolved cart line with live product details, returned to
// clients and consumed by checkout staging.
type Line struct {
	ProductID        uint   `json:"product_id"`
	ProductVariantID *uint  `json:"product_variant_id,omitempty"`
	SKU              string `json:"sku"`
	Name             string `json:"name"`
	VariantName      string `json:"variant_name,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
	Quantity         int    `json:"quantity"`
	Price            int64  `json:"price"` // Current unit price, minor units
	TotalPrice       int64  `json:"total_price"`
	InStock          bool   `json:"in_stock"`
}

// Cart is the resolved cart view.
type Cart struct {
	Items     []Line `json:"items"`
	ItemCount int    `json:"item_count"`
	Subtotal  int64  `json:"subtotal"`
	Currency  string `json:"currency"`
}

// AddItemRequest is the payload for adding a product to the cart.
type AddItemRequest struct {
	ProductID        uint  `json:"product_id" binding:"required"`
	ProductVariantID *uint `json:"product_variant_id"`
	Quantity         int   `json:"quantity" binding:"required,min=1"`
}

// UpdateItemRequest changes the quantity of an existing line.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=0"`
}
