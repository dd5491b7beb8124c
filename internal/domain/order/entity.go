// internal/domain/order/entity.go
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status represents the order status
type Status string

const (
	StatusPaymentPending Status = "payment_pending"
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
	StatusOnHold         Status = "on_hold"
)

// AllStatuses lists every order status, for validation and exhaustive tests.
var AllStatuses = []Status{
	StatusPaymentPending,
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
	StatusRefunded,
	StatusOnHold,
}

// AllowedNext returns the set of statuses reachable from current. Cancelled
// and refunded are terminal.
func AllowedNext(current Status) []Status {
	switch current {
	case StatusPaymentPending:
		return []Status{StatusPending, StatusProcessing, StatusCancelled}
	case StatusPending:
		return []Status{StatusProcessing, StatusCancelled}
	case StatusProcessing:
		return []Status{StatusShipped, StatusOnHold, StatusCancelled}
	case StatusShipped:
		return []Status{StatusDelivered}
	case StatusDelivered:
		return []Status{StatusCompleted, StatusRefunded}
	case StatusCompleted:
		return []Status{StatusRefunded}
	case StatusOnHold:
		return []Status{StatusProcessing, StatusCancelled}
	default:
		return nil
	}
}

// CanTransition reports whether moving from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, s := range AllowedNext(from) {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(s Status) bool {
	return len(AllowedNext(s)) == 0
}

// IsValidStatus reports whether s is a member of the status vocabulary.
func IsValidStatus(s Status) bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Order represents the order entity. Line items and the pricing breakdown are
// frozen at creation; only status, tracking and notes mutate afterwards.
type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderNumber string `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	UserID      uint   `gorm:"not null;index" json:"user_id"`
	Email       string `gorm:"not null;size:255" json:"email"`
	Status      Status `gorm:"not null;default:'payment_pending'" json:"status"`

	// Financial information, minor currency units
	SubtotalAmount int64 `gorm:"not null" json:"subtotal_amount"`
	TaxAmount      int64 `gorm:"default:0" json:"tax_amount"`
	ShippingAmount int64 `gorm:"default:0" json:"shipping_amount"`
	DiscountAmount int64 `gorm:"default:0" json:"discount_amount"`
	TotalAmount    int64 `gorm:"not null" json:"total_amount"`

	// Shipping address snapshot
	ShippingAddress Address `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`

	Currency      string `gorm:"size:3;default:'INR'" json:"currency"`
	Notes         string `gorm:"type:text" json:"notes"`
	CouponCode    string `gorm:"size:50" json:"coupon_code"`
	PaymentMethod string `gorm:"size:50" json:"payment_method"`

	// Shipping information
	ShippingMethod  string `gorm:"size:100" json:"shipping_method"`
	TrackingNumber  string `gorm:"size:100" json:"tracking_number"`
	ShippingCarrier string `gorm:"size:50" json:"shipping_carrier"`

	// Timestamps
	ProcessedAt *time.Time     `json:"processed_at"`
	ShippedAt   *time.Time     `json:"shipped_at"`
	DeliveredAt *time.Time     `json:"delivered_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	CancelledAt *time.Time     `json:"cancelled_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []Item          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []StatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
	AdminNotes    []AdminNote     `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"admin_notes,omitempty"`
}

// Item represents a line item in an order. Every field is a frozen copy of
// product/variant state at order-creation time, never re-read from the
// catalog, so historical orders stay stable when the catalog changes.
type Item struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	OrderID          uint      `gorm:"not null;index" json:"order_id"`
	ProductID        uint      `gorm:"not null;index" json:"product_id"`
	ProductVariantID *uint     `gorm:"index" json:"product_variant_id"`
	SKU              string    `gorm:"not null;size:100" json:"sku"`
	Name             string    `gorm:"not null;size:255" json:"name"`
	ImageURL         string    `gorm:"size:500" json:"image_url"`
	VariantTitle     string    `gorm:"size:255" json:"variant_title"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	Price            int64     `gorm:"not null" json:"price"`       // Price per unit in minor units
	TotalPrice       int64     `gorm:"not null" json:"total_price"` // Quantity * Price
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StatusHistory tracks order status changes. Rows are append-only; the first
// entry ("Order created") is written inside the creation transaction.
type StatusHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	Status    Status    `gorm:"not null" json:"status"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedBy uint      `gorm:"index" json:"created_by"` // User ID who made the change; 0 for system
	CreatedAt time.Time `json:"created_at"`
}

// AdminNote is an append-only internal note on an order.
type AdminNote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	Note      string    `gorm:"type:text;not null" json:"note"`
	CreatedBy uint      `gorm:"index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Address represents the shipping address snapshot (embedded in Order)
type Address struct {
	FirstName    string `gorm:"size:100" json:"first_name"`
	LastName     string `gorm:"size:100" json:"last_name"`
	AddressLine1 string `gorm:"size:255" json:"address_line1"`
	AddressLine2 string `gorm:"size:255" json:"address_line2"`
	City         string `gorm:"size:100" json:"city"`
	State        string `gorm:"size:100" json:"state"`
	PostalCode   string `gorm:"size:20" json:"postal_code"`
	Country      string `gorm:"size:2" json:"country"`
	Phone        string `gorm:"size:20" json:"phone"`
}

// TableName overrides
func (Order) TableName() string         { return "orders" }
func (Item) TableName() string          { return "order_items" }
func (StatusHistory) TableName() string { return "order_status_history" }
func (AdminNote) TableName() string     { return "order_admin_notes" }

// NewOrderNumber generates a date-prefixed order number with a random
// suffix: ORD-YYYYMMDD-XXXXXX. Assigned exactly once, at creation.
func NewOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}

// Business methods for Order

// CanBeCancelled checks if the order can be cancelled from its current status
func (o *Order) CanBeCancelled() bool {
	return CanTransition(o.Status, StatusCancelled)
}

// InventoryCommitted reports whether stock has been committed for this
// order. Commit happens when the order enters processing, never earlier.
func (o *Order) InventoryCommitted() bool {
	switch o.Status {
	case StatusProcessing, StatusShipped, StatusDelivered, StatusCompleted, StatusOnHold:
		return true
	}
	return o.ProcessedAt != nil
}

// GetFormattedTotal returns total amount as a major-unit float for display
func (o *Order) GetFormattedTotal() float64 {
	return float64(o.TotalAmount) / 100
}
