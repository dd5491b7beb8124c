// internal/domain/payment/entity.go
package payment

import (
	"time"

	"gorm.io/gorm"
)

// Status represents the payment status
type Status string

const (
	StatusInitiated         Status = "initiated"
	StatusPending           Status = "pending"
	StatusAuthorized        Status = "authorized"
	StatusCaptured          Status = "captured"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// ConfirmableStatuses are the statuses from which a payment may be confirmed
// as completed. The confirmation update lists them in its WHERE clause, so a
// payment that already reached a settled or failed status cannot be
// confirmed again.
var ConfirmableStatuses = []Status{
	StatusInitiated,
	StatusPending,
	StatusAuthorized,
	StatusCaptured,
}

// FailableStatuses are the statuses from which a payment may be marked failed.
var FailableStatuses = []Status{
	StatusInitiated,
	StatusPending,
	StatusAuthorized,
	StatusCaptured,
}

// RefundableStatuses are the statuses from which a refund may be issued.
var RefundableStatuses = []Status{
	StatusCompleted,
	StatusCaptured,
	StatusPartiallyRefunded,
}

// IsConfirmable reports whether a payment in status s may still be confirmed.
func IsConfirmable(s Status) bool {
	for _, c := range ConfirmableStatuses {
		if s == c {
			return true
		}
	}
	return false
}

// IsRefundable reports whether a payment in status s may be refunded.
func IsRefundable(s Status) bool {
	for _, c := range RefundableStatuses {
		if s == c {
			return true
		}
	}
	return false
}

// DeriveRefundStatus returns the status a payment lands in after refunds
// totalling totalRefunded against an original amount.
func DeriveRefundStatus(amount, totalRefunded int64) Status {
	if totalRefunded >= amount {
		return StatusRefunded
	}
	return StatusPartiallyRefunded
}

// Payment represents one payment attempt against an order. An order can have
// several rows (a failed attempt followed by a retry) but at most one ever
// reaches completed.
type Payment struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	OrderID  uint   `gorm:"not null;index" json:"order_id"`
	UserID   uint   `gorm:"not null;index" json:"user_id"`
	Provider string `gorm:"not null;size:50" json:"provider"` // razorpay, stripe, cod
	Method   string `gorm:"size:50" json:"method"`            // card, upi, netbanking, cod
	Amount   int64  `gorm:"not null" json:"amount"`           // Minor currency units
	Currency string `gorm:"size:3;default:'INR'" json:"currency"`
	Status   Status `gorm:"not null;default:'initiated';index" json:"status"`

	// Provider references
	ProviderOrderID   string `gorm:"size:255;index" json:"provider_order_id"`
	ProviderPaymentID string `gorm:"size:255;index" json:"provider_payment_id"`
	ProviderSignature string `gorm:"size:512" json:"-"`

	FailureReason string `gorm:"size:500" json:"failure_reason,omitempty"`
	TotalRefunded int64  `gorm:"default:0" json:"total_refunded"`

	CompletedAt *time.Time     `json:"completed_at"`
	FailedAt    *time.Time     `json:"failed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Refunds []Refund `gorm:"foreignKey:PaymentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"refunds,omitempty"`
}

// Refund is an append-only record of money returned against a payment.
// Status is the provider's own refund state (Razorpay reports pending until
// the money actually moves, then processed), kept verbatim for support.
type Refund struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	PaymentID        uint      `gorm:"not null;index" json:"payment_id"`
	ProviderRefundID string    `gorm:"size:255" json:"provider_refund_id"`
	Amount           int64     `gorm:"not null" json:"amount"`
	Status           string    `gorm:"size:50" json:"status"`
	Reason           string    `gorm:"size:500" json:"reason"`
	CreatedBy        uint      `gorm:"index" json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName overrides
func (Payment) TableName() string { return "payments" }
func (Refund) TableName() string  { return "payment_refunds" }

// RemainingRefundable returns how much of the payment can still be refunded.
func (p *Payment) RemainingRefundable() int64 {
	remaining := p.Amount - p.TotalRefunded
	if remaining < 0 {
		return 0
	}
	return remaining
}
