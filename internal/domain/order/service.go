// internal/domain/order/service.go
package order

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/domain/inventory"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// Service handles order persistence, status transitions and queries. Order
// creation is driven by the checkout orchestrator, which calls CreateTx
// inside its own transaction.
type Service struct {
	db        *gorm.DB
	inventory *inventory.Coordinator
	config    *config.Config
}

// NewService creates a new order service
func NewService(db *gorm.DB, inv *inventory.Coordinator, cfg *config.Config) *Service {
	return &Service{
		db:        db,
		inventory: inv,
		config:    cfg,
	}
}

// ListResponse is a paginated page of orders.
type ListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination holds page metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// CreateTx persists a fully-built order inside the caller's transaction,
// assigning the order number and writing the initial history row. The order
// number is generated exactly once here and never regenerated.
func (s *Service) CreateTx(tx *gorm.DB, o *Order) error {
	if len(o.Items) == 0 {
		return apperrors.Validation("order must contain at least one item")
	}
	if o.OrderNumber == "" {
		o.OrderNumber = NewOrderNumber()
	}
	if o.Currency == "" {
		o.Currency = s.config.App.Currency
	}
	if o.Status == "" {
		o.Status = StatusPaymentPending
	}

	if err := tx.Create(o).Error; err != nil {
		return apperrors.Internal("failed to create order", err)
	}

	history := StatusHistory{
		OrderID:   o.ID,
		Status:    o.Status,
		Comment:   "Order created",
		CreatedBy: o.UserID,
	}
	if err := tx.Create(&history).Error; err != nil {
		return apperrors.Internal("failed to record order creation", err)
	}
	return nil
}

// GetOrder retrieves an order by ID with items and history
func (s *Service) GetOrder(orderID uint) (*Order, error) {
	var o Order
	err := s.db.Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&o, orderID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("order not found")
		}
		return nil, apperrors.Internal("failed to get order", err)
	}
	return &o, nil
}

// GetOrderForUser retrieves an order and enforces ownership. A non-owner
// gets not found rather than forbidden, so order IDs are not probeable.
func (s *Service) GetOrderForUser(orderID, userID uint) (*Order, error) {
	o, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperrors.NotFound("order not found")
	}
	return o, nil
}

// GetOrderByNumber retrieves an order by its order number
func (s *Service) GetOrderByNumber(orderNumber string) (*Order, error) {
	var o Order
	err := s.db.Preload("Items").
		Where("order_number = ?", orderNumber).
		First(&o).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("order not found")
		}
		return nil, apperrors.Internal("failed to get order", err)
	}
	return &o, nil
}

// GetUserOrders returns a paginated list of the user's orders, newest first
func (s *Service) GetUserOrders(userID uint, page, limit int) (*ListResponse, error) {
	return s.listOrders(s.db.Where("user_id = ?", userID), page, limit)
}

// ListOrders returns a paginated admin view, optionally filtered by status
func (s *Service) ListOrders(status Status, page, limit int) (*ListResponse, error) {
	query := s.db
	if status != "" {
		if !IsValidStatus(status) {
			return nil, apperrors.Validation(fmt.Sprintf("unknown order status: %s", status))
		}
		query = query.Where("status = ?", status)
	}
	return s.listOrders(query, page, limit)
}

func (s *Service) listOrders(query *gorm.DB, page, limit int) (*ListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := query.Model(&Order{}).Count(&total).Error; err != nil {
		return nil, apperrors.Internal("failed to count orders", err)
	}

	var orders []Order
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, apperrors.Internal("failed to list orders", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &ListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// UpdateStatus transitions an order to a new status, recording history.
// Illegal transitions are rejected against the status graph.
func (s *Service) UpdateStatus(orderID uint, newStatus Status, actor uint, comment string) (*Order, error) {
	if !IsValidStatus(newStatus) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown order status: %s", newStatus))
	}

	var o *Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		o = loaded
		return s.TransitionTx(tx, o, newStatus, actor, comment)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// TransitionTx applies a status transition inside the caller's transaction:
// validates against the graph, updates the row, stamps the lifecycle
// timestamp and appends a history entry. The order struct is mutated to
// reflect the new state.
func (s *Service) TransitionTx(tx *gorm.DB, o *Order, newStatus Status, actor uint, comment string) error {
	if !CanTransition(o.Status, newStatus) {
		return apperrors.InvalidTransition(
			fmt.Sprintf("cannot transition order %s from %s to %s", o.OrderNumber, o.Status, newStatus))
	}

	now := time.Now().UTC()
	fromStatus := o.Status
	updates := map[string]interface{}{
		"status":     newStatus,
		"updated_at": now,
	}
	switch newStatus {
	case StatusProcessing:
		if o.ProcessedAt == nil {
			updates["processed_at"] = now
			o.ProcessedAt = &now
		}
	case StatusShipped:
		updates["shipped_at"] = now
		o.ShippedAt = &now
	case StatusDelivered:
		updates["delivered_at"] = now
		o.DeliveredAt = &now
	case StatusCompleted:
		updates["completed_at"] = now
		o.CompletedAt = &now
	case StatusCancelled:
		updates["cancelled_at"] = now
		o.CancelledAt = &now
	}

	// Compare-and-swap on the current status so a concurrent transition
	// loses cleanly instead of silently overwriting.
	result := tx.Model(&Order{}).
		Where("id = ? AND status = ?", o.ID, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return apperrors.Internal("failed to update order status", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Conflict(
			fmt.Sprintf("order %s was modified concurrently", o.OrderNumber))
	}

	history := StatusHistory{
		OrderID:   o.ID,
		Status:    newStatus,
		Comment:   comment,
		CreatedBy: actor,
	}
	if err := tx.Create(&history).Error; err != nil {
		return apperrors.Internal("failed to record status change", err)
	}

	o.Status = newStatus
	return nil
}

// CancelOrder cancels an order, restoring committed stock. userID is the
// acting user for ownership checks; pass 0 for admin/system cancellation.
func (s *Service) CancelOrder(orderID, userID uint, reason string) (*Order, error) {
	var o *Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if userID != 0 && loaded.UserID != userID {
			return apperrors.NotFound("order not found")
		}
		if !loaded.CanBeCancelled() {
			return apperrors.InvalidTransition(
				fmt.Sprintf("order %s cannot be cancelled in status %s", loaded.OrderNumber, loaded.Status))
		}

		committed := loaded.InventoryCommitted()

		comment := "Order cancelled"
		if reason != "" {
			comment = "Order cancelled: " + reason
		}
		if err := s.TransitionTx(tx, loaded, StatusCancelled, userID, comment); err != nil {
			return err
		}

		if committed {
			if err := s.inventory.RestoreTx(tx, InventoryLines(loaded.Items)); err != nil {
				return err
			}
		}

		o = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// AddAdminNote appends an internal note to an order
func (s *Service) AddAdminNote(orderID, adminID uint, note string) error {
	if note == "" {
		return apperrors.Validation("note cannot be empty")
	}
	if _, err := s.GetOrder(orderID); err != nil {
		return err
	}
	record := AdminNote{
		OrderID:   orderID,
		Note:      note,
		CreatedBy: adminID,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return apperrors.Internal("failed to add admin note", err)
	}
	return nil
}

// UpdateTracking records the tracking number and carrier and moves the
// order to shipped.
func (s *Service) UpdateTracking(orderID, actor uint, trackingNumber, carrier string) (*Order, error) {
	if trackingNumber == "" {
		return nil, apperrors.Validation("tracking number is required")
	}

	var o *Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"tracking_number":  trackingNumber,
			"shipping_carrier": carrier,
		}
		if err := tx.Model(&Order{}).Where("id = ?", loaded.ID).Updates(updates).Error; err != nil {
			return apperrors.Internal("failed to update tracking", err)
		}
		loaded.TrackingNumber = trackingNumber
		loaded.ShippingCarrier = carrier

		comment := fmt.Sprintf("Shipped via %s, tracking %s", carrier, trackingNumber)
		if carrier == "" {
			comment = "Shipped, tracking " + trackingNumber
		}
		if err := s.TransitionTx(tx, loaded, StatusShipped, actor, comment); err != nil {
			return err
		}

		o = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// InventoryLines converts order items into inventory movements.
func InventoryLines(items []Item) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.Line{
			ProductID: item.ProductID,
			VariantID: item.ProductVariantID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
		})
	}
	return lines
}

// lockOrder loads an order with its items for a transition. Concurrency
// safety comes from the compare-and-swap in TransitionTx, not a row lock,
// so this works unchanged across database engines.
func lockOrder(tx *gorm.DB, orderID uint) (*Order, error) {
	var o Order
	err := tx.Preload("Items").
		First(&o, orderID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("order not found")
		}
		return nil, apperrors.Internal("failed to load order", err)
	}
	return &o, nil
}
