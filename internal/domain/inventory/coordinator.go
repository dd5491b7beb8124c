// internal/domain/inventory/coordinator.go
package inventory

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/your-org/commerce-core/internal/domain/product"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// Coordinator performs atomic stock mutations on product and variant
// inventory units. Decrements are conditional single-statement updates so
// concurrent commits against the same unit cannot oversell; the database
// row lock serializes them and the quantity guard rejects the loser.
type Coordinator struct {
	db *gorm.DB
}

// NewCoordinator creates a new inventory coordinator
func NewCoordinator(db *gorm.DB) *Coordinator {
	return &Coordinator{db: db}
}

// Line is one stock movement: a product or variant and a quantity.
type Line struct {
	ProductID uint
	VariantID *uint
	SKU       string
	Quantity  int
}

// Commit decrements stock for every line in a single transaction. Either
// every line commits or none does.
func (c *Coordinator) Commit(lines []Line) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		return c.CommitTx(tx, lines)
	})
}

// CommitTx decrements stock for every line inside the caller's transaction.
// Untracked products are skipped. A tracked unit with insufficient quantity
// fails the whole batch; the caller's transaction rollback undoes any lines
// already applied.
func (c *Coordinator) CommitTx(tx *gorm.DB, lines []Line) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			return apperrors.Validation(fmt.Sprintf("invalid quantity %d for product %d", line.Quantity, line.ProductID))
		}

		tracked, err := c.isTracked(tx, line.ProductID)
		if err != nil {
			return err
		}
		if !tracked {
			continue
		}

		if line.VariantID != nil {
			if err := c.decrementVariant(tx, *line.VariantID, line.Quantity, line.SKU); err != nil {
				return err
			}
			continue
		}
		if err := c.decrementProduct(tx, line.ProductID, line.Quantity, line.SKU); err != nil {
			return err
		}
	}
	return nil
}

// Restore adds stock back for every line, in a single transaction.
func (c *Coordinator) Restore(lines []Line) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		return c.RestoreTx(tx, lines)
	})
}

// RestoreTx adds stock back inside the caller's transaction. Restores are
// unconditional; a restored unit always becomes available again.
func (c *Coordinator) RestoreTx(tx *gorm.DB, lines []Line) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}

		tracked, err := c.isTracked(tx, line.ProductID)
		if err != nil {
			return err
		}
		if !tracked {
			continue
		}

		if line.VariantID != nil {
			result := tx.Model(&product.ProductVariant{}).
				Where("id = ?", *line.VariantID).
				Updates(map[string]interface{}{
					"quantity":     gorm.Expr("quantity + ?", line.Quantity),
					"is_available": true,
				})
			if result.Error != nil {
				return apperrors.Internal("failed to restore variant stock", result.Error)
			}
			continue
		}

		result := tx.Model(&product.Product{}).
			Where("id = ?", line.ProductID).
			Updates(map[string]interface{}{
				"quantity":     gorm.Expr("quantity + ?", line.Quantity),
				"is_available": true,
			})
		if result.Error != nil {
			return apperrors.Internal("failed to restore product stock", result.Error)
		}
	}
	return nil
}

// isTracked reads the product's tracking flag. Quantity checks and mutations
// only apply to tracked products.
func (c *Coordinator) isTracked(tx *gorm.DB, productID uint) (bool, error) {
	var p product.Product
	if err := tx.Select("id", "track_quantity").First(&p, productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, apperrors.NotFound(fmt.Sprintf("product %d not found", productID))
		}
		return false, apperrors.Internal("failed to load product", err)
	}
	return p.TrackQuantity, nil
}

// decrementProduct applies the conditional decrement. The quantity guard in
// the WHERE clause is what makes concurrent commits safe: whichever update
// runs second sees the already-decremented row and matches zero rows if the
// remaining stock is short.
func (c *Coordinator) decrementProduct(tx *gorm.DB, productID uint, qty int, sku string) error {
	result := tx.Model(&product.Product{}).
		Where("id = ? AND quantity >= ?", productID, qty).
		Updates(map[string]interface{}{
			"quantity":     gorm.Expr("quantity - ?", qty),
			"is_available": gorm.Expr("quantity - ? > 0", qty),
		})
	if result.Error != nil {
		return apperrors.Internal("failed to commit product stock", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.InsufficientStock(fmt.Sprintf("insufficient stock for %s", skuOrID(sku, productID)))
	}
	return nil
}

func (c *Coordinator) decrementVariant(tx *gorm.DB, variantID uint, qty int, sku string) error {
	result := tx.Model(&product.ProductVariant{}).
		Where("id = ? AND quantity >= ?", variantID, qty).
		Updates(map[string]interface{}{
			"quantity":     gorm.Expr("quantity - ?", qty),
			"is_available": gorm.Expr("quantity - ? > 0", qty),
		})
	if result.Error != nil {
		return apperrors.Internal("failed to commit variant stock", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.InsufficientStock(fmt.Sprintf("insufficient stock for variant %s", skuOrID(sku, variantID)))
	}
	return nil
}

func skuOrID(sku string, id uint) string {
	if sku != "" {
		return sku
	}
	return fmt.Sprintf("#%d", id)
}
