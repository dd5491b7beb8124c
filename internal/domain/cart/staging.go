// internal/domain/cart/staging.go
package cart

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/your-org/commerce-core/internal/domain/product"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// StagedLine is a checkout-ready cart line with the product snapshot the
// order will freeze.
type StagedLine struct {
	ProductID        uint   `json:"product_id"`
	ProductVariantID *uint  `json:"product_variant_id,omitempty"`
	SKU              string `json:"sku"`
	Name             string `json:"name"`
	VariantName      string `json:"variant_name,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
	Quantity         int    `json:"quantity"`
	UnitPrice        int64  `json:"unit_price"`
	TotalPrice       int64  `json:"total_price"`
}

// PriceChange records a silently refreshed price.
type PriceChange struct {
	ProductID uint   `json:"product_id"`
	SKU       string `json:"sku"`
	OldPrice  int64  `json:"old_price"`
	NewPrice  int64  `json:"new_price"`
}

// RemovedLine records a line dropped during staging.
type RemovedLine struct {
	ProductID uint   `json:"product_id"`
	Reason    string `json:"reason"`
}

// StagedCart is the result of validating the cart against live catalog and
// stock state. Valid is false when any line has an unresolvable problem;
// removals and price refreshes on their own do not invalidate the cart.
type StagedCart struct {
	Lines        []StagedLine  `json:"lines"`
	Subtotal     int64         `json:"subtotal"`
	Valid        bool          `json:"valid"`
	Errors       []string      `json:"errors,omitempty"`
	PriceChanges []PriceChange `json:"price_changes,omitempty"`
	Removed      []RemovedLine `json:"removed_items,omitempty"`
}

// lineDecision is the outcome of re-validating one stored line.
type lineDecision struct {
	remove       bool
	removeReason string
	errMsg       string
	priceChanged bool
	newPrice     int64
}

// decideLine re-validates a stored cart line against the current product
// state. Missing or inactive products are removed. Insufficient tracked
// stock is an error and is never auto-adjusted down. A drifted price
// refreshes silently.
func decideLine(line storedLine, p *product.Product, v *product.ProductVariant) lineDecision {
	if p == nil || !p.IsActive {
		return lineDecision{remove: true, removeReason: "product no longer available"}
	}
	if line.ProductVariantID != nil && (v == nil || !v.IsActive) {
		return lineDecision{remove: true, removeReason: "product variant no longer available"}
	}

	if p.TrackQuantity {
		available := stockAvailable(p, v)
		if available < line.Quantity {
			return lineDecision{
				errMsg: fmt.Sprintf("%s: only %d of %d requested units available", p.SKU, available, line.Quantity),
			}
		}
	}

	current := p.EffectivePrice(v)
	if current != line.PriceAtAdd {
		return lineDecision{priceChanged: true, newPrice: current}
	}
	return lineDecision{newPrice: current}
}

// StageForCheckout re-resolves every cart line against the catalog and
// returns the staged cart. Removals and refreshed prices are persisted back
// to the stored cart so a re-render after staging shows the same state.
func (s *Service) StageForCheckout(ctx context.Context, userID uint, sessionID string) (*StagedCart, error) {
	lines, err := s.loadLines(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperrors.Validation("cart is empty")
	}

	staged := &StagedCart{Valid: true}
	kept := make([]storedLine, 0, len(lines))

	for _, line := range lines {
		p, v := s.lookupForStaging(line.ProductID, line.ProductVariantID)
		decision := decideLine(line, p, v)

		if decision.remove {
			staged.Removed = append(staged.Removed, RemovedLine{
				ProductID: line.ProductID,
				Reason:    decision.removeReason,
			})
			continue
		}
		if decision.errMsg != "" {
			staged.Valid = false
			staged.Errors = append(staged.Errors, decision.errMsg)
			kept = append(kept, line)
			continue
		}

		unitPrice := decision.newPrice
		if decision.priceChanged {
			staged.PriceChanges = append(staged.PriceChanges, PriceChange{
				ProductID: line.ProductID,
				SKU:       p.SKU,
				OldPrice:  line.PriceAtAdd,
				NewPrice:  unitPrice,
			})
			line.PriceAtAdd = unitPrice
		}
		kept = append(kept, line)

		item := StagedLine{
			ProductID:        p.ID,
			ProductVariantID: line.ProductVariantID,
			SKU:              p.SKU,
			Name:             p.Name,
			ImageURL:         p.ImageURL,
			Quantity:         line.Quantity,
			UnitPrice:        unitPrice,
			TotalPrice:       unitPrice * int64(line.Quantity),
		}
		if v != nil {
			item.SKU = v.SKU
			item.VariantName = v.Name
		}
		staged.Lines = append(staged.Lines, item)
		staged.Subtotal += item.TotalPrice
	}

	if len(staged.Lines) == 0 && staged.Valid {
		staged.Valid = false
		staged.Errors = append(staged.Errors, "no purchasable items remain in the cart")
	}

	if err := s.persistStagedLines(ctx, userID, sessionID, kept); err != nil {
		return nil, err
	}
	return staged, nil
}

// lookupForStaging loads the product and variant without failing on missing
// rows; decideLine turns nils into removals.
func (s *Service) lookupForStaging(productID uint, variantID *uint) (*product.Product, *product.ProductVariant) {
	var p product.Product
	if err := s.db.First(&p, productID).Error; err != nil {
		return nil, nil
	}
	if variantID == nil {
		return &p, nil
	}
	var v product.ProductVariant
	if err := s.db.Where("id = ? AND product_id = ?", *variantID, productID).First(&v).Error; err != nil {
		return &p, nil
	}
	return &p, &v
}

func (s *Service) persistStagedLines(ctx context.Context, userID uint, sessionID string, lines []storedLine) error {
	if userID == 0 {
		return s.saveGuestLines(ctx, sessionID, lines)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&CartItem{}).Error; err != nil {
			return apperrors.Internal("failed to rewrite cart", err)
		}
		for _, line := range lines {
			item := CartItem{
				UserID:           userID,
				ProductID:        line.ProductID,
				ProductVariantID: line.ProductVariantID,
				Quantity:         line.Quantity,
				PriceAtAdd:       line.PriceAtAdd,
			}
			if err := tx.Create(&item).Error; err != nil {
				return apperrors.Internal("failed to rewrite cart", err)
			}
		}
		return nil
	})
}
