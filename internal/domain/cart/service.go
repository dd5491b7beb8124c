// internal/domain/cart/service.go
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/domain/product"
	"github.com/your-org/commerce-core/internal/infrastructure/database/redis"
	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

const (
	guestCartTTL       = 24 * time.Hour
	guestCartKeyFormat = "cart:session:%s"
	maxLineQuantity    = 50
)

// Service handles shopping cart operations. Logged-in users get a
// database-backed cart; guests get a Redis cart keyed by session id with a
// sliding 24 hour TTL. A request is a guest request when userID is zero.
type Service struct {
	db     *gorm.DB
	redis  *redis.Client
	config *config.Config
	logger *logrus.Logger
}

// NewService creates a new cart service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		db:     db,
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

// storedLine is the storage-neutral form of a cart line.
type storedLine struct {
	ProductID        uint
	ProductVariantID *uint
	Quantity         int
	PriceAtAdd       int64
}

// GetCart returns the resolved cart with live product details.
func (s *Service) GetCart(ctx context.Context, userID uint, sessionID string) (*Cart, error) {
	lines, err := s.loadLines(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.buildCart(lines)
}

// AddItem adds a product to the cart, merging quantity into an existing
// line for the same product and variant.
func (s *Service) AddItem(ctx context.Context, userID uint, sessionID string, req *AddItemRequest) (*Cart, error) {
	if req.Quantity < 1 || req.Quantity > maxLineQuantity {
		return nil, apperrors.Validation(fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
	}

	p, v, err := s.resolveProduct(req.ProductID, req.ProductVariantID)
	if err != nil {
		return nil, err
	}

	lines, err := s.loadLines(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	existing := 0
	for _, line := range lines {
		if line.ProductID == req.ProductID && variantIDEqual(line.ProductVariantID, req.ProductVariantID) {
			existing = line.Quantity
			break
		}
	}
	wanted := existing + req.Quantity
	if wanted > maxLineQuantity {
		return nil, apperrors.Validation(fmt.Sprintf("cannot hold more than %d units of one product", maxLineQuantity))
	}
	if err := checkStock(p, v, wanted); err != nil {
		return nil, err
	}

	price := p.EffectivePrice(v)
	if userID != 0 {
		if err := s.upsertUserLine(userID, req.ProductID, req.ProductVariantID, wanted, price); err != nil {
			return nil, err
		}
	} else {
		merged := mergeLine(lines, storedLine{
			ProductID:        req.ProductID,
			ProductVariantID: req.ProductVariantID,
			Quantity:         wanted,
			PriceAtAdd:       price,
		})
		if err := s.saveGuestLines(ctx, sessionID, merged); err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"product_id": req.ProductID,
		"quantity":   req.Quantity,
	}).Debug("Cart item added")

	return s.GetCart(ctx, userID, sessionID)
}

// UpdateItem sets the quantity of a cart line. Quantity zero removes it.
func (s *Service) UpdateItem(ctx context.Context, userID uint, sessionID string, productID uint, variantID *uint, quantity int) (*Cart, error) {
	if quantity < 0 || quantity > maxLineQuantity {
		return nil, apperrors.Validation(fmt.Sprintf("quantity must be between 0 and %d", maxLineQuantity))
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, sessionID, productID, variantID)
	}

	p, v, err := s.resolveProduct(productID, variantID)
	if err != nil {
		return nil, err
	}
	if err := checkStock(p, v, quantity); err != nil {
		return nil, err
	}

	lines, err := s.loadLines(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range lines {
		if lines[i].ProductID == productID && variantIDEqual(lines[i].ProductVariantID, variantID) {
			lines[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		return nil, apperrors.NotFound("cart item not found")
	}

	if userID != 0 {
		if err := s.upsertUserLine(userID, productID, variantID, quantity, p.EffectivePrice(v)); err != nil {
			return nil, err
		}
	} else if err := s.saveGuestLines(ctx, sessionID, lines); err != nil {
		return nil, err
	}

	return s.GetCart(ctx, userID, sessionID)
}

// RemoveItem deletes a cart line.
func (s *Service) RemoveItem(ctx context.Context, userID uint, sessionID string, productID uint, variantID *uint) (*Cart, error) {
	if userID != 0 {
		query := s.db.Where("user_id = ? AND product_id = ?", userID, productID)
		if variantID != nil {
			query = query.Where("product_variant_id = ?", *variantID)
		} else {
			query = query.Where("product_variant_id IS NULL")
		}
		if err := query.Delete(&CartItem{}).Error; err != nil {
			return nil, apperrors.Internal("failed to remove cart item", err)
		}
	} else {
		lines, err := s.loadLines(ctx, userID, sessionID)
		if err != nil {
			return nil, err
		}
		kept := lines[:0]
		for _, line := range lines {
			if line.ProductID == productID && variantIDEqual(line.ProductVariantID, variantID) {
				continue
			}
			kept = append(kept, line)
		}
		if err := s.saveGuestLines(ctx, sessionID, kept); err != nil {
			return nil, err
		}
	}
	return s.GetCart(ctx, userID, sessionID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID uint, sessionID string) error {
	if userID != 0 {
		if err := s.db.Where("user_id = ?", userID).Delete(&CartItem{}).Error; err != nil {
			return apperrors.Internal("failed to clear cart", err)
		}
		return nil
	}
	if err := s.redis.Del(ctx, s.guestKey(sessionID)); err != nil {
		return apperrors.Internal("failed to clear guest cart", err)
	}
	return nil
}

// ClearTx empties a user cart inside the caller's transaction. Used by the
// checkout orchestrator so the cart clears atomically with order creation.
func (s *Service) ClearTx(tx *gorm.DB, userID uint) error {
	if err := tx.Where("user_id = ?", userID).Delete(&CartItem{}).Error; err != nil {
		return apperrors.Internal("failed to clear cart", err)
	}
	return nil
}

// MergeGuestCart folds a guest session cart into the user's cart at login,
// summing quantities for matching lines, then drops the session cart.
func (s *Service) MergeGuestCart(ctx context.Context, sessionID string, userID uint) error {
	if sessionID == "" || userID == 0 {
		return nil
	}
	guestLines, err := s.loadGuestLines(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(guestLines) == 0 {
		return nil
	}

	userLines, err := s.loadUserLines(userID)
	if err != nil {
		return err
	}

	for _, g := range guestLines {
		total := g.Quantity
		for _, u := range userLines {
			if u.ProductID == g.ProductID && variantIDEqual(u.ProductVariantID, g.ProductVariantID) {
				total += u.Quantity
				break
			}
		}
		if total > maxLineQuantity {
			total = maxLineQuantity
		}
		if err := s.upsertUserLine(userID, g.ProductID, g.ProductVariantID, total, g.PriceAtAdd); err != nil {
			return err
		}
	}

	if err := s.redis.Del(ctx, s.guestKey(sessionID)); err != nil {
		s.logger.WithError(err).Warn("Failed to drop merged guest cart")
	}
	return nil
}

// Storage helpers

func (s *Service) guestKey(sessionID string) string {
	return fmt.Sprintf(guestCartKeyFormat, sessionID)
}

func (s *Service) loadLines(ctx context.Context, userID uint, sessionID string) ([]storedLine, error) {
	if userID != 0 {
		return s.loadUserLines(userID)
	}
	if sessionID == "" {
		return nil, apperrors.Validation("session id is required for guest carts")
	}
	return s.loadGuestLines(ctx, sessionID)
}

func (s *Service) loadUserLines(userID uint) ([]storedLine, error) {
	var items []CartItem
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, apperrors.Internal("failed to load cart", err)
	}
	lines := make([]storedLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, storedLine{
			ProductID:        item.ProductID,
			ProductVariantID: item.ProductVariantID,
			Quantity:         item.Quantity,
			PriceAtAdd:       item.PriceAtAdd,
		})
	}
	return lines, nil
}

func (s *Service) loadGuestLines(ctx context.Context, sessionID string) ([]storedLine, error) {
	raw, err := s.redis.Get(ctx, s.guestKey(sessionID))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, apperrors.Internal("failed to load guest cart", err)
	}

	var stored []guestLine
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, apperrors.Internal("corrupt guest cart", err)
	}
	lines := make([]storedLine, 0, len(stored))
	for _, g := range stored {
		lines = append(lines, storedLine{
			ProductID:        g.ProductID,
			ProductVariantID: g.ProductVariantID,
			Quantity:         g.Quantity,
			PriceAtAdd:       g.PriceAtAdd,
		})
	}
	return lines, nil
}

func (s *Service) saveGuestLines(ctx context.Context, sessionID string, lines []storedLine) error {
	if sessionID == "" {
		return apperrors.Validation("session id is required for guest carts")
	}
	key := s.guestKey(sessionID)
	if len(lines) == 0 {
		if err := s.redis.Del(ctx, key); err != nil {
			return apperrors.Internal("failed to save guest cart", err)
		}
		return nil
	}

	stored := make([]guestLine, 0, len(lines))
	for _, line := range lines {
		stored = append(stored, guestLine{
			ProductID:        line.ProductID,
			ProductVariantID: line.ProductVariantID,
			Quantity:         line.Quantity,
			PriceAtAdd:       line.PriceAtAdd,
		})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return apperrors.Internal("failed to encode guest cart", err)
	}
	if err := s.redis.Set(ctx, key, string(data), guestCartTTL); err != nil {
		return apperrors.Internal("failed to save guest cart", err)
	}
	return nil
}

func (s *Service) upsertUserLine(userID, productID uint, variantID *uint, quantity int, price int64) error {
	query := s.db.Where("user_id = ? AND product_id = ?", userID, productID)
	if variantID != nil {
		query = query.Where("product_variant_id = ?", *variantID)
	} else {
		query = query.Where("product_variant_id IS NULL")
	}

	var item CartItem
	err := query.First(&item).Error
	if err == gorm.ErrRecordNotFound {
		item = CartItem{
			UserID:           userID,
			ProductID:        productID,
			ProductVariantID: variantID,
			Quantity:         quantity,
			PriceAtAdd:       price,
		}
		if err := s.db.Create(&item).Error; err != nil {
			return apperrors.Internal("failed to add cart item", err)
		}
		return nil
	}
	if err != nil {
		return apperrors.Internal("failed to load cart item", err)
	}

	item.Quantity = quantity
	item.PriceAtAdd = price
	if err := s.db.Save(&item).Error; err != nil {
		return apperrors.Internal("failed to update cart item", err)
	}
	return nil
}

// Resolution helpers

func (s *Service) resolveProduct(productID uint, variantID *uint) (*product.Product, *product.ProductVariant, error) {
	var p product.Product
	if err := s.db.First(&p, productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, apperrors.NotFound("product not found")
		}
		return nil, nil, apperrors.Internal("failed to load product", err)
	}
	if !p.IsActive {
		return nil, nil, apperrors.Validation("product is not available")
	}

	if variantID == nil {
		return &p, nil, nil
	}
	var v product.ProductVariant
	if err := s.db.Where("id = ? AND product_id = ?", *variantID, productID).First(&v).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, apperrors.NotFound("product variant not found")
		}
		return nil, nil, apperrors.Internal("failed to load variant", err)
	}
	if !v.IsActive {
		return nil, nil, apperrors.Validation("product variant is not available")
	}
	return &p, &v, nil
}

func (s *Service) buildCart(lines []storedLine) (*Cart, error) {
	cart := &Cart{
		Items:    make([]Line, 0, len(lines)),
		Currency: s.config.App.Currency,
	}
	for _, line := range lines {
		p, v, err := s.resolveProduct(line.ProductID, line.ProductVariantID)
		if err != nil {
			// Unavailable products still render; staging removes them
			// at checkout.
			cart.Items = append(cart.Items, Line{
				ProductID:        line.ProductID,
				ProductVariantID: line.ProductVariantID,
				Quantity:         line.Quantity,
				Price:            line.PriceAtAdd,
				TotalPrice:       line.PriceAtAdd * int64(line.Quantity),
				InStock:          false,
			})
			cart.ItemCount += line.Quantity
			continue
		}

		price := p.EffectivePrice(v)
		item := Line{
			ProductID:        p.ID,
			ProductVariantID: line.ProductVariantID,
			SKU:              p.SKU,
			Name:             p.Name,
			ImageURL:         p.ImageURL,
			Quantity:         line.Quantity,
			Price:            price,
			TotalPrice:       price * int64(line.Quantity),
			InStock:          stockAvailable(p, v) >= line.Quantity,
		}
		if v != nil {
			item.SKU = v.SKU
			item.VariantName = v.Name
		}
		cart.Items = append(cart.Items, item)
		cart.ItemCount += line.Quantity
		cart.Subtotal += item.TotalPrice
	}
	return cart, nil
}

// Shared helpers

func variantIDEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func mergeLine(lines []storedLine, updated storedLine) []storedLine {
	for i := range lines {
		if lines[i].ProductID == updated.ProductID && variantIDEqual(lines[i].ProductVariantID, updated.ProductVariantID) {
			lines[i] = updated
			return lines
		}
	}
	return append(lines, updated)
}

// stockAvailable returns the sellable quantity for the unit the line targets.
func stockAvailable(p *product.Product, v *product.ProductVariant) int {
	if !p.TrackQuantity {
		return maxLineQuantity
	}
	if v != nil {
		return v.Quantity
	}
	return p.Quantity
}

func checkStock(p *product.Product, v *product.ProductVariant, wanted int) error {
	if !p.TrackQuantity {
		return nil
	}
	available := stockAvailable(p, v)
	if available < wanted {
		return apperrors.InsufficientStock(
			fmt.Sprintf("only %d units of %s available", available, p.SKU))
	}
	return nil
}
