// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/commerce-core/internal/domain/cart"
	"github.com/your-org/commerce-core/internal/interfaces/http/middleware"
)

// CartHandler handles shopping cart endpoints. Guests are identified by the
// X-Session-ID header; authenticated requests use the user's cart.
type CartHandler struct {
	service *cart.Service
}

// NewCartHandler creates a new cart handler
func NewCartHandler(service *cart.Service) *CartHandler {
	return &CartHandler{service: service}
}

func cartIdentity(c *gin.Context) (uint, string) {
	userID, _ := middleware.GetUserIDFromContext(c)
	return userID, c.GetHeader("X-Session-ID")
}

// GetCart returns the current cart
// GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, sessionID := cartIdentity(c)

	result, err := h.service.GetCart(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddItem adds a product to the cart
// POST /cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	var req cart.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, sessionID := cartIdentity(c)
	result, err := h.service.AddItem(c.Request.Context(), userID, sessionID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UpdateItem changes a cart line's quantity
// PUT /cart/items/:product_id
func (h *CartHandler) UpdateItem(c *gin.Context) {
	productID, ok := parseUintParam(c, "product_id")
	if !ok {
		return
	}

	var req cart.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, sessionID := cartIdentity(c)
	result, err := h.service.UpdateItem(c.Request.Context(), userID, sessionID, productID, variantIDQuery(c), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RemoveItem deletes a cart line
// DELETE /cart/items/:product_id
func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, ok := parseUintParam(c, "product_id")
	if !ok {
		return
	}

	userID, sessionID := cartIdentity(c)
	result, err := h.service.RemoveItem(c.Request.Context(), userID, sessionID, productID, variantIDQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ClearCart empties the cart
// DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, sessionID := cartIdentity(c)

	if err := h.service.Clear(c.Request.Context(), userID, sessionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// MergeCart folds the guest session cart into the authenticated user's cart
// POST /cart/merge
func (h *CartHandler) MergeCart(c *gin.Context) {
	userID, sessionID := cartIdentity(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if err := h.service.MergeGuestCart(c.Request.Context(), sessionID, userID); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.GetCart(c.Request.Context(), userID, "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// variantIDQuery reads the optional variant_id query parameter.
func variantIDQuery(c *gin.Context) *uint {
	raw := c.Query("variant_id")
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		return nil
	}
	id := uint(value)
	return &id
}
