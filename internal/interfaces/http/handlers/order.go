// internal/interfaces/http/handlers/order.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/your-org/commerce-core/internal/domain/order"
	"github.com/your-org/commerce-core/internal/interfaces/http/middleware"
	"github.com/your-org/commerce-core/internal/pkg/email"
	"github.com/your-org/commerce-core/internal/pkg/pdf"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	service *order.Service
	pdf     *pdf.Service
	email   *email.EmailService
	logger  *logrus.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(service *order.Service, pdfService *pdf.Service, mailer *email.EmailService, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{service: service, pdf: pdfService, email: mailer, logger: logger}
}

// notifyStatusChange sends the status update email. Best effort; failures
// are logged and never affect the response.
func (h *OrderHandler) notifyStatusChange(o *order.Order, message string) {
	if h.email == nil {
		return
	}
	if err := h.email.SendOrderStatusUpdate(o, "", message); err != nil {
		h.logger.WithError(err).WithField("order_id", o.ID).
			Warn("Failed to send order status email")
	}
}

// ListOrders returns the authenticated user's orders
// GET /orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	page, limit := parsePagination(c)
	result, err := h.service.GetUserOrders(userID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetOrder returns one of the user's orders with items and history
// GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	result, err := h.service.GetOrderForUser(orderID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels one of the user's orders, restoring committed stock
// POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req cancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.CancelOrder(orderID, userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetInvoice renders the order invoice as a PDF
// GET /orders/:id/invoice
func (h *OrderHandler) GetInvoice(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrderForUser(orderID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	buf, err := h.pdf.GenerateInvoice(o)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate invoice"})
		return
	}

	filename := fmt.Sprintf("invoice-%s.pdf", o.OrderNumber)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// Admin endpoints

// AdminListOrders returns all orders, optionally filtered by status
// GET /admin/orders
func (h *OrderHandler) AdminListOrders(c *gin.Context) {
	page, limit := parsePagination(c)
	result, err := h.service.ListOrders(order.Status(c.Query("status")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdminGetOrder returns any order by id
// GET /admin/orders/:id
func (h *OrderHandler) AdminGetOrder(c *gin.Context) {
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	result, err := h.service.GetOrder(orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type updateStatusRequest struct {
	Status  order.Status `json:"status" binding:"required"`
	Comment string       `json:"comment"`
}

// AdminUpdateStatus transitions an order through the status graph
// PUT /admin/orders/:id/status
func (h *OrderHandler) AdminUpdateStatus(c *gin.Context) {
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	adminID, _ := middleware.GetUserIDFromContext(c)
	result, err := h.service.UpdateStatus(orderID, req.Status, adminID, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	h.notifyStatusChange(result, req.Comment)
	c.JSON(http.StatusOK, result)
}

type updateTrackingRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required"`
	Carrier        string `json:"carrier"`
}

// AdminUpdateTracking records tracking info and marks the order shipped
// PUT /admin/orders/:id/tracking
func (h *OrderHandler) AdminUpdateTracking(c *gin.Context) {
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req updateTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	adminID, _ := middleware.GetUserIDFromContext(c)
	result, err := h.service.UpdateTracking(orderID, adminID, req.TrackingNumber, req.Carrier)
	if err != nil {
		respondError(c, err)
		return
	}

	h.notifyStatusChange(result, "Your order has shipped")
	c.JSON(http.StatusOK, result)
}

type adminNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

// AdminAddNote appends an internal note to an order
// POST /admin/orders/:id/notes
func (h *OrderHandler) AdminAddNote(c *gin.Context) {
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req adminNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	adminID, _ := middleware.GetUserIDFromContext(c)
	if err := h.service.AddAdminNote(orderID, adminID, req.Note); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Note added"})
}
