// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/domain/cart"
	"github.com/your-org/commerce-core/internal/domain/checkout"
	"github.com/your-org/commerce-core/internal/domain/inventory"
	"github.com/your-org/commerce-core/internal/domain/order"
	"github.com/your-org/commerce-core/internal/domain/payment"
	"github.com/your-org/commerce-core/internal/infrastructure/database/redis"
	"github.com/your-org/commerce-core/internal/interfaces/http/handlers"
	"github.com/your-org/commerce-core/internal/interfaces/http/middleware"
	"github.com/your-org/commerce-core/internal/pkg/email"
	"github.com/your-org/commerce-core/internal/pkg/pdf"
)

// SetupRoutes wires the service graph and registers all API routes.
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger *logrus.Logger) {
	registry := payment.NewRegistry(
		payment.NewRazorpayGateway(&cfg.External.Razorpay, logger),
		payment.NewStripeGateway(&cfg.External.Stripe, logger),
		payment.NewCODGateway(),
	)

	inventoryCoordinator := inventory.NewCoordinator(db)
	cartService := cart.NewService(db, redisClient, cfg, logger)
	orderService := order.NewService(db, inventoryCoordinator, cfg)
	paymentService := payment.NewService(db, registry, cfg, logger)
	mailer := email.NewEmailService(cfg, logger)
	checkoutService := checkout.NewService(
		db, cartService, orderService, paymentService, inventoryCoordinator,
		redisClient, checkout.NewCalculator(), cfg, logger,
	).WithEmailService(mailer)

	cartHandler := handlers.NewCartHandler(cartService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	orderHandler := handlers.NewOrderHandler(orderService, pdf.NewService(cfg), mailer, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, orderService, checkoutService, logger)

	setupCartRoutes(rg, cartHandler, cfg)
	setupCheckoutRoutes(rg, checkoutHandler, cfg)
	setupOrderRoutes(rg, orderHandler, cfg)
	setupPaymentRoutes(rg, paymentHandler, cfg)
	setupAdminRoutes(rg, orderHandler, paymentHandler, cfg)
}

// setupCartRoutes registers cart routes. Guests are served through the
// X-Session-ID header, so auth is optional here.
func setupCartRoutes(rg *gin.RouterGroup, h *handlers.CartHandler, cfg *config.Config) {
	cartGroup := rg.Group("/cart")
	cartGroup.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cartGroup.GET("", h.GetCart)
		cartGroup.POST("/items", h.AddItem)
		cartGroup.PUT("/items/:product_id", h.UpdateItem)
		cartGroup.DELETE("/items/:product_id", h.RemoveItem)
		cartGroup.DELETE("", h.ClearCart)
		cartGroup.POST("/merge", h.MergeCart)
	}
}

func setupCheckoutRoutes(rg *gin.RouterGroup, h *handlers.CheckoutHandler, cfg *config.Config) {
	checkoutGroup := rg.Group("/checkout")
	checkoutGroup.Use(middleware.AuthMiddleware(cfg))
	{
		checkoutGroup.GET("/summary", h.GetSummary)
		checkoutGroup.POST("/coupon", h.ApplyCoupon)
		checkoutGroup.DELETE("/coupon", h.RemoveCoupon)
		checkoutGroup.POST("", h.PlaceOrder)
	}
}

func setupOrderRoutes(rg *gin.RouterGroup, h *handlers.OrderHandler, cfg *config.Config) {
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(cfg))
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.GET("/:id/invoice", h.GetInvoice)
	}
}

func setupPaymentRoutes(rg *gin.RouterGroup, h *handlers.PaymentHandler, cfg *config.Config) {
	payments := rg.Group("/payments")
	{
		// Gateway webhooks authenticate by signature, not by bearer token
		payments.POST("/webhooks/:provider", h.Webhook)

		protected := payments.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.POST("/:id/verify", h.VerifyPayment)
			protected.POST("/:id/failed", h.FailPayment)
			protected.GET("/:id/status", h.GetStatus)
		}
	}
}

func setupAdminRoutes(rg *gin.RouterGroup, orderHandler *handlers.OrderHandler, paymentHandler *handlers.PaymentHandler, cfg *config.Config) {
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		orders := admin.Group("/orders")
		{
			orders.GET("", orderHandler.AdminListOrders)
			orders.GET("/:id", orderHandler.AdminGetOrder)
			orders.PUT("/:id/status", orderHandler.AdminUpdateStatus)
			orders.PUT("/:id/tracking", orderHandler.AdminUpdateTracking)
			orders.POST("/:id/notes", orderHandler.AdminAddNote)
		}

		payments := admin.Group("/payments")
		{
			payments.GET("/:id", paymentHandler.AdminGetPayment)
			payments.POST("/:id/refund", paymentHandler.AdminRefund)
		}
	}
}
