// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/domain/cart"
	"github.com/your-org/commerce-core/internal/domain/order"
	"github.com/your-org/commerce-core/internal/domain/payment"
	"github.com/your-org/commerce-core/internal/domain/product"
	"github.com/your-org/commerce-core/internal/domain/user"
	"github.com/your-org/commerce-core/internal/pkg/auth"
)

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	config *config.Config
	logger *logrus.Logger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, cfg *config.Config, logger *logrus.Logger) *Migration {
	return &Migration{db: db, config: cfg, logger: logger}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("Running database auto-migrations")

	// Dependency order: referenced tables first
	models := []interface{}{
		&user.User{},
		&user.Address{},

		&product.Product{},
		&product.ProductVariant{},

		&cart.CartItem{},

		&order.Order{},
		&order.Item{},
		&order.StatusHistory{},
		&order.AdminNote{},

		&payment.Payment{},
		&payment.Refund{},
	}

	for _, model := range models {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates additional indexes for query paths the auto-migration
// tags do not cover
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		// Order lookups
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",

		// Order items and history
		"CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at)",

		// Payment reconciliation paths
		"CREATE INDEX IF NOT EXISTS idx_payments_order_status ON payments(order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)",
		"CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_payment_refunds_payment ON payment_refunds(payment_id)",

		// Cart cleanup and merge
		"CREATE INDEX IF NOT EXISTS idx_cart_items_created_at ON cart_items(created_at DESC)",
	}

	failed := 0
	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("Failed to create index")
			failed++
		}
	}

	m.logger.WithFields(logrus.Fields{
		"created": len(indexes) - failed,
		"failed":  failed,
	}).Info("Index creation completed")
	return nil
}

// SeedInitialData inserts development data: an admin user, a test buyer and a
// handful of products to run checkout against
func (m *Migration) SeedInitialData() error {
	m.logger.Info("Seeding initial data")

	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if err := m.seedTestUser(); err != nil {
		return fmt.Errorf("failed to seed test user: %w", err)
	}
	if err := m.seedTestProducts(); err != nil {
		return fmt.Errorf("failed to seed test products: %w", err)
	}

	m.logger.Info("Initial data seeded")
	return nil
}

func (m *Migration) seedAdminUser() error {
	var existing user.User
	err := m.db.Where("email = ?", "admin@example.com").First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	passwordManager := auth.NewPasswordManager(m.config)
	hash, err := passwordManager.HashPassword("Admin@123456")
	if err != nil {
		return err
	}

	admin := user.User{
		Email:     "admin@example.com",
		Password:  hash,
		FirstName: "Admin",
		LastName:  "User",
		IsActive:  true,
		IsAdmin:   true,
	}
	return m.db.Create(&admin).Error
}

func (m *Migration) seedTestUser() error {
	var existing user.User
	err := m.db.Where("email = ?", "buyer@example.com").First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	passwordManager := auth.NewPasswordManager(m.config)
	hash, err := passwordManager.HashPassword("Buyer@123456")
	if err != nil {
		return err
	}

	buyer := user.User{
		Email:     "buyer@example.com",
		Password:  hash,
		FirstName: "Test",
		LastName:  "Buyer",
		IsActive:  true,
	}
	return m.db.Create(&buyer).Error
}

func (m *Migration) seedTestProducts() error {
	products := []product.Product{
		{
			SKU:           "TSHIRT-001",
			Name:          "Classic Cotton T-Shirt",
			Slug:          "classic-cotton-t-shirt",
			Description:   "Plain crew-neck t-shirt, 180gsm cotton",
			Price:         79900,
			IsActive:      true,
			TrackQuantity: true,
			Quantity:      100,
			IsAvailable:   true,
		},
		{
			SKU:           "SHOE-RUN-001",
			Name:          "Road Running Shoes",
			Slug:          "road-running-shoes",
			Description:   "Lightweight neutral running shoes",
			Price:         459900,
			IsActive:      true,
			TrackQuantity: true,
			Quantity:      25,
			IsAvailable:   true,
		},
		{
			SKU:           "GIFTCARD-500",
			Name:          "Gift Card 500",
			Slug:          "gift-card-500",
			Description:   "Digital gift card, no stock tracking",
			Price:         50000,
			IsActive:      true,
			TrackQuantity: false,
			IsAvailable:   true,
		},
	}

	for _, p := range products {
		var existing product.Product
		err := m.db.Where("sku = ?", p.SKU).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := m.db.Create(&p).Error; err != nil {
			return err
		}
	}
	return nil
}
