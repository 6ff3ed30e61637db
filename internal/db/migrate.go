package db

import (
	"fmt"
	"log"

	"go_seoindex/internal/model"

	"gorm.io/gorm"
)

// Migrate creates the tenants table for standalone deployments; in production
// the table belongs to the storefront service.
func Migrate(db *gorm.DB) error {
	log.Println("Starting database migration...")

	models := []interface{}{
		&model.Tenant{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("✓ Database migration completed successfully (%d tables)", len(models))
	return nil
}
