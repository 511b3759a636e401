package db

import (
	"fmt"
	"log"

	"go_maintenance/internal/model"

	"gorm.io/gorm"
)

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	log.Println("Starting database migration...")

	// Order matters: exceptions reference windows
	models := []interface{}{
		&model.User{},
		&model.MaintenanceWindow{},
		&model.URLException{},
		&model.AuditLog{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("✓ Database migration completed successfully (%d tables)", len(models))
	return nil
}
