package db

import (
	"fmt"
	"time"

	"github.com/flagops/flagservice/internal/models"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// Migrate runs database migrations and optionally seeds sample flags.
func Migrate(conn *gorm.DB, seedSamples bool) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Flag{},
		&models.Admin{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if !seedSamples {
		return nil
	}
	return seedSampleFlags(conn)
}

// seedSampleFlags inserts demo flags when the flags table is empty.
func seedSampleFlags(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.Flag{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count flags: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	seeds := []models.Flag{
		{Name: "dark_mode", Description: "Enable dark mode UI", Enabled: false, RolloutPercentage: 0},
		{Name: "new_checkout", Description: "New checkout flow", Enabled: true, RolloutPercentage: 25},
		{Name: "ai_recommendations", Description: "AI-powered product recommendations", Enabled: true, RolloutPercentage: 50},
	}
	for i := range seeds {
		seeds[i].TargetUserIDs = []byte("[]")
		seeds[i].CreatedAt = now
		seeds[i].UpdatedAt = now
	}
	if errCreate := conn.Create(&seeds).Error; errCreate != nil {
		return fmt.Errorf("db: seed flags: %w", errCreate)
	}
	log.Infof("seeded %d sample flags", len(seeds))
	return nil
}
