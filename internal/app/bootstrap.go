package app

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flagops/flagservice/internal/config"
	"github.com/flagops/flagservice/internal/models"
	"github.com/flagops/flagservice/internal/security"
)

// HasAdminInitialized reports whether any admin account exists.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil database connection")
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("count admins: %w", errCount)
	}
	return count > 0, nil
}

// BootstrapAdmin creates the initial admin account on first start.
// It is a no-op when an admin already exists or no credentials are
// configured.
func BootstrapAdmin(conn *gorm.DB, bootstrap config.AdminBootstrap) error {
	initialized, errCheck := HasAdminInitialized(conn)
	if errCheck != nil {
		return errCheck
	}
	if initialized {
		return nil
	}

	username := strings.TrimSpace(bootstrap.Username)
	if username == "" || strings.TrimSpace(bootstrap.Password) == "" {
		log.Warn("no admin account exists and no bootstrap credentials configured; admin API is unreachable")
		return nil
	}
	if len(bootstrap.Password) < 6 {
		return fmt.Errorf("bootstrap admin password must be at least 6 characters")
	}

	return CreateAdminUser(conn, username, bootstrap.Password)
}

// CreateAdminUser creates an admin account with a bcrypt-hashed password.
func CreateAdminUser(conn *gorm.DB, username, password string) error {
	if conn == nil {
		return fmt.Errorf("nil database connection")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	admin := models.Admin{
		Username:  username,
		Password:  hashedPassword,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("create admin: %w", errCreate)
	}
	log.Infof("bootstrap admin %q created", username)
	return nil
}
