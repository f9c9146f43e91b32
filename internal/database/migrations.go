package database

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/pkg/crypto"
)

// SeedOptions describes the optional bootstrap administrator created on first start.
type SeedOptions struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Session{},
		&models.LoginAttempt{},
		&models.PasswordResetToken{},
		&models.CacheEntry{},
	)
}

// SeedData creates the bootstrap administrator when configured and absent. It is a no-op when
// no admin email is supplied or the account already exists.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" {
		return nil
	}
	if opts.AdminPassword == "" {
		return errors.New("admin password is required when admin email is set")
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.HashPassword(opts.AdminPassword)
	if err != nil {
		return err
	}

	username := strings.TrimSpace(opts.AdminUsername)
	if username == "" {
		username = "admin"
	}

	now := time.Now().UTC()
	admin := &models.User{
		Username:   username,
		Email:      email,
		Password:   hash,
		Role:       models.RoleAdmin,
		VerifiedAt: &now,
	}
	return db.Create(admin).Error
}
