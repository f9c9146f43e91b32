package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the credential record consulted at login. Users are never hard-deleted; bans and
// verification are tracked through nullable timestamps.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null;size:64" json:"username"`
	Email    string `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"type:varchar(16);not null;default:user;index" json:"role"`

	VerifiedAt *time.Time `json:"verified_at"`
	BannedAt   *time.Time `json:"banned_at"`
	BanReason  string     `json:"ban_reason,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// IsBanned reports whether the account is currently suspended.
func (u *User) IsBanned() bool {
	return u != nil && u.BannedAt != nil
}

// IsVerified reports whether the account has confirmed its email address.
func (u *User) IsVerified() bool {
	return u != nil && u.VerifiedAt != nil
}
