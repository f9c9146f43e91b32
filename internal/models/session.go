package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one browser/device login span. IsActive is true exactly when SessionEnd is nil.
type Session struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User           *User      `gorm:"foreignKey:UserID" json:"-"`
	RefreshTokenID string     `gorm:"type:uuid;index" json:"-"`
	DeviceType     string     `json:"device_type"`
	Browser        string     `json:"browser"`
	OS             string     `json:"os"`
	UserAgent      string     `json:"-"`
	IPAddress      string     `json:"ip_address"`
	Country        string     `json:"country,omitempty"`
	City           string     `json:"city,omitempty"`
	SessionStart   time.Time  `gorm:"index" json:"session_start"`
	SessionEnd     *time.Time `json:"session_end"`
	IsActive       bool       `gorm:"index" json:"is_active"`
	EndReason      string     `json:"end_reason,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
