package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LoginAttempt records the outcome of a credential check. Rows are immutable apart from
// SessionEnd, which is stamped when the session opened by a successful attempt closes.
type LoginAttempt struct {
	ID            string            `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        *string           `gorm:"type:uuid;index" json:"user_id"`
	Identifier    string            `gorm:"index" json:"identifier"`
	Success       bool              `gorm:"index" json:"success"`
	FailureReason *string           `json:"failure_reason"`
	IPAddress     string            `json:"ip_address"`
	UserAgent     string            `json:"user_agent"`
	SessionID     *string           `gorm:"type:uuid;index" json:"session_id"`
	SessionStart  *time.Time        `json:"session_start"`
	SessionEnd    *time.Time        `json:"session_end"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
}

func (a *LoginAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
