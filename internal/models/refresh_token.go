package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RevokeReason records why a refresh token left the active state.
type RevokeReason string

const (
	RevokeReasonLogout   RevokeReason = "logout"
	RevokeReasonRotated  RevokeReason = "rotated"
	RevokeReasonSecurity RevokeReason = "security"
	RevokeReasonExpired  RevokeReason = "expired"
)

// RefreshToken is one issued refresh credential. Only the SHA-256 digest of the opaque value is
// stored. Rows are kept for audit; the only mutation is setting RevokedAt/RevokeReason once.
type RefreshToken struct {
	ID           string        `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string        `gorm:"type:uuid;not null;index" json:"user_id"`
	User         *User         `gorm:"foreignKey:UserID" json:"-"`
	SessionID    string        `gorm:"type:uuid;index" json:"session_id"`
	TokenHash    string        `gorm:"uniqueIndex;not null;size:64" json:"-"`
	IssuedAt     time.Time     `json:"issued_at"`
	ExpiresAt    time.Time     `gorm:"index" json:"expires_at"`
	RevokedAt    *time.Time    `gorm:"index" json:"revoked_at"`
	RevokeReason *RevokeReason `gorm:"type:varchar(16)" json:"revoke_reason"`
	DeviceInfo   string        `json:"device_info"`
	IPAddress    string        `json:"ip_address"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// IsRevoked reports whether the token reached a terminal revoked state.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired reports whether the token is past its expiry at the supplied instant.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Reason returns the revoke reason or an empty value for active tokens.
func (t *RefreshToken) Reason() RevokeReason {
	if t.RevokeReason == nil {
		return ""
	}
	return *t.RevokeReason
}
