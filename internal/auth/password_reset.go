package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/pkg/crypto"
)

// DefaultResetTokenTTL bounds how long an emailed reset link stays valid.
const DefaultResetTokenTTL = time.Hour

// PasswordResetConfig describes tunable behaviour for the PasswordResetService.
type PasswordResetConfig struct {
	TokenTTL    time.Duration
	TokenLength int
	Clock       func() time.Time
	Publisher   events.Publisher
	Logger      *zap.Logger
}

// PasswordResetService issues and consumes single-use password reset tokens. Delivery of the raw
// token happens out of band through the published event.
type PasswordResetService struct {
	db        *gorm.DB
	tokens    *TokenService
	ttl       time.Duration
	length    int
	now       func() time.Time
	publisher events.Publisher
	logger    *zap.Logger
}

// NewPasswordResetService wires the reset flow to the token issuer used to revoke sessions.
func NewPasswordResetService(db *gorm.DB, tokens *TokenService, cfg PasswordResetConfig) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset: db is required")
	}
	if tokens == nil {
		return nil, errors.New("password reset: token service is required")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	length := cfg.TokenLength
	if length <= 0 {
		length = 32
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PasswordResetService{
		db:        db,
		tokens:    tokens,
		ttl:       ttl,
		length:    length,
		now:       clock,
		publisher: events.OrNop(cfg.Publisher),
		logger:    logger,
	}, nil
}

// RequestReset issues a reset token for the account behind email. Unknown or banned addresses
// are silently ignored so that the caller cannot probe which emails exist.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("password reset: find user: %w", err)
	}
	if user.IsBanned() {
		return nil
	}

	raw, err := crypto.GenerateToken(s.length)
	if err != nil {
		return fmt.Errorf("password reset: generate token: %w", err)
	}

	now := s.now().UTC()
	record := &models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: crypto.HashToken(raw),
		ExpiresAt: now.Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Only the newest link stays usable.
		if err := tx.Model(&models.PasswordResetToken{}).
			Where("user_id = ? AND used_at IS NULL", user.ID).
			Update("used_at", now).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return fmt.Errorf("password reset: store token: %w", err)
	}

	event := events.New(events.TypePasswordResetRequested, user.ID, map[string]any{
		"email":      user.Email,
		"username":   user.Username,
		"token":      raw,
		"expires_at": record.ExpiresAt,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish password reset event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword consumes a reset token and replaces the password. Every refresh token of the user
// is revoked afterwards so that other devices must sign in again.
func (s *PasswordResetService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrResetTokenInvalid
	}
	if newPassword == "" {
		return errors.New("password reset: new password is required")
	}

	var record models.PasswordResetToken
	err := s.db.WithContext(ctx).Take(&record, "token_hash = ?", crypto.HashToken(rawToken)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResetTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("password reset: find token: %w", err)
	}

	now := s.now().UTC()
	if record.UsedAt != nil {
		return ErrResetTokenInvalid
	}
	if !record.ExpiresAt.After(now) {
		return ErrResetTokenExpired
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("password reset: hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", record.ID).
			Update("used_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrResetTokenInvalid
		}
		return tx.Model(&models.User{}).
			Where("id = ?", record.UserID).
			Updates(map[string]any{
				"password":        hashed,
				"failed_attempts": 0,
				"locked_until":    nil,
			}).Error
	})
	if err != nil {
		if errors.Is(err, ErrResetTokenInvalid) {
			return err
		}
		return fmt.Errorf("password reset: update password: %w", err)
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, record.UserID, models.RevokeReasonSecurity); err != nil {
		return fmt.Errorf("password reset: revoke tokens: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.New(events.TypePasswordChanged, record.UserID, map[string]any{
		"via": "reset",
	})); err != nil {
		s.logger.Warn("publish password changed event failed", zap.Error(err))
	}
	return nil
}

// PurgeStale deletes reset tokens that were used or have expired.
func (s *PasswordResetService) PurgeStale(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("used_at IS NOT NULL OR expires_at <= ?", s.now().UTC()).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("password reset: purge: %w", result.Error)
	}
	return result.RowsAffected, nil
}
