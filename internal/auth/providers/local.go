package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/pkg/crypto"
	"github.com/charlesng35/tippster/pkg/metrics"
)

// Failure reasons recorded on login attempts and metrics.
const (
	reasonUnknownIdentity = "unknown_identity"
	reasonBadPassword     = "bad_password"
	reasonLocked          = "locked"
	reasonBanned          = "banned"
	reasonUnverified      = "unverified"
)

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	LockoutThreshold    int
	LockoutDuration     time.Duration
	RequireVerified     bool
	DisableRegistration bool
	Clock               func() time.Time
	Publisher           events.Publisher
	Logger              *zap.Logger
}

// AuthenticateInput contains metadata required to authenticate a local user.
type AuthenticateInput struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// RegisterInput captures the details required to register a new local user.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LocalProvider implements email/password authentication with account lockout controls.
type LocalProvider struct {
	db              *gorm.DB
	clock           func() time.Time
	threshold       int
	duration        time.Duration
	requireVerified bool
	allowRegister   bool
	publisher       events.Publisher
	logger          *zap.Logger
}

// NewLocalProvider builds a provider with sane defaults.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LocalProvider{
		db:              db,
		clock:           clock,
		threshold:       threshold,
		duration:        duration,
		requireVerified: cfg.RequireVerified,
		allowRegister:   !cfg.DisableRegistration,
		publisher:       events.OrNop(cfg.Publisher),
		logger:          logger,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated user when successful.
// Unknown identities and wrong passwords yield the same error. Lock, ban and verification state
// are only disclosed once the password has been verified.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	identity := strings.TrimSpace(input.Identifier)
	if identity == "" || input.Password == "" {
		p.recordFailure(ctx, nil, input, reasonUnknownIdentity)
		return nil, auth.ErrInvalidCredentials
	}

	var user models.User
	err := p.db.WithContext(ctx).
		Where("email = ? OR LOWER(username) = LOWER(?)", strings.ToLower(identity), identity).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn comparable time so response latency does not reveal unknown emails.
		_ = crypto.VerifyPassword(dummyHash, input.Password)
		p.recordFailure(ctx, nil, input, reasonUnknownIdentity)
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}

	now := p.clock().UTC()

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		p.recordFailure(ctx, &user, input, reasonLocked)
		if !crypto.VerifyPassword(user.Password, input.Password) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, auth.ErrAccountLocked
	}

	// Unlock the account if the lockout duration has elapsed.
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		user.LockedUntil = nil
		user.FailedAttempts = 0
		if err := p.db.WithContext(ctx).Model(&user).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("local provider: reset lock state: %w", err)
		}
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, p.handleFailedAttempt(ctx, &user, input, now)
	}

	if user.IsBanned() {
		p.recordFailure(ctx, &user, input, reasonBanned)
		return nil, auth.ErrAccountBanned
	}
	if p.requireVerified && !user.IsVerified() {
		p.recordFailure(ctx, &user, input, reasonUnverified)
		return nil, auth.ErrAccountUnverified
	}

	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(input.IPAddress)

	if err := p.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   user.LastLoginIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("local provider: update user: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success", "").Inc()
	return &user, nil
}

func (p *LocalProvider) handleFailedAttempt(ctx context.Context, user *models.User, input AuthenticateInput, now time.Time) error {
	user.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": user.FailedAttempts,
	}

	if user.FailedAttempts >= p.threshold {
		lockUntil := now.Add(p.duration)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := p.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("local provider: update failed attempts: %w", err)
	}

	reason := reasonBadPassword
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		reason = reasonLocked
	}
	p.recordFailure(ctx, user, input, reason)

	return auth.ErrInvalidCredentials
}

func (p *LocalProvider) recordFailure(ctx context.Context, user *models.User, input AuthenticateInput, reason string) {
	metrics.AuthAttempts.WithLabelValues("failure", reason).Inc()

	attempt := &models.LoginAttempt{
		Identifier:    truncate(strings.ToLower(strings.TrimSpace(input.Identifier)), 255),
		Success:       false,
		FailureReason: &reason,
		IPAddress:     strings.TrimSpace(input.IPAddress),
		UserAgent:     truncate(input.UserAgent, 512),
		Metadata:      datatypes.JSONMap{"source": "login"},
	}
	if user != nil {
		userID := user.ID
		attempt.UserID = &userID
	}

	if err := p.db.WithContext(ctx).Create(attempt).Error; err != nil {
		p.logger.Warn("record login attempt failed", zap.String("reason", reason), zap.Error(err))
	}
}

// Register creates a new local user with a hashed password.
func (p *LocalProvider) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if !p.allowRegister {
		return nil, auth.ErrRegistrationDisabled
	}

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return nil, errors.New("local provider: username, email and password are required")
	}

	var existing int64
	if err := p.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ? OR LOWER(username) = LOWER(?)", email, username).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("local provider: check identity: %w", err)
	}
	if existing > 0 {
		return nil, auth.ErrDuplicateIdentity
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("local provider: hash password: %w", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		Role:     models.RoleUser,
	}

	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		// The unique indexes catch registrations racing past the pre-check.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, auth.ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("local provider: create user: %w", err)
	}

	event := events.New(events.TypeUserRegistered, user.ID, map[string]any{
		"email":    user.Email,
		"username": user.Username,
	})
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("publish registration event failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	return user, nil
}

// ChangePassword updates a user's password after verifying the existing credential.
func (p *LocalProvider) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(userID) == "" || newPassword == "" {
		return errors.New("local provider: user id and new password are required")
	}

	var user models.User
	if err := p.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return auth.ErrInvalidCredentials
		}
		return fmt.Errorf("local provider: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return auth.ErrInvalidCredentials
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("local provider: hash password: %w", err)
	}

	if err := p.db.WithContext(ctx).Model(&user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("local provider: update password: %w", err)
	}

	if err := p.publisher.Publish(ctx, events.New(events.TypePasswordChanged, user.ID, map[string]any{
		"via": "change",
	})); err != nil {
		p.logger.Warn("publish password changed event failed", zap.Error(err))
	}

	return nil
}

// dummyHash is a bcrypt hash of a random string used to equalise timing for unknown users.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z9lJxFEmGIy2Gxw7ZcO8Sx6G"

// truncate caps value at limit bytes without splitting a UTF-8 sequence.
func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
