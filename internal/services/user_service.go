package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/models"
	apperrors "github.com/charlesng35/tippster/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrSelfModification prevents administrators from banning or demoting themselves.
	ErrSelfModification = apperrors.New("USER_SELF_MODIFICATION", "Administrators cannot perform this operation on themselves", http.StatusBadRequest)
	// ErrInvalidRole is returned for role names outside user|moderator|admin.
	ErrInvalidRole = apperrors.New("INVALID_ROLE", "Unknown role", http.StatusBadRequest)
)

// TokenRevoker is the part of the token issuer the user service needs.
type TokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string, reason models.RevokeReason) (int64, error)
}

// UserFilters captures listing filters.
type UserFilters struct {
	Role   string
	Banned *bool
	Query  string
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService implements the administrative account operations: ban, unban, verify, role change.
type UserService struct {
	db        *gorm.DB
	tokens    TokenRevoker
	publisher events.Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, tokens TokenRevoker, publisher events.Publisher, logger *zap.Logger) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("user service: token revoker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		db:        db,
		tokens:    tokens,
		publisher: events.OrNop(publisher),
		now:       time.Now,
		logger:    logger,
	}, nil
}

// GetByID loads a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List retrieves users matching the supplied filters with pagination.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if role := strings.TrimSpace(opts.Filters.Role); role != "" {
		query = query.Where("role = ?", strings.ToLower(role))
	}
	if opts.Filters.Banned != nil {
		if *opts.Filters.Banned {
			query = query.Where("banned_at IS NOT NULL")
		} else {
			query = query.Where("banned_at IS NULL")
		}
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// Ban suspends the account, revokes every refresh token and closes its sessions. Access tokens
// already issued stay valid until they expire.
func (s *UserService) Ban(ctx context.Context, actorID, id, reason string) (*models.User, error) {
	ctx = ensureContext(ctx)
	if actorID == id {
		return nil, ErrSelfModification
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !user.IsBanned() {
		now := s.now().UTC()
		reason = strings.TrimSpace(reason)
		if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
			"banned_at":  now,
			"ban_reason": reason,
		}).Error; err != nil {
			return nil, fmt.Errorf("user service: ban user: %w", err)
		}
		user.BannedAt = &now
		user.BanReason = reason
	}

	revoked, err := s.tokens.RevokeAllForUser(ctx, user.ID, models.RevokeReasonSecurity)
	if err != nil {
		return nil, fmt.Errorf("user service: revoke tokens: %w", err)
	}

	s.logger.Info("user banned",
		zap.String("user_id", user.ID),
		zap.String("actor_id", actorID),
		zap.Int64("revoked_tokens", revoked),
	)
	if err := s.publisher.Publish(ctx, events.New(events.TypeUserBanned, user.ID, map[string]any{
		"actor_id": actorID,
		"reason":   user.BanReason,
	})); err != nil {
		s.logger.Warn("publish ban event failed", zap.Error(err))
	}
	return user, nil
}

// Unban lifts a suspension. Existing tokens stay revoked; the user signs in again.
func (s *UserService) Unban(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsBanned() {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"banned_at":  nil,
		"ban_reason": "",
	}).Error; err != nil {
		return nil, fmt.Errorf("user service: unban user: %w", err)
	}
	user.BannedAt = nil
	user.BanReason = ""
	return user, nil
}

// Verify marks the account email as confirmed. Verifying twice keeps the first timestamp.
func (s *UserService) Verify(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsVerified() {
		return user, nil
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(user).Update("verified_at", now).Error; err != nil {
		return nil, fmt.Errorf("user service: verify user: %w", err)
	}
	user.VerifiedAt = &now
	return user, nil
}

// SetRole changes the role carried by future access tokens. Tokens already issued keep the old
// role until they expire, so demotions also revoke refresh tokens.
func (s *UserService) SetRole(ctx context.Context, actorID, id, role string) (*models.User, error) {
	ctx = ensureContext(ctx)

	parsed, ok := models.ParseRole(role)
	if !ok {
		return nil, ErrInvalidRole
	}
	if actorID == id {
		return nil, ErrSelfModification
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == parsed {
		return user, nil
	}

	previous := user.Role
	if err := s.db.WithContext(ctx).Model(user).Update("role", parsed).Error; err != nil {
		return nil, fmt.Errorf("user service: set role: %w", err)
	}
	user.Role = parsed

	if roleRank(parsed) < roleRank(previous) {
		if _, err := s.tokens.RevokeAllForUser(ctx, user.ID, models.RevokeReasonSecurity); err != nil {
			return nil, fmt.Errorf("user service: revoke tokens: %w", err)
		}
	}
	return user, nil
}

// Sessions lists the active sessions of a user for moderators and administrators.
func (s *UserService) Sessions(ctx context.Context, tracker *auth.SessionTracker, id string) ([]models.Session, error) {
	ctx = ensureContext(ctx)
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return tracker.ListActiveSessions(ctx, id)
}

func roleRank(role models.Role) int {
	switch role {
	case models.RoleAdmin:
		return 2
	case models.RoleModerator:
		return 1
	default:
		return 0
	}
}
