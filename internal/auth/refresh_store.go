package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/models"
)

// RefreshTokenStore persists refresh tokens. Revocation is always a conditional write so that
// concurrent callers racing on the same row observe exactly one winner.
type RefreshTokenStore interface {
	// WithTx returns a store bound to the supplied transaction.
	WithTx(tx *gorm.DB) RefreshTokenStore
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByID(ctx context.Context, id string) (*models.RefreshToken, error)
	FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// Revoke marks the token revoked if it is still active and reports whether this call won.
	Revoke(ctx context.Context, id string, reason models.RevokeReason, at time.Time) (bool, error)
	// RevokeWhere revokes every active token matching the filter and returns the affected rows.
	RevokeWhere(ctx context.Context, filter TokenFilter, reason models.RevokeReason, at time.Time) ([]models.RefreshToken, error)
}

// TokenFilter narrows bulk revocations. Empty fields are ignored; at least one must be set.
type TokenFilter struct {
	UserID           string
	SessionIDs       []string
	ExceptSessionID  string
	ExpiredAt        *time.Time
	ExcludeTokenHash string
}

func (f TokenFilter) empty() bool {
	return f.UserID == "" && len(f.SessionIDs) == 0 && f.ExpiredAt == nil
}

type gormRefreshTokenStore struct {
	db *gorm.DB
}

// NewRefreshTokenStore returns the gorm-backed store.
func NewRefreshTokenStore(db *gorm.DB) RefreshTokenStore {
	return &gormRefreshTokenStore{db: db}
}

func (s *gormRefreshTokenStore) WithTx(tx *gorm.DB) RefreshTokenStore {
	if tx == nil {
		return s
	}
	return &gormRefreshTokenStore{db: tx}
}

func (s *gormRefreshTokenStore) Create(ctx context.Context, token *models.RefreshToken) error {
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("refresh store: create: %w", err)
	}
	return nil
}

func (s *gormRefreshTokenStore) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	return s.find(ctx, "id = ?", id)
}

func (s *gormRefreshTokenStore) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	return s.find(ctx, "token_hash = ?", hash)
}

func (s *gormRefreshTokenStore) find(ctx context.Context, query string, arg string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := s.db.WithContext(ctx).Where(query, arg).Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("refresh store: find: %w", err)
	}
	return &token, nil
}

func (s *gormRefreshTokenStore) Revoke(ctx context.Context, id string, reason models.RevokeReason, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{
			"revoked_at":    at,
			"revoke_reason": reason,
		})
	if result.Error != nil {
		return false, fmt.Errorf("refresh store: revoke: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormRefreshTokenStore) RevokeWhere(ctx context.Context, filter TokenFilter, reason models.RevokeReason, at time.Time) ([]models.RefreshToken, error) {
	if filter.empty() {
		return nil, errors.New("refresh store: revoke filter is empty")
	}

	var candidates []models.RefreshToken
	if err := s.scope(ctx, filter).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("refresh store: list active: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Each row is revoked with its own conditional write; rows revoked concurrently by another
	// caller are not reported as ours.
	revoked := make([]models.RefreshToken, 0, len(candidates))
	for _, token := range candidates {
		won, err := s.Revoke(ctx, token.ID, reason, at)
		if err != nil {
			return revoked, err
		}
		if !won {
			continue
		}
		token.RevokedAt = &at
		r := reason
		token.RevokeReason = &r
		revoked = append(revoked, token)
	}
	return revoked, nil
}

func (s *gormRefreshTokenStore) scope(ctx context.Context, filter TokenFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.RefreshToken{}).Where("revoked_at IS NULL")
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if len(filter.SessionIDs) > 0 {
		query = query.Where("session_id IN ?", filter.SessionIDs)
	}
	if filter.ExceptSessionID != "" {
		query = query.Where("session_id <> ?", filter.ExceptSessionID)
	}
	if filter.ExpiredAt != nil {
		query = query.Where("expires_at <= ?", *filter.ExpiredAt)
	}
	if filter.ExcludeTokenHash != "" {
		query = query.Where("token_hash <> ?", filter.ExcludeTokenHash)
	}
	return query
}
