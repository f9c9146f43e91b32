package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/pkg/metrics"
)

// Session end reasons.
const (
	SessionEndLogout   = "logout"
	SessionEndRevoked  = "revoked"
	SessionEndSecurity = "security"
	SessionEndExpired  = "expired"
	SessionEndBanned   = "banned"
)

// SessionTracker maintains the audit view of active logins per device.
type SessionTracker struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewSessionTracker constructs a tracker backed by the provided database.
func NewSessionTracker(db *gorm.DB, clock func() time.Time, logger *zap.Logger) (*SessionTracker, error) {
	if db == nil {
		return nil, errors.New("session tracker: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionTracker{db: db, now: clock, logger: logger}, nil
}

func (t *SessionTracker) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return t.db.WithContext(ctx)
}

// OpenSession records a new active session backed by the supplied refresh token id. The optional
// tx lets callers create the session atomically with the token.
func (t *SessionTracker) OpenSession(ctx context.Context, tx *gorm.DB, userID string, device DeviceInfo, refreshTokenID string) (*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("session tracker: user id is required")
	}

	session := &models.Session{
		UserID:         userID,
		RefreshTokenID: refreshTokenID,
		DeviceType:     device.Type,
		Browser:        device.Browser,
		OS:             device.OS,
		UserAgent:      device.UserAgent,
		IPAddress:      device.IPAddress,
		Country:        device.Country,
		City:           device.City,
		SessionStart:   t.now().UTC(),
		IsActive:       true,
	}

	if err := t.conn(ctx, tx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("session tracker: open session: %w", err)
	}

	metrics.ActiveSessions.Inc()
	return session, nil
}

// AttachToken re-points an active session to the refresh token that now backs it.
func (t *SessionTracker) AttachToken(ctx context.Context, tx *gorm.DB, sessionID, refreshTokenID string) error {
	if sessionID == "" {
		return nil
	}
	err := t.conn(ctx, tx).
		Model(&models.Session{}).
		Where("id = ? AND is_active = ?", sessionID, true).
		Updates(map[string]any{
			"refresh_token_id": refreshTokenID,
			"updated_at":       t.now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("session tracker: attach token: %w", err)
	}
	return nil
}

// RecordLoginAttempt persists a login attempt row. The optional tx links it to a session opened
// in the same transaction.
func (t *SessionTracker) RecordLoginAttempt(ctx context.Context, tx *gorm.DB, attempt *models.LoginAttempt) error {
	if attempt == nil {
		return errors.New("session tracker: attempt is nil")
	}
	if err := t.conn(ctx, tx).Create(attempt).Error; err != nil {
		return fmt.Errorf("session tracker: record login attempt: %w", err)
	}
	return nil
}

// CloseSession ends an active session. Closing an already closed session is a no-op; the return
// value reports whether this call closed it.
func (t *SessionTracker) CloseSession(ctx context.Context, sessionID, reason string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}
	closed, err := t.closeWhere(ctx, reason, "id = ?", sessionID)
	return closed > 0, err
}

// CloseSessions ends every listed session that is still active.
func (t *SessionTracker) CloseSessions(ctx context.Context, sessionIDs []string, reason string) (int64, error) {
	ids := make([]string, 0, len(sessionIDs))
	seen := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return t.closeWhere(ctx, reason, "id IN ?", ids)
}

// CloseUserSessions ends all active sessions of a user, optionally sparing one.
func (t *SessionTracker) CloseUserSessions(ctx context.Context, userID, reason, exceptSessionID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("session tracker: user id is required")
	}
	if exceptSessionID != "" {
		return t.closeWhere(ctx, reason, "user_id = ? AND id <> ?", userID, exceptSessionID)
	}
	return t.closeWhere(ctx, reason, "user_id = ?", userID)
}

func (t *SessionTracker) closeWhere(ctx context.Context, reason, query string, args ...any) (int64, error) {
	var ids []string
	if err := t.db.WithContext(ctx).
		Model(&models.Session{}).
		Where(query, args...).
		Where("is_active = ?", true).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("session tracker: list sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	now := t.now().UTC()
	result := t.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Updates(map[string]any{
			"is_active":   false,
			"session_end": now,
			"end_reason":  reason,
			"updated_at":  now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("session tracker: close sessions: %w", result.Error)
	}

	if err := t.db.WithContext(ctx).
		Model(&models.LoginAttempt{}).
		Where("session_id IN ? AND session_end IS NULL", ids).
		Update("session_end", now).Error; err != nil {
		return result.RowsAffected, fmt.Errorf("session tracker: stamp login attempts: %w", err)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
		t.logger.Debug("sessions closed",
			zap.Int64("count", result.RowsAffected),
			zap.String("reason", reason),
		)
	}
	return result.RowsAffected, nil
}

// ListActiveSessions returns the user's active sessions, most recent first.
func (t *SessionTracker) ListActiveSessions(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	if err := t.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("session_start DESC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("session tracker: list active sessions: %w", err)
	}
	return sessions, nil
}

// Get loads a session by id.
func (t *SessionTracker) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := t.db.WithContext(ctx).Take(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session tracker: get session: %w", err)
	}
	return &session, nil
}
