package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/pkg/crypto"
	"github.com/charlesng35/tippster/pkg/metrics"
)

const (
	// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	// DefaultReuseGracePeriod tolerates a client racing itself on the same refresh token.
	DefaultReuseGracePeriod = 10 * time.Second
)

// TokenConfig describes tunable behaviour for the TokenService.
type TokenConfig struct {
	RefreshTokenTTL time.Duration
	RefreshLength   int
	// DisableReuseDetection turns off revoking every token of a user when a rotated token is replayed.
	DisableReuseDetection bool
	ReuseGracePeriod      time.Duration
	Clock                 func() time.Time
	Cache                 RefreshCache
	Publisher             events.Publisher
	Logger                *zap.Logger
}

// RequestMetadata captures the client context of a token issuing request.
type RequestMetadata struct {
	Device DeviceInfo
	// Source labels the flow that issued the pair (login, register).
	Source string
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// TokenService is the sole authority for issuing, rotating and revoking refresh tokens.
type TokenService struct {
	db             *gorm.DB
	jwt            *JWTService
	store          RefreshTokenStore
	tracker        *SessionTracker
	cache          RefreshCache
	publisher      events.Publisher
	refreshTTL     time.Duration
	tokenLen       int
	reuseDetection bool
	reuseGrace     time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewTokenService wires the token issuer to its collaborators.
func NewTokenService(db *gorm.DB, jwtService *JWTService, tracker *SessionTracker, cfg TokenConfig) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("token service: jwt service is required")
	}
	if tracker == nil {
		return nil, errors.New("token service: session tracker is required")
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	length := cfg.RefreshLength
	if length <= 0 {
		length = 48
	}

	grace := cfg.ReuseGracePeriod
	if grace < 0 {
		grace = 0
	} else if grace == 0 {
		grace = DefaultReuseGracePeriod
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenService{
		db:             db,
		jwt:            jwtService,
		store:          NewRefreshTokenStore(db),
		tracker:        tracker,
		cache:          cfg.Cache,
		publisher:      events.OrNop(cfg.Publisher),
		refreshTTL:     ttl,
		tokenLen:       length,
		reuseDetection: !cfg.DisableReuseDetection,
		reuseGrace:     grace,
		now:            clock,
		logger:         logger,
	}, nil
}

// VerifyAccessToken checks signature and expiry without touching storage.
func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return s.jwt.ValidateAccessToken(token)
}

// IssueTokenPair opens a new session for the user and mints an access/refresh pair for it. The
// refresh token row, the session row and the login attempt are written in one transaction.
func (s *TokenService) IssueTokenPair(ctx context.Context, user *models.User, meta RequestMetadata) (TokenPair, *models.Session, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return TokenPair{}, nil, errors.New("token service: user is required")
	}

	raw, token, err := s.newRefreshToken(user.ID, meta.Device)
	if err != nil {
		return TokenPair{}, nil, err
	}

	var session *models.Session
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		opened, err := s.tracker.OpenSession(ctx, tx, user.ID, meta.Device, token.ID)
		if err != nil {
			return err
		}
		session = opened
		token.SessionID = opened.ID

		if err := s.store.WithTx(tx).Create(ctx, token); err != nil {
			return err
		}

		sessionID := opened.ID
		sessionStart := opened.SessionStart
		userID := user.ID
		return s.tracker.RecordLoginAttempt(ctx, tx, &models.LoginAttempt{
			UserID:       &userID,
			Identifier:   user.Email,
			Success:      true,
			IPAddress:    meta.Device.IPAddress,
			UserAgent:    meta.Device.UserAgent,
			SessionID:    &sessionID,
			SessionStart: &sessionStart,
			Metadata:     datatypes.JSONMap{"source": meta.Source, "device": meta.Device.Type},
		})
	})
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("token service: issue token pair: %w", err)
	}

	access, accessExpiresAt, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    user.ID,
		Role:      user.Role,
		SessionID: session.ID,
	})
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("token service: generate access token: %w", err)
	}

	s.cacheToken(ctx, token)

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     raw,
		RefreshExpiresAt: token.ExpiresAt,
		SessionID:        session.ID,
	}, session, nil
}

// Refresh rotates a refresh token: the presented token is revoked with reason rotated and a new
// pair is issued for the same session. A token can be used at most once; concurrent callers
// presenting the same value see exactly one success and ErrTokenRevoked for the rest.
func (s *TokenService) Refresh(ctx context.Context, presented string, meta RequestMetadata) (TokenPair, *models.Session, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		metrics.TokenRefreshes.WithLabelValues("invalid").Inc()
		return TokenPair{}, nil, ErrTokenInvalid
	}

	hash := crypto.HashToken(presented)
	current, err := s.lookup(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			metrics.TokenRefreshes.WithLabelValues("not_found").Inc()
		}
		return TokenPair{}, nil, err
	}

	now := s.now().UTC()

	if current.IsRevoked() {
		metrics.TokenRefreshes.WithLabelValues("revoked").Inc()
		if err := s.handleReplay(ctx, current, now); err != nil {
			s.logger.Error("replay hardening failed", zap.String("user_id", current.UserID), zap.Error(err))
		}
		return TokenPair{}, nil, ErrTokenRevoked
	}

	if current.IsExpired(now) {
		metrics.TokenRefreshes.WithLabelValues("expired").Inc()
		if err := s.expireToken(ctx, current, now); err != nil {
			return TokenPair{}, nil, err
		}
		return TokenPair{}, nil, ErrTokenExpired
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", current.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, nil, ErrTokenNotFound
		}
		return TokenPair{}, nil, fmt.Errorf("token service: load user: %w", err)
	}
	if user.IsBanned() {
		metrics.TokenRefreshes.WithLabelValues("banned").Inc()
		if err := s.revokeOne(ctx, current, models.RevokeReasonSecurity, SessionEndBanned); err != nil {
			return TokenPair{}, nil, err
		}
		return TokenPair{}, nil, ErrAccountBanned
	}

	raw, next, err := s.newRefreshToken(user.ID, meta.Device)
	if err != nil {
		return TokenPair{}, nil, err
	}
	next.SessionID = current.SessionID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.store.WithTx(tx)
		won, err := store.Revoke(ctx, current.ID, models.RevokeReasonRotated, now)
		if err != nil {
			return err
		}
		if !won {
			return ErrTokenRevoked
		}
		if err := store.Create(ctx, next); err != nil {
			return err
		}
		return s.tracker.AttachToken(ctx, tx, current.SessionID, next.ID)
	})
	s.dropCached(ctx, current.TokenHash)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			metrics.TokenRefreshes.WithLabelValues("revoked").Inc()
			s.replayLostRotation(ctx, current.TokenHash, now)
			return TokenPair{}, nil, ErrTokenRevoked
		}
		return TokenPair{}, nil, fmt.Errorf("token service: rotate: %w", err)
	}
	metrics.TokensRevoked.WithLabelValues(string(models.RevokeReasonRotated)).Inc()

	access, accessExpiresAt, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    user.ID,
		Role:      user.Role,
		SessionID: current.SessionID,
	})
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("token service: generate access token: %w", err)
	}

	s.cacheToken(ctx, next)
	metrics.TokenRefreshes.WithLabelValues("success").Inc()

	var session *models.Session
	if current.SessionID != "" {
		if loaded, err := s.tracker.Get(ctx, current.SessionID); err == nil {
			session = loaded
		}
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     raw,
		RefreshExpiresAt: next.ExpiresAt,
		SessionID:        current.SessionID,
	}, session, nil
}

// Revoke revokes a single token by id and closes its session. Revoking an already revoked token is
// a no-op.
func (s *TokenService) Revoke(ctx context.Context, tokenID string, reason models.RevokeReason) error {
	token, err := s.store.FindByID(ctx, tokenID)
	if err != nil {
		return err
	}
	return s.revokeOne(ctx, token, reason, sessionEndFor(reason))
}

// RevokeAllForUser revokes every active token of the user and closes the sessions they back.
// It returns the number of tokens revoked by this call.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string, reason models.RevokeReason) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("token service: user id is required")
	}
	return s.revokeWhere(ctx, TokenFilter{UserID: userID}, reason, sessionEndFor(reason))
}

// RevokeSession ends one of the user's sessions and revokes the tokens backing it.
func (s *TokenService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.tracker.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	_, err = s.revokeWhere(ctx, TokenFilter{SessionIDs: []string{sessionID}}, models.RevokeReasonLogout, SessionEndRevoked)
	if err != nil {
		return err
	}
	_, err = s.tracker.CloseSession(ctx, sessionID, SessionEndRevoked)
	return err
}

// RevokeOtherSessions logs the user out of every device except the current session.
func (s *TokenService) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("token service: user id is required")
	}
	closed, err := s.tracker.CloseUserSessions(ctx, userID, SessionEndRevoked, currentSessionID)
	if err != nil {
		return 0, err
	}
	filter := TokenFilter{UserID: userID, ExceptSessionID: currentSessionID}
	if _, err := s.revokeWhere(ctx, filter, models.RevokeReasonLogout, SessionEndRevoked); err != nil {
		return closed, err
	}
	return closed, nil
}

// Logout revokes the presented refresh token and closes its session. Unknown or absent tokens are
// ignored so that logout always succeeds; sessionID is used when no token is presented.
func (s *TokenService) Logout(ctx context.Context, presented, sessionID string) error {
	presented = strings.TrimSpace(presented)
	if presented != "" {
		token, err := s.lookup(ctx, crypto.HashToken(presented))
		switch {
		case errors.Is(err, ErrTokenNotFound):
		case err != nil:
			return err
		default:
			if err := s.revokeOne(ctx, token, models.RevokeReasonLogout, SessionEndLogout); err != nil {
				return err
			}
			if token.SessionID != "" {
				sessionID = token.SessionID
			}
		}
	}

	if sessionID == "" {
		return nil
	}
	if _, err := s.revokeWhere(ctx, TokenFilter{SessionIDs: []string{sessionID}}, models.RevokeReasonLogout, SessionEndLogout); err != nil {
		return err
	}
	_, err := s.tracker.CloseSession(ctx, sessionID, SessionEndLogout)
	return err
}

// ExpireStale marks active tokens past their expiry as expired and closes their sessions. It is
// the periodic counterpart of the lazy check done in Refresh.
func (s *TokenService) ExpireStale(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	return s.revokeWhere(ctx, TokenFilter{ExpiredAt: &now}, models.RevokeReasonExpired, SessionEndExpired)
}

func (s *TokenService) handleReplay(ctx context.Context, token *models.RefreshToken, now time.Time) error {
	if token.Reason() != models.RevokeReasonRotated || !s.reuseDetection {
		return nil
	}
	if token.RevokedAt != nil && now.Sub(*token.RevokedAt) < s.reuseGrace {
		// A client racing itself (two tabs) loses the rotation; do not punish the winner.
		return nil
	}

	metrics.RefreshReplays.Inc()
	s.logger.Warn("rotated refresh token replayed; revoking all user tokens",
		zap.String("user_id", token.UserID),
		zap.String("token_id", token.ID),
	)

	revoked, err := s.RevokeAllForUser(ctx, token.UserID, models.RevokeReasonSecurity)
	if err != nil {
		return err
	}

	event := events.New(events.TypeReplayDetected, token.UserID, map[string]any{
		"token_id":       token.ID,
		"session_id":     token.SessionID,
		"revoked_tokens": revoked,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish replay event failed", zap.Error(err))
	}
	return nil
}

// replayLostRotation reloads a token whose conditional revoke was lost, since a stale cached
// copy may have looked active, and applies replay hardening to the stored state.
func (s *TokenService) replayLostRotation(ctx context.Context, hash string, now time.Time) {
	stored, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		s.logger.Warn("reload lost rotation failed", zap.Error(err))
		return
	}
	if err := s.handleReplay(ctx, stored, now); err != nil {
		s.logger.Error("replay hardening failed", zap.String("user_id", stored.UserID), zap.Error(err))
	}
}

func (s *TokenService) expireToken(ctx context.Context, token *models.RefreshToken, now time.Time) error {
	won, err := s.store.Revoke(ctx, token.ID, models.RevokeReasonExpired, now)
	if err != nil {
		return err
	}
	s.dropCached(ctx, token.TokenHash)
	if !won {
		return nil
	}
	metrics.TokensRevoked.WithLabelValues(string(models.RevokeReasonExpired)).Inc()
	_, err = s.tracker.CloseSession(ctx, token.SessionID, SessionEndExpired)
	return err
}

func (s *TokenService) revokeOne(ctx context.Context, token *models.RefreshToken, reason models.RevokeReason, endReason string) error {
	won, err := s.store.Revoke(ctx, token.ID, reason, s.now().UTC())
	if err != nil {
		return err
	}
	s.dropCached(ctx, token.TokenHash)
	if !won {
		return nil
	}
	metrics.TokensRevoked.WithLabelValues(string(reason)).Inc()
	_, err = s.tracker.CloseSession(ctx, token.SessionID, endReason)
	return err
}

func (s *TokenService) revokeWhere(ctx context.Context, filter TokenFilter, reason models.RevokeReason, endReason string) (int64, error) {
	revoked, err := s.store.RevokeWhere(ctx, filter, reason, s.now().UTC())
	hashes := make([]string, 0, len(revoked))
	sessions := make([]string, 0, len(revoked))
	for _, token := range revoked {
		hashes = append(hashes, token.TokenHash)
		sessions = append(sessions, token.SessionID)
	}
	s.dropCached(ctx, hashes...)
	if err != nil {
		return int64(len(revoked)), err
	}
	if len(revoked) > 0 {
		metrics.TokensRevoked.WithLabelValues(string(reason)).Add(float64(len(revoked)))
	}

	if filter.UserID != "" && len(filter.SessionIDs) == 0 && filter.ExpiredAt == nil {
		// Sessions without an active token (already rotated out by a race) are closed too.
		_, err = s.tracker.CloseUserSessions(ctx, filter.UserID, endReason, filter.ExceptSessionID)
	} else {
		_, err = s.tracker.CloseSessions(ctx, sessions, endReason)
	}
	return int64(len(revoked)), err
}

func (s *TokenService) newRefreshToken(userID string, device DeviceInfo) (string, *models.RefreshToken, error) {
	raw, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return "", nil, fmt.Errorf("token service: generate refresh token: %w", err)
	}
	now := s.now().UTC()
	return raw, &models.RefreshToken{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  crypto.HashToken(raw),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
		DeviceInfo: device.Summary(),
		IPAddress:  device.IPAddress,
	}, nil
}

func (s *TokenService) lookup(ctx context.Context, hash string) (*models.RefreshToken, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, hash)
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil && !errors.Is(err, errRefreshCacheMiss) {
			s.logger.Debug("refresh cache lookup failed", zap.Error(err))
		}
	}

	token, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.cacheToken(ctx, token)
	return token, nil
}

func (s *TokenService) cacheToken(ctx context.Context, token *models.RefreshToken) {
	if s.cache == nil || token == nil || token.IsRevoked() {
		return
	}
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, token, ttl); err != nil {
		s.logger.Debug("refresh cache store failed", zap.Error(err))
	}
}

func (s *TokenService) dropCached(ctx context.Context, hashes ...string) {
	if s.cache == nil || len(hashes) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, hashes...); err != nil {
		s.logger.Debug("refresh cache eviction failed", zap.Error(err))
	}
}

func sessionEndFor(reason models.RevokeReason) string {
	switch reason {
	case models.RevokeReasonLogout:
		return SessionEndLogout
	case models.RevokeReasonExpired:
		return SessionEndExpired
	default:
		return SessionEndSecurity
	}
}
