package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tippster/internal/models"
)

func TestSessionTrackerOpenAndList(t *testing.T) {
	fx := setupTokenService(t)
	ctx := context.Background()
	user := createTestUser(t, fx.db, "lister", models.RoleUser)

	first, err := fx.tracker.OpenSession(ctx, nil, user.ID, testMetadata().Device, "token-1")
	require.NoError(t, err)
	require.True(t, first.IsActive)
	require.Nil(t, first.SessionEnd)

	fx.clock.Advance(time.Minute)
	second, err := fx.tracker.OpenSession(ctx, nil, user.ID, DeviceInfo{Type: DeviceMobile}, "token-2")
	require.NoError(t, err)

	sessions, err := fx.tracker.ListActiveSessions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, second.ID, sessions[0].ID, "most recent session first")
	require.Equal(t, first.ID, sessions[1].ID)
}

func TestSessionTrackerCloseIsIdempotent(t *testing.T) {
	fx := setupTokenService(t)
	ctx := context.Background()
	user := createTestUser(t, fx.db, "closer", models.RoleUser)

	session, err := fx.tracker.OpenSession(ctx, nil, user.ID, DeviceInfo{}, "")
	require.NoError(t, err)

	fx.clock.Advance(time.Hour)
	closed, err := fx.tracker.CloseSession(ctx, session.ID, SessionEndLogout)
	require.NoError(t, err)
	require.True(t, closed)

	closed, err = fx.tracker.CloseSession(ctx, session.ID, SessionEndSecurity)
	require.NoError(t, err)
	require.False(t, closed)

	reloaded, err := fx.tracker.Get(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsActive)
	require.NotNil(t, reloaded.SessionEnd)
	require.True(t, reloaded.SessionEnd.Equal(fx.clock.Now()))
	require.Equal(t, SessionEndLogout, reloaded.EndReason)

	closed, err = fx.tracker.CloseSession(ctx, "", SessionEndLogout)
	require.NoError(t, err)
	require.False(t, closed)
}

func TestSessionTrackerCloseUserSessionsExcept(t *testing.T) {
	fx := setupTokenService(t)
	ctx := context.Background()
	user := createTestUser(t, fx.db, "everywhere", models.RoleUser)

	keep, err := fx.tracker.OpenSession(ctx, nil, user.ID, DeviceInfo{}, "")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := fx.tracker.OpenSession(ctx, nil, user.ID, DeviceInfo{}, "")
		require.NoError(t, err)
	}

	count, err := fx.tracker.CloseUserSessions(ctx, user.ID, SessionEndRevoked, keep.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	sessions, err := fx.tracker.ListActiveSessions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, keep.ID, sessions[0].ID)
}

func TestSessionTrackerActiveFlagMatchesEnd(t *testing.T) {
	fx := setupTokenService(t)
	ctx := context.Background()
	user := createTestUser(t, fx.db, "onesession", models.RoleUser)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		session, err := fx.tracker.OpenSession(ctx, nil, user.ID, DeviceInfo{}, "")
		require.NoError(t, err)
		ids = append(ids, session.ID)
	}
	_, err := fx.tracker.CloseSessions(ctx, []string{ids[0], ids[0], ids[2]}, SessionEndExpired)
	require.NoError(t, err)

	var sessions []models.Session
	require.NoError(t, fx.db.Where("user_id = ?", user.ID).Find(&sessions).Error)
	require.Len(t, sessions, 3)
	for _, session := range sessions {
		require.Equal(t, session.IsActive, session.SessionEnd == nil, "session %s", session.ID)
	}
}

func TestSessionTrackerGetMissing(t *testing.T) {
	fx := setupTokenService(t)

	_, err := fx.tracker.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
