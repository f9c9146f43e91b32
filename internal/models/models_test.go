package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)
}

func TestBeforeCreateHooksAssignIDs(t *testing.T) {
	user := &User{}
	require.NoError(t, user.BeforeCreate(nil))
	require.NotEmpty(t, user.ID)
	require.Equal(t, RoleUser, user.Role)

	token := &RefreshToken{}
	require.NoError(t, token.BeforeCreate(nil))
	require.NotEmpty(t, token.ID)

	session := &Session{}
	require.NoError(t, session.BeforeCreate(nil))
	require.NotEmpty(t, session.ID)

	attempt := &LoginAttempt{}
	require.NoError(t, attempt.BeforeCreate(nil))
	require.NotEmpty(t, attempt.ID)

	reset := &PasswordResetToken{}
	require.NoError(t, reset.BeforeCreate(nil))
	require.NotEmpty(t, reset.ID)
}

func TestBeforeCreateKeepsExistingValues(t *testing.T) {
	user := &User{ID: "fixed", Role: RoleAdmin}
	require.NoError(t, user.BeforeCreate(nil))
	require.Equal(t, "fixed", user.ID)
	require.Equal(t, RoleAdmin, user.Role)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Admin ")
	require.True(t, ok)
	require.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("superuser")
	require.False(t, ok)
}

func TestRefreshTokenState(t *testing.T) {
	now := time.Now()
	token := &RefreshToken{ExpiresAt: now.Add(time.Minute)}
	require.False(t, token.IsRevoked())
	require.False(t, token.IsExpired(now))
	require.True(t, token.IsExpired(now.Add(time.Minute)))
	require.Empty(t, token.Reason())

	reason := RevokeReasonRotated
	token.RevokedAt = &now
	token.RevokeReason = &reason
	require.True(t, token.IsRevoked())
	require.Equal(t, RevokeReasonRotated, token.Reason())
}

func TestUserFlags(t *testing.T) {
	var nilUser *User
	require.False(t, nilUser.IsBanned())

	now := time.Now()
	user := &User{VerifiedAt: &now}
	require.True(t, user.IsVerified())
	require.False(t, user.IsBanned())
	user.BannedAt = &now
	require.True(t, user.IsBanned())
}
