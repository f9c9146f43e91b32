package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tippster/internal/cache"
	"github.com/charlesng35/tippster/internal/models"
)

func newRedisRefreshCache(t *testing.T) (RefreshCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewRefreshCache(cache.NewRedisStore(client)), mr
}

func TestRefreshCacheRoundTrip(t *testing.T) {
	refreshCache, mr := newRedisRefreshCache(t)
	ctx := context.Background()

	token := &models.RefreshToken{
		ID:        "token-1",
		UserID:    "user-1",
		SessionID: "session-1",
		TokenHash: "abc123",
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, refreshCache.Set(ctx, token, time.Hour))
	require.True(t, mr.Exists("tippster:auth:refresh:abc123"))

	cached, err := refreshCache.Get(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, "token-1", cached.ID)
	require.Equal(t, "session-1", cached.SessionID)
	require.Equal(t, "abc123", cached.TokenHash)

	require.NoError(t, refreshCache.Delete(ctx, "abc123", ""))
	_, err = refreshCache.Get(ctx, "abc123")
	require.ErrorIs(t, err, errRefreshCacheMiss)
}

func TestRefreshCacheSkipsRevokedTokens(t *testing.T) {
	refreshCache, mr := newRedisRefreshCache(t)
	now := time.Now()
	reason := models.RevokeReasonLogout

	require.NoError(t, refreshCache.Set(context.Background(), &models.RefreshToken{
		TokenHash:    "revoked",
		RevokedAt:    &now,
		RevokeReason: &reason,
	}, time.Hour))
	require.False(t, mr.Exists("tippster:auth:refresh:revoked"))
}

func TestRefreshCacheExpires(t *testing.T) {
	refreshCache, mr := newRedisRefreshCache(t)
	ctx := context.Background()

	require.NoError(t, refreshCache.Set(ctx, &models.RefreshToken{TokenHash: "short"}, time.Second))
	mr.FastForward(2 * time.Second)

	_, err := refreshCache.Get(ctx, "short")
	require.ErrorIs(t, err, errRefreshCacheMiss)
}

func TestNewRefreshCacheNilStore(t *testing.T) {
	require.Nil(t, NewRefreshCache(nil))
}
