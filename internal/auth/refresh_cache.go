package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/tippster/internal/cache"
	"github.com/charlesng35/tippster/internal/models"
)

const refreshCacheKeyPrefix = "auth:refresh:"

var errRefreshCacheMiss = errors.New("refresh cache miss")

// RefreshCache speeds up refresh token lookups by hash. It is never authoritative: a cached row
// still has to win the conditional revoke in the store.
type RefreshCache interface {
	Get(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Set(ctx context.Context, token *models.RefreshToken, ttl time.Duration) error
	Delete(ctx context.Context, tokenHashes ...string) error
}

// NewRefreshCache wraps a shared cache.Store (Redis or database backed).
func NewRefreshCache(store cache.Store) RefreshCache {
	if store == nil {
		return nil
	}
	return &refreshStoreCache{store: store}
}

type refreshStoreCache struct {
	store cache.Store
}

func (c *refreshStoreCache) Get(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	key := refreshCacheKey(tokenHash)
	if key == "" {
		return nil, errRefreshCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errRefreshCacheMiss
	}

	var token models.RefreshToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("refresh cache: decode: %w", err)
	}
	// json:"-" drops the hash; restore it from the key.
	token.TokenHash = tokenHash
	return &token, nil
}

func (c *refreshStoreCache) Set(ctx context.Context, token *models.RefreshToken, ttl time.Duration) error {
	if token == nil {
		return errors.New("refresh cache: token is nil")
	}
	if token.IsRevoked() {
		return nil
	}
	key := refreshCacheKey(token.TokenHash)
	if key == "" {
		return errors.New("refresh cache: token hash missing")
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("refresh cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	return c.store.Set(ctx, key, payload, ttl)
}

func (c *refreshStoreCache) Delete(ctx context.Context, tokenHashes ...string) error {
	keys := make([]string, 0, len(tokenHashes))
	for _, hash := range tokenHashes {
		if key := refreshCacheKey(hash); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

func refreshCacheKey(tokenHash string) string {
	hash := strings.TrimSpace(tokenHash)
	if hash == "" {
		return ""
	}
	return refreshCacheKeyPrefix + hash
}
