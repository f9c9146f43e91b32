package app

import (
	"time"

	"github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/auth/providers"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// TokenServiceConfig converts AuthConfig into TokenService parameters. Cache, publisher and logger
// are attached by the caller.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = 48
	}

	grace := c.Session.ReuseGracePeriod
	if grace <= 0 {
		grace = auth.DefaultReuseGracePeriod
	}

	return auth.TokenConfig{
		RefreshTokenTTL:       ttl,
		RefreshLength:         length,
		DisableReuseDetection: !c.Session.ReuseDetection,
		ReuseGracePeriod:      grace,
	}
}

// LocalProviderConfig converts AuthConfig into LocalProvider parameters.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return providers.LocalConfig{
		LockoutThreshold:    threshold,
		LockoutDuration:     duration,
		RequireVerified:     c.Local.RequireVerified,
		DisableRegistration: c.Local.DisableRegistration,
	}
}

// PasswordResetServiceConfig converts AuthConfig into PasswordResetService parameters.
func (c AuthConfig) PasswordResetServiceConfig() auth.PasswordResetConfig {
	ttl := c.PasswordReset.TokenTTL
	if ttl <= 0 {
		ttl = auth.DefaultResetTokenTTL
	}
	return auth.PasswordResetConfig{
		TokenTTL:    ttl,
		TokenLength: c.PasswordReset.TokenLength,
	}
}
