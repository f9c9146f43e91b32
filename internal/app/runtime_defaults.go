package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/tippster/pkg/crypto"
)

const (
	jwtSecretBytes  = 48
	minJWTSecretLen = 32
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
// A generated JWT secret invalidates every access token on restart and is not shared between instances.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	return generated, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	c.Auth.JWT.Secret = strings.TrimSpace(c.Auth.JWT.Secret)
	if len(c.Auth.JWT.Secret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt.secret must be at least %d characters", minJWTSecretLen)
	}
	if c.Events.Kafka.Enabled && len(c.Events.KafkaPublisherConfig().Brokers) == 0 {
		return errors.New("events.kafka.brokers must list at least one broker when kafka is enabled")
	}
	if c.Auth.Session.RefreshTTL > 0 && c.Auth.JWT.TTL > 0 && c.Auth.JWT.TTL >= c.Auth.Session.RefreshTTL {
		return errors.New("auth.jwt.access_token_ttl must be shorter than auth.session.refresh_token_ttl")
	}
	return nil
}
