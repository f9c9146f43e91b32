package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/database/testutil"
	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/pkg/crypto"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, event := range p.events {
		out[i] = event.Type
	}
	return out
}

type tokenFixture struct {
	db        *gorm.DB
	svc       *TokenService
	tracker   *SessionTracker
	jwt       *JWTService
	clock     *testClock
	publisher *recordingPublisher
}

func setupTokenService(t *testing.T, mutate ...func(*TokenConfig)) *tokenFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}

	jwtSvc, err := NewJWTService(JWTConfig{
		Secret:         "test-secret",
		Issuer:         "tippster",
		AccessTokenTTL: 15 * time.Minute,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	tracker, err := NewSessionTracker(db, clock.Now, nil)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	cfg := TokenConfig{
		RefreshTokenTTL:  24 * time.Hour,
		ReuseGracePeriod: 10 * time.Second,
		Clock:            clock.Now,
		Publisher:        publisher,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	svc, err := NewTokenService(db, jwtSvc, tracker, cfg)
	require.NoError(t, err)

	return &tokenFixture{db: db, svc: svc, tracker: tracker, jwt: jwtSvc, clock: clock, publisher: publisher}
}

func createTestUser(t *testing.T, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password123")
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func testMetadata() RequestMetadata {
	return RequestMetadata{
		Device: ParseDevice("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0 Safari/537.36", "10.0.0.1", nil),
		Source: "login",
	}
}
