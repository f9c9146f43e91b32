package providers

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/database/testutil"
	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/pkg/crypto"
)

func TestAuthenticateSuccessResetsCounters(t *testing.T) {
	db := setupDB(t)
	current := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	provider := newLocalProvider(t, db, LocalConfig{Clock: now})

	user := createUser(t, db, models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		FailedAttempts: 3,
	}, "password123")

	result, err := provider.Authenticate(context.Background(), AuthenticateInput{
		Identifier: "Alice@Example.com",
		Password:   "password123",
		IPAddress:  "127.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, result.ID)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)

	require.Equal(t, 0, updated.FailedAttempts)
	require.Nil(t, updated.LockedUntil)
	require.NotNil(t, updated.LastLoginAt)
	require.True(t, updated.LastLoginAt.Equal(current))
	require.Equal(t, "127.0.0.1", updated.LastLoginIP)
}

func TestAuthenticateByUsername(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})
	createUser(t, db, models.User{Username: "Tipster", Email: "tipster@example.com"}, "password123")

	_, err := provider.Authenticate(context.Background(), AuthenticateInput{Identifier: "tipster", Password: "password123"})
	require.NoError(t, err)
}

func TestAuthenticateUnknownAndWrongPasswordLookAlike(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})
	createUser(t, db, models.User{Username: "known", Email: "known@example.com"}, "password123")

	errUnknown := tryAuthenticate(provider, "ghost@example.com", "password123")
	errWrong := tryAuthenticate(provider, "known@example.com", "nope")

	require.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
	require.Equal(t, errUnknown.Error(), errWrong.Error())

	require.ErrorIs(t, tryAuthenticate(provider, "", ""), auth.ErrInvalidCredentials)

	var attempts []models.LoginAttempt
	require.NoError(t, db.Find(&attempts).Error)
	require.Len(t, attempts, 3)
	anonymous := 0
	for _, attempt := range attempts {
		require.False(t, attempt.Success)
		require.NotNil(t, attempt.FailureReason)
		if attempt.UserID == nil {
			anonymous++
		}
	}
	require.Equal(t, 2, anonymous)
}

func TestAuthenticateBannedAccount(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})

	bannedAt := time.Now().UTC()
	createUser(t, db, models.User{
		Username:  "a",
		Email:     "a@x.com",
		BannedAt:  &bannedAt,
		BanReason: "spam",
	}, "good")

	user, err := provider.Authenticate(context.Background(), AuthenticateInput{Identifier: "a@x.com", Password: "good"})
	require.ErrorIs(t, err, auth.ErrAccountBanned)
	require.Nil(t, user)

	// A wrong password on a banned account does not disclose the ban.
	require.ErrorIs(t, tryAuthenticate(provider, "a@x.com", "bad"), auth.ErrInvalidCredentials)
}

func TestAuthenticateUnverifiedAccount(t *testing.T) {
	db := setupDB(t)
	createUser(t, db, models.User{Username: "fresh", Email: "fresh@example.com"}, "password123")

	strict := newLocalProvider(t, db, LocalConfig{RequireVerified: true})
	require.ErrorIs(t, tryAuthenticate(strict, "fresh@example.com", "password123"), auth.ErrAccountUnverified)

	relaxed := newLocalProvider(t, db, LocalConfig{})
	require.NoError(t, tryAuthenticate(relaxed, "fresh@example.com", "password123"))
}

func TestAuthenticateInvalidPasswordLocksAccount(t *testing.T) {
	db := setupDB(t)
	current := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	provider := newLocalProvider(t, db, LocalConfig{
		LockoutThreshold: 3,
		LockoutDuration:  10 * time.Minute,
		Clock:            now,
	})

	user := createUser(t, db, models.User{
		Username:       "bob",
		Email:          "bob@example.com",
		FailedAttempts: 2,
	}, "correct")

	err := tryAuthenticate(provider, "bob", "wrong")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)

	require.Equal(t, 3, updated.FailedAttempts)
	require.NotNil(t, updated.LockedUntil)
	require.WithinDuration(t, current.Add(10*time.Minute), *updated.LockedUntil, time.Second)

	// Wrong passwords keep failing generically while locked.
	require.ErrorIs(t, tryAuthenticate(provider, "bob", "wrong"), auth.ErrInvalidCredentials)

	var reasons []string
	require.NoError(t, db.Model(&models.LoginAttempt{}).
		Where("user_id = ?", user.ID).
		Order("created_at").
		Pluck("failure_reason", &reasons).Error)
	require.Contains(t, reasons, reasonLocked)

	// Correct password is refused while locked, accepted once the lock elapsed.
	require.ErrorIs(t, tryAuthenticate(provider, "bob", "correct"), auth.ErrAccountLocked)
	current = current.Add(11 * time.Minute)
	require.NoError(t, tryAuthenticate(provider, "bob", "correct"))
}

func TestAuthenticateLockoutDoesNotRevealKnownEmails(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{
		LockoutThreshold: 3,
		LockoutDuration:  10 * time.Minute,
	})
	createUser(t, db, models.User{Username: "bob", Email: "bob@example.com"}, "correct")

	for attempt := 1; attempt <= 5; attempt++ {
		known := tryAuthenticate(provider, "bob@example.com", "wrong")
		unknown := tryAuthenticate(provider, "ghost@example.com", "wrong")

		require.ErrorIs(t, known, auth.ErrInvalidCredentials, "attempt %d", attempt)
		require.ErrorIs(t, unknown, auth.ErrInvalidCredentials, "attempt %d", attempt)
		require.Equal(t, unknown.Error(), known.Error(), "attempt %d", attempt)
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab", truncate("abcd", 2))

	// "é" is two bytes; cutting at byte 2 would split it.
	got := truncate("aé", 2)
	require.Equal(t, "a", got)
	require.True(t, utf8.ValidString(got))

	long := strings.Repeat("日本", 100)
	got = truncate(long, 255)
	require.True(t, utf8.ValidString(got))
	require.LessOrEqual(t, len(got), 255)
}

func TestRegisterHashesPasswordAndPublishes(t *testing.T) {
	db := setupDB(t)
	publisher := &capturePublisher{}
	provider := newLocalProvider(t, db, LocalConfig{Publisher: publisher})

	user, err := provider.Register(context.Background(), RegisterInput{
		Username: "eve",
		Email:    " Eve@Example.com ",
		Password: "secret123",
	})
	require.NoError(t, err)

	require.Equal(t, "eve@example.com", user.Email)
	require.Equal(t, models.RoleUser, user.Role)
	require.NotEqual(t, "secret123", user.Password)
	require.True(t, crypto.VerifyPassword(user.Password, "secret123"))
	require.False(t, user.IsVerified())

	require.Len(t, publisher.events, 1)
	require.Equal(t, events.TypeUserRegistered, publisher.events[0].Type)
	require.Equal(t, user.ID, publisher.events[0].AggregateID)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})
	ctx := context.Background()

	_, err := provider.Register(ctx, RegisterInput{Username: "gary", Email: "gary@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = provider.Register(ctx, RegisterInput{Username: "other", Email: "GARY@example.com", Password: "secret123"})
	require.ErrorIs(t, err, auth.ErrDuplicateIdentity)

	_, err = provider.Register(ctx, RegisterInput{Username: "Gary", Email: "new@example.com", Password: "secret123"})
	require.ErrorIs(t, err, auth.ErrDuplicateIdentity)
}

func TestRegisterRespectsDisabledFlag(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{DisableRegistration: true})

	_, err := provider.Register(context.Background(), RegisterInput{
		Username: "gary",
		Email:    "gary@example.com",
		Password: "secret123",
	})
	require.ErrorIs(t, err, auth.ErrRegistrationDisabled)
}

func TestChangePassword(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})
	ctx := context.Background()

	user, err := provider.Register(ctx, RegisterInput{
		Username: "frank",
		Email:    "frank@example.com",
		Password: "initial1",
	})
	require.NoError(t, err)

	require.NoError(t, provider.ChangePassword(ctx, user.ID, "initial1", "updated1"))

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)
	require.True(t, crypto.VerifyPassword(updated.Password, "updated1"))

	err = provider.ChangePassword(ctx, user.ID, "wrong", "another1")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

type capturePublisher struct {
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, event events.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func tryAuthenticate(provider *LocalProvider, identifier, password string) error {
	_, err := provider.Authenticate(context.Background(), AuthenticateInput{
		Identifier: identifier,
		Password:   password,
	})
	return err
}

func newLocalProvider(t *testing.T, db *gorm.DB, cfg LocalConfig) *LocalProvider {
	t.Helper()
	provider, err := NewLocalProvider(db, cfg)
	require.NoError(t, err)
	return provider
}

func createUser(t *testing.T, db *gorm.DB, user models.User, password string) *models.User {
	t.Helper()
	hashed, err := crypto.HashPassword(password)
	require.NoError(t, err)
	user.Password = hashed
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}
