package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/handlers/testutil"
	"github.com/charlesng35/tippster/internal/models"
)

func TestPasswordHandler_ForgotDoesNotRevealAccounts(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser)

	known := env.Request(http.MethodPost, "/api/users/forgot-password", map[string]string{"email": user.Email}, "")
	unknown := env.Request(http.MethodPost, "/api/users/forgot-password", map[string]string{"email": "nobody@example.com"}, "")

	require.Equal(t, http.StatusAccepted, known.Code, known.Body.String())
	require.Equal(t, http.StatusAccepted, unknown.Code, unknown.Body.String())
	require.JSONEq(t, known.Body.String(), unknown.Body.String())

	event, ok := env.Events.Last(events.TypePasswordResetRequested)
	require.True(t, ok)
	require.Equal(t, user.ID, event.AggregateID)
}

func TestPasswordHandler_ResetFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser)
	login := env.Login(user.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodPost, "/api/users/forgot-password", map[string]string{"email": user.Email}, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	event, ok := env.Events.Last(events.TypePasswordResetRequested)
	require.True(t, ok)
	raw, _ := event.Payload["token"].(string)
	require.NotEmpty(t, raw)

	w = env.Request(http.MethodPost, "/api/users/reset-password", map[string]string{
		"token":            raw,
		"new_password":     "Brandnew123",
		"confirm_password": "Different123",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/users/reset-password", map[string]string{
		"token":            raw,
		"new_password":     "Brandnew123",
		"confirm_password": "Brandnew123",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The link is single use.
	w = env.Request(http.MethodPost, "/api/users/reset-password", map[string]string{
		"token":            raw,
		"new_password":     "Another1234",
		"confirm_password": "Another1234",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "RESET_TOKEN_INVALID", testutil.ErrorCode(t, w))

	// Sessions opened before the reset are gone.
	env.SetRefresh(login.Refresh)
	w = env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	env.Login(user.Email, "Brandnew123")
}

func TestPasswordHandler_ResetRejectsUnknownToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/users/reset-password", map[string]string{
		"token":            "does-not-exist",
		"new_password":     "Brandnew123",
		"confirm_password": "Brandnew123",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "RESET_TOKEN_INVALID", testutil.ErrorCode(t, w))
}

func TestPasswordHandler_Change(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser)
	other := env.Login(user.Email, testutil.DefaultPassword)
	login := env.Login(user.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodPost, "/api/users/change-password", map[string]string{
		"current_password": "WrongPass123",
		"new_password":     "Changed1234",
		"confirm_password": "Changed1234",
	}, login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.ErrorCode(t, w))

	w = env.Request(http.MethodPost, "/api/users/change-password", map[string]string{
		"current_password": testutil.DefaultPassword,
		"new_password":     "Changed1234",
		"confirm_password": "Changed1234",
	}, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cleared := testutil.RefreshCookie(w)
	require.NotNil(t, cleared)
	require.Less(t, cleared.MaxAge, 0)

	env.SetRefresh(other.Refresh)
	w = env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    user.Email,
		"password": testutil.DefaultPassword,
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	env.Login(user.Email, "Changed1234")
}
