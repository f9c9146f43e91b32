package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tippster/internal/handlers/testutil"
	"github.com/charlesng35/tippster/internal/models"
)

type sessionView struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	IsActive bool   `json:"is_active"`
	Current  bool   `json:"current"`
}

func listSessions(t *testing.T, env *testutil.Env, token string) []sessionView {
	t.Helper()
	w := env.Request(http.MethodGet, "/api/sessions", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sessions []sessionView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &sessions)
	return sessions
}

func TestSessionHandler_ListMarksCurrent(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser)
	first := env.Login(user.Email, testutil.DefaultPassword)
	second := env.Login(user.Email, testutil.DefaultPassword)

	sessions := listSessions(t, env, second.AccessToken)
	require.Len(t, sessions, 2)

	current := map[string]bool{}
	for _, session := range sessions {
		require.Equal(t, user.ID, session.UserID)
		require.True(t, session.IsActive)
		current[session.ID] = session.Current
	}
	require.True(t, current[second.SessionID])
	require.False(t, current[first.SessionID])
}

func TestSessionHandler_RevokeSingle(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser)
	first := env.Login(user.Email, testutil.DefaultPassword)
	second := env.Login(user.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodDelete, "/api/sessions/"+first.SessionID, nil, second.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sessions := listSessions(t, env, second.AccessToken)
	require.Len(t, sessions, 1)
	require.Equal(t, second.SessionID, sessions[0].ID)

	env.SetRefresh(first.Refresh)
	w = env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionHandler_RevokeForeignSessionIsNotFound(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(models.RoleUser)
	intruder := env.CreateUser(models.RoleUser)
	ownerLogin := env.Login(owner.Email, testutil.DefaultPassword)
	intruderLogin := env.Login(intruder.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodDelete, "/api/sessions/"+ownerLogin.SessionID, nil, intruderLogin.AccessToken)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	require.Equal(t, "SESSION_NOT_FOUND", testutil.ErrorCode(t, w))

	require.Len(t, listSessions(t, env, ownerLogin.AccessToken), 1)
}

func TestSessionHandler_RevokeOthers(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser)
	env.Login(user.Email, testutil.DefaultPassword)
	env.Login(user.Email, testutil.DefaultPassword)
	keep := env.Login(user.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodPost, "/api/sessions/revoke-others", nil, keep.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Revoked int64 `json:"revoked"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &result)
	require.EqualValues(t, 2, result.Revoked)

	sessions := listSessions(t, env, keep.AccessToken)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Current)

	env.SetRefresh(keep.Refresh)
	w = env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSessionHandler_RequiresAuth(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/sessions", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "UNAUTHORIZED", testutil.ErrorCode(t, w))
}
