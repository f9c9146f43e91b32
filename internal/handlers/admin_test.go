package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/handlers/testutil"
	"github.com/charlesng35/tippster/internal/models"
)

func TestAdminHandler_RoleGuard(t *testing.T) {
	env := testutil.NewEnv(t)
	member := env.CreateUser(models.RoleUser)
	moderator := env.CreateUser(models.RoleModerator)
	memberLogin := env.Login(member.Email, testutil.DefaultPassword)
	modLogin := env.Login(moderator.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodGet, "/api/admin/users", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/api/admin/users", nil, memberLogin.AccessToken)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "INSUFFICIENT_ROLE", testutil.ErrorCode(t, w))

	w = env.Request(http.MethodGet, "/api/admin/users", nil, modLogin.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/users/"+member.ID+"/sessions", nil, modLogin.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Moderators may not change accounts.
	w = env.Request(http.MethodPatch, "/api/admin/users/"+member.ID+"/role", map[string]string{"role": "moderator"}, modLogin.AccessToken)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = env.Request(http.MethodPost, "/api/admin/users/"+member.ID+"/ban", map[string]string{"reason": "x"}, modLogin.AccessToken)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminHandler_ListPaginates(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser(models.RoleAdmin)
	for i := 0; i < 4; i++ {
		env.CreateUser(models.RoleUser)
	}
	login := env.Login(admin.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodGet, "/api/admin/users?page=2&per_page=2&role=user", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 2, resp.Meta.Page)
	require.Equal(t, 4, resp.Meta.Total)
	require.Equal(t, 2, resp.Meta.TotalPages)

	var users []models.User
	testutil.DecodeInto(t, resp.Data, &users)
	require.Len(t, users, 2)
	for _, user := range users {
		require.Equal(t, models.RoleUser, user.Role)
	}

	w = env.Request(http.MethodGet, "/api/admin/users?banned=maybe", nil, login.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_BanRevokesSessions(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser(models.RoleAdmin)
	target := env.CreateUser(models.RoleUser)
	adminLogin := env.Login(admin.Email, testutil.DefaultPassword)
	targetLogin := env.Login(target.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodPost, "/api/admin/users/"+target.ID+"/ban", map[string]string{"reason": "tipping fraud"}, adminLogin.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var banned models.User
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &banned)
	require.NotNil(t, banned.BannedAt)
	require.Equal(t, "tipping fraud", banned.BanReason)

	_, ok := env.Events.Last(events.TypeUserBanned)
	require.True(t, ok)

	env.SetRefresh(targetLogin.Refresh)
	w = env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    target.Email,
		"password": testutil.DefaultPassword,
	}, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "ACCOUNT_BANNED", testutil.ErrorCode(t, w))

	w = env.Request(http.MethodPost, "/api/admin/users/"+target.ID+"/unban", nil, adminLogin.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env.Login(target.Email, testutil.DefaultPassword)
}

func TestAdminHandler_CannotBanSelf(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser(models.RoleAdmin)
	login := env.Login(admin.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodPost, "/api/admin/users/"+admin.ID+"/ban", map[string]string{"reason": "oops"}, login.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "USER_SELF_MODIFICATION", testutil.ErrorCode(t, w))
}

func TestAdminHandler_SetRoleAndVerify(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser(models.RoleAdmin)
	target := env.CreateUser(models.RoleModerator)
	adminLogin := env.Login(admin.Email, testutil.DefaultPassword)
	targetLogin := env.Login(target.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodPatch, "/api/admin/users/"+target.ID+"/role", map[string]string{"role": "overlord"}, adminLogin.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPatch, "/api/admin/users/"+target.ID+"/role", map[string]string{"role": "user"}, adminLogin.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated models.User
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &updated)
	require.Equal(t, models.RoleUser, updated.Role)

	// A demotion ends existing sessions so the old role cannot be refreshed.
	env.SetRefresh(targetLogin.Refresh)
	w = env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/admin/users/"+target.ID+"/verify", nil, adminLogin.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/users/"+target.ID+"/sessions", nil, adminLogin.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sessions []sessionView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &sessions)
	require.Empty(t, sessions)

	w = env.Request(http.MethodGet, "/api/admin/users/missing-id", nil, adminLogin.AccessToken)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "USER_NOT_FOUND", testutil.ErrorCode(t, w))
}
