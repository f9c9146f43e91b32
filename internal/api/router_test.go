package api_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tippster/internal/api"
	"github.com/charlesng35/tippster/internal/app"
	"github.com/charlesng35/tippster/internal/handlers/testutil"
)

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/users/change-password"},
		{http.MethodGet, "/api/sessions"},
		{http.MethodPost, "/api/sessions/revoke-others"},
		{http.MethodGet, "/api/admin/users"},
	} {
		w := env.Request(route.method, route.path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}

	w = env.Request(http.MethodGet, "/api/auth/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/auth/status", nil, "")
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Contains(t, w.Header().Get("Cache-Control"), "no-store")
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), `tippster_api_latency_seconds_count{method="GET",path="/health",status="200"}`), w.Body.String())
}

func TestRouter_DisabledMonitoring(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(cfg *app.Config) {
		cfg.Monitoring.Prometheus.Enabled = false
		cfg.Monitoring.Health.Enabled = false
	}))

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_RequiresServices(t *testing.T) {
	_, err := api.NewRouter(nil, api.Services{})
	require.Error(t, err)

	_, err = api.NewRouter(&app.Config{}, api.Services{})
	require.Error(t, err)
}
