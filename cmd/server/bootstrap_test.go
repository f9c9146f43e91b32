package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/tippster/internal/app"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/internal/monitoring"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimit{Requests: 100, Window: time.Minute},
		},
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1&_busy_timeout=5000", uuid.NewString()),
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "bootstrap-test-secret-0123456789abcdef",
				Issuer: "tippster",
				TTL:    15 * time.Minute,
			},
			Session: app.SessionSettings{
				RefreshTTL:     24 * time.Hour,
				ReuseDetection: true,
			},
		},
		Maintenance: app.MaintenanceConfig{Enabled: true},
		Bootstrap: app.BootstrapConfig{
			AdminEmail:    "admin@tippster.test",
			AdminPassword: "AdminPass123",
		},
	}
}

func TestBootstrapRuntimeServesRequests(t *testing.T) {
	server := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Cache.Redis = app.RedisCacheConfig{Enabled: true, Address: server.Addr()}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Redis)
	require.NotNil(t, stack.Cleaner)

	body, err := json.Marshal(map[string]string{"email": "admin@tippster.test", "password": "AdminPass123"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Rate limit counters land in Redis.
	require.NotEmpty(t, server.Keys())

	rec = httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data monitoring.HealthReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	components := map[string]monitoring.ProbeStatus{}
	for _, check := range envelope.Data.Checks {
		components[check.Component] = check.Status
	}
	require.Equal(t, monitoring.StatusUp, components["database"])
	require.Equal(t, monitoring.StatusUp, components["redis"])
	require.Contains(t, components, "maintenance")
}

func TestBootstrapRuntimeFallsBackWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Enabled = false
	cfg.Cache.Redis = app.RedisCacheConfig{Enabled: true, Address: "127.0.0.1:1", Timeout: 100 * time.Millisecond}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Nil(t, stack.Redis)
	require.Nil(t, stack.Cleaner)
	require.NotNil(t, stack.Store)

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body, err := json.Marshal(map[string]string{"email": "admin@tippster.test", "password": "AdminPass123"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Without Redis refresh lookups go straight to the token table.
	var cached int64
	require.NoError(t, stack.DB.Model(&models.CacheEntry{}).
		Where("key LIKE ?", "auth:refresh:%").
		Count(&cached).Error)
	require.Zero(t, cached)
}

func TestBootstrapRuntimeRejectsBadDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}
