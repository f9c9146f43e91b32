package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/api"
	"github.com/charlesng35/tippster/internal/app"
	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/auth/providers"
	"github.com/charlesng35/tippster/internal/cache"
	sharedtestutil "github.com/charlesng35/tippster/internal/database/testutil"
	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/handlers"
	"github.com/charlesng35/tippster/internal/middleware"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/internal/monitoring"
	"github.com/charlesng35/tippster/internal/services"
	"github.com/charlesng35/tippster/pkg/crypto"
	"github.com/charlesng35/tippster/pkg/response"
)

// DefaultPassword is the password assigned by CreateUser.
const DefaultPassword = "Password123"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Config  *app.Config
	Tokens  *iauth.TokenService
	Events  *Recorder
	refresh *http.Cookie
}

// Option tweaks the environment before the router is built.
type Option func(*envOptions)

type envOptions struct {
	mutate []func(*app.Config)
	redis  bool
}

// WithConfig mutates the configuration used to build the router.
func WithConfig(fn func(*app.Config)) Option {
	return func(o *envOptions) {
		o.mutate = append(o.mutate, fn)
	}
}

// WithRedis backs the refresh lookup cache and rate limiter with an in-process Redis.
func WithRedis() Option {
	return func(o *envOptions) {
		o.redis = true
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	options := envOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := &app.Config{
		Server: app.ServerConfig{
			Cookie:    app.CookieConfig{Secure: false},
			RateLimit: app.RateLimit{Requests: 1000, Window: time.Minute},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "tippster-test",
				TTL:    15 * time.Minute,
			},
			Session: app.SessionSettings{
				RefreshTTL:       24 * time.Hour,
				RefreshLength:    48,
				ReuseDetection:   true,
				ReuseGracePeriod: 10 * time.Second,
			},
		},
	}
	for _, fn := range options.mutate {
		fn(cfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	recorder := &Recorder{}

	var store cache.Store = cache.NewDatabaseStore(db)
	if options.redis {
		server := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		store = cache.NewRedisStore(client)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	tracker, err := iauth.NewSessionTracker(db, nil, nil)
	require.NoError(t, err)

	tokenCfg := cfg.Auth.TokenServiceConfig()
	tokenCfg.Cache = iauth.NewRefreshCache(store)
	tokenCfg.Publisher = recorder
	tokens, err := iauth.NewTokenService(db, jwtSvc, tracker, tokenCfg)
	require.NoError(t, err)

	localCfg := cfg.Auth.LocalProviderConfig()
	localCfg.Publisher = recorder
	local, err := providers.NewLocalProvider(db, localCfg)
	require.NoError(t, err)

	resetCfg := cfg.Auth.PasswordResetServiceConfig()
	resetCfg.Publisher = recorder
	resets, err := iauth.NewPasswordResetService(db, tokens, resetCfg)
	require.NoError(t, err)

	users, err := services.NewUserService(db, tokens, recorder, nil)
	require.NoError(t, err)

	router, err := api.NewRouter(cfg, api.Services{
		DB:         db,
		Tokens:     tokens,
		Tracker:    tracker,
		Local:      local,
		Resets:     resets,
		Users:      users,
		RateStore:  middleware.NewCacheRateStore(store),
		Monitoring: monitoring.NewModule(),
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		Config: cfg,
		Tokens: tokens,
		Events: recorder,
	}
}

// CreateUser inserts a verified user with DefaultPassword and the given role.
func (e *Env) CreateUser(role models.Role) *models.User {
	e.T.Helper()

	username := "user_" + strings.ReplaceAll(uuid.NewString()[:12], "-", "")
	hashed, err := crypto.HashPassword(DefaultPassword)
	require.NoError(e.T, err)

	now := time.Now().UTC()
	user := &models.User{
		Username:   username,
		Email:      username + "@example.com",
		Password:   hashed,
		Role:       role,
		VerifiedAt: &now,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	ExpiresIn   int         `json:"expires_in"`
	SessionID   string      `json:"session_id"`
	User        models.User `json:"user"`
	// Refresh is the value of the refresh cookie set by the response.
	Refresh string `json:"-"`
}

// Login authenticates using the local provider and returns the issued session.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Equal(e.T, "Bearer", result.TokenType)
	require.Greater(e.T, result.ExpiresIn, 0)

	cookie := RefreshCookie(w)
	require.NotNil(e.T, cookie, "login must set the refresh cookie")
	result.Refresh = cookie.Value
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// ErrorCode returns the error code of a failed response, or "" for a success.
func ErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := DecodeResponse(t, w)
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}

// RefreshCookie returns the refresh cookie set by the response, if any.
func RefreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == handlers.RefreshCookieName {
			return cookie
		}
	}
	return nil
}

// SetRefresh overrides the refresh cookie sent with subsequent requests. An empty value clears it.
func (e *Env) SetRefresh(value string) {
	if value == "" {
		e.refresh = nil
		return
	}
	e.refresh = &http.Cookie{Name: handlers.RefreshCookieName, Value: value}
}

// Request executes an HTTP request against the test router, applying JSON encoding, auth headers
// and the current refresh cookie automatically. Refresh cookies set by responses are remembered.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.T, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0 Safari/537.36")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if e.refresh != nil && strings.HasPrefix(path, handlers.RefreshCookiePath) {
		req.AddCookie(e.refresh)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	if cookie := RefreshCookie(w); cookie != nil {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			e.refresh = nil
		} else {
			e.SetRefresh(cookie.Value)
		}
	}
	return w
}

// Recorder is an events.Publisher that keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Last returns the most recent event of the given type.
func (r *Recorder) Last(eventType string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}
