package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/app"
	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/auth/providers"
	"github.com/charlesng35/tippster/internal/handlers"
	"github.com/charlesng35/tippster/internal/middleware"
	"github.com/charlesng35/tippster/internal/monitoring"
	"github.com/charlesng35/tippster/internal/services"
)

// Services carries the constructed domain services the HTTP layer is built on.
type Services struct {
	DB         *gorm.DB
	Tokens     *iauth.TokenService
	Tracker    *iauth.SessionTracker
	Local      *providers.LocalProvider
	Resets     *iauth.PasswordResetService
	Users      *services.UserService
	RateStore  middleware.RateStore
	Monitoring *monitoring.Module
}

func (s Services) validate() error {
	switch {
	case s.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case s.Tokens == nil:
		return fmt.Errorf("token service must be provided")
	case s.Tracker == nil:
		return fmt.Errorf("session tracker must be provided")
	case s.Local == nil:
		return fmt.Errorf("local provider must be provided")
	case s.Resets == nil:
		return fmt.Errorf("password reset service must be provided")
	case s.Users == nil:
		return fmt.Errorf("user service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route group.
func NewRouter(cfg *app.Config, svc Services) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}

	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies(cfg.Server.TrustedProxies)); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(cfg.Server.HSTS))

	cookies := handlers.CookieSettings{
		Domain: cfg.Server.Cookie.Domain,
		Secure: cfg.Server.Cookie.Secure,
	}
	rateStore := svc.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}
	limit := middleware.RateLimit(rateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)

	authHandler, err := handlers.NewAuthHandler(svc.Local, svc.Tokens, svc.Users, cookies)
	if err != nil {
		return nil, err
	}
	passwordHandler, err := handlers.NewPasswordHandler(svc.Local, svc.Resets, svc.Tokens, cookies)
	if err != nil {
		return nil, err
	}
	sessionHandler, err := handlers.NewSessionHandler(svc.Tracker, svc.Tokens)
	if err != nil {
		return nil, err
	}
	adminHandler, err := handlers.NewAdminHandler(svc.Users, svc.Tracker)
	if err != nil {
		return nil, err
	}

	registerHealthRoutes(r, cfg, svc.Monitoring)
	registerMetricsRoute(r, cfg, svc.Monitoring)

	api := r.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.RequireAuth(svc.Tokens))

	registerAuthRoutes(api, protected, authRouteDeps{
		Auth:     authHandler,
		Verifier: svc.Tokens,
		Limit:    limit,
	})
	registerPasswordRoutes(api, protected, passwordHandler, limit)
	registerSessionRoutes(protected, sessionHandler)
	registerUserRoutes(protected, adminHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func trustedProxies(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
