package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/auth/providers"
	"github.com/charlesng35/tippster/internal/middleware"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/internal/services"
	apperrors "github.com/charlesng35/tippster/pkg/errors"
	"github.com/charlesng35/tippster/pkg/response"
)

// AuthHandler manages authentication flows (login/register/refresh/logout/me/status).
type AuthHandler struct {
	local   *providers.LocalProvider
	tokens  *iauth.TokenService
	users   *services.UserService
	cookies CookieSettings
}

// NewAuthHandler wires the auth endpoints to the credential provider and token issuer.
func NewAuthHandler(local *providers.LocalProvider, tokens *iauth.TokenService, users *services.UserService, cookies CookieSettings) (*AuthHandler, error) {
	if local == nil || tokens == nil || users == nil {
		return nil, errors.New("auth handler: provider, token service and user service are required")
	}
	return &AuthHandler{local: local, tokens: tokens, users: users, cookies: cookies}, nil
}

type loginRequest struct {
	// Email also accepts a username.
	Email    string `json:"email" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,password"`
}

type sessionResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	ExpiresIn   int          `json:"expires_in"`
	SessionID   string       `json:"session_id"`
	User        *models.User `json:"user,omitempty"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		response.Error(c, apperrors.NewBadRequest("email is required"))
		return
	}

	device := requestDevice(c)
	user, err := h.local.Authenticate(requestContext(c), providers.AuthenticateInput{
		Identifier: req.Email,
		Password:   req.Password,
		IPAddress:  device.IPAddress,
		UserAgent:  device.UserAgent,
	})
	if err != nil {
		fail(c, err)
		return
	}

	h.issue(c, http.StatusOK, user, device, "login")
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.local.Register(requestContext(c), providers.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		fail(c, err)
		return
	}

	h.issue(c, http.StatusCreated, user, requestDevice(c), "register")
}

func (h *AuthHandler) issue(c *gin.Context, status int, user *models.User, device iauth.DeviceInfo, source string) {
	pair, _, err := h.tokens.IssueTokenPair(requestContext(c), user, iauth.RequestMetadata{
		Device: device,
		Source: source,
	})
	if err != nil {
		fail(c, err)
		return
	}

	h.cookies.setRefresh(c, pair.RefreshToken, pair.RefreshExpiresAt)
	response.Success(c, status, newSessionResponse(pair, user))
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	presented := refreshFromCookie(c)
	if presented == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	pair, _, err := h.tokens.Refresh(requestContext(c), presented, iauth.RequestMetadata{
		Device: requestDevice(c),
		Source: "refresh",
	})
	if err != nil {
		if isTokenError(err) {
			h.cookies.clearRefresh(c)
		}
		fail(c, err)
		return
	}

	h.cookies.setRefresh(c, pair.RefreshToken, pair.RefreshExpiresAt)
	response.Success(c, http.StatusOK, newSessionResponse(pair, nil))
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var sessionID string
	if principal, ok := middleware.PrincipalFromContext(c); ok {
		sessionID = principal.SessionID
	}

	if err := h.tokens.Logout(requestContext(c), refreshFromCookie(c), sessionID); err != nil {
		fail(c, err)
		return
	}

	h.cookies.clearRefresh(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	user, err := h.users.GetByID(requestContext(c), principal.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// GET /api/auth/status
func (h *AuthHandler) Status(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		response.Success(c, http.StatusOK, gin.H{"authenticated": false})
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"authenticated": true,
		"user_id":       principal.UserID,
		"role":          principal.Role,
		"session_id":    principal.SessionID,
	})
}

func newSessionResponse(pair iauth.TokenPair, user *models.User) sessionResponse {
	expiresIn := int(time.Until(pair.AccessExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return sessionResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   pair.AccessExpiresAt,
		ExpiresIn:   expiresIn,
		SessionID:   pair.SessionID,
		User:        user,
	}
}
