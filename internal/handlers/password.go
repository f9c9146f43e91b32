package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/auth/providers"
	"github.com/charlesng35/tippster/internal/models"
	"github.com/charlesng35/tippster/pkg/logger"
	"github.com/charlesng35/tippster/pkg/response"
)

// PasswordHandler covers the forgot/reset flow and authenticated password changes.
type PasswordHandler struct {
	local   *providers.LocalProvider
	resets  *iauth.PasswordResetService
	tokens  *iauth.TokenService
	cookies CookieSettings
}

// NewPasswordHandler wires the password flows to the local provider, reset service and token service.
func NewPasswordHandler(local *providers.LocalProvider, resets *iauth.PasswordResetService, tokens *iauth.TokenService, cookies CookieSettings) (*PasswordHandler, error) {
	if local == nil || resets == nil || tokens == nil {
		return nil, errors.New("password handler: provider, reset service and token service are required")
	}
	return &PasswordHandler{local: local, resets: resets, tokens: tokens, cookies: cookies}, nil
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type resetPasswordRequest struct {
	Token           string `json:"token" validate:"required,max=512"`
	NewPassword     string `json:"new_password" validate:"required,password"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
	NewPassword     string `json:"new_password" validate:"required,password"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// POST /api/users/forgot-password
//
// The response is identical whether or not the email is registered.
func (h *PasswordHandler) Forgot(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.RequestReset(requestContext(c), strings.TrimSpace(req.Email)); err != nil {
		logger.WithModule("handlers").Warn("password reset request failed", zap.Error(err))
	}

	response.Success(c, http.StatusAccepted, gin.H{
		"message": "If the address is registered, a reset link has been sent",
	})
}

// POST /api/users/reset-password
func (h *PasswordHandler) Reset(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.ResetPassword(requestContext(c), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		fail(c, err)
		return
	}

	h.cookies.clearRefresh(c)
	response.Success(c, http.StatusOK, gin.H{"password_reset": true})
}

// POST /api/users/change-password
func (h *PasswordHandler) Change(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	if err := h.local.ChangePassword(ctx, principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}

	revoked, err := h.tokens.RevokeAllForUser(ctx, principal.UserID, models.RevokeReasonSecurity)
	if err != nil {
		fail(c, err)
		return
	}

	h.cookies.clearRefresh(c)
	response.Success(c, http.StatusOK, gin.H{"password_changed": true, "sessions_revoked": revoked})
}
