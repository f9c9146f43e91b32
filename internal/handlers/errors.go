package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/services"
	apperrors "github.com/charlesng35/tippster/pkg/errors"
	"github.com/charlesng35/tippster/pkg/logger"
	"github.com/charlesng35/tippster/pkg/response"
)

var (
	errRegistrationDisabled = apperrors.New("REGISTRATION_DISABLED", "Registration is currently disabled", http.StatusForbidden)
	errSessionNotFound      = apperrors.New("SESSION_NOT_FOUND", "Session not found", http.StatusNotFound)
)

var authErrors = []struct {
	sentinel error
	public   *apperrors.AppError
}{
	{iauth.ErrInvalidCredentials, apperrors.ErrInvalidCredentials},
	{iauth.ErrAccountBanned, apperrors.ErrAccountBanned},
	{iauth.ErrAccountUnverified, apperrors.ErrAccountUnverified},
	{iauth.ErrAccountLocked, apperrors.ErrAccountLocked},
	{iauth.ErrDuplicateIdentity, apperrors.ErrDuplicateIdentity},
	{iauth.ErrRegistrationDisabled, errRegistrationDisabled},
	{iauth.ErrTokenExpired, apperrors.ErrTokenExpired},
	{iauth.ErrTokenInvalid, apperrors.ErrTokenInvalid},
	{iauth.ErrTokenNotFound, apperrors.ErrTokenNotFound},
	{iauth.ErrTokenRevoked, apperrors.ErrTokenRevoked},
	{iauth.ErrResetTokenInvalid, apperrors.ErrResetTokenInvalid},
	{iauth.ErrResetTokenExpired, apperrors.ErrResetTokenExpired},
	{iauth.ErrSessionNotFound, errSessionNotFound},
	{iauth.ErrUserNotFound, services.ErrUserNotFound},
}

// publicError translates domain errors into the stable API error taxonomy. Unknown errors become
// INTERNAL_SERVER_ERROR with the cause kept only for logging.
func publicError(err error) *apperrors.AppError {
	for _, mapping := range authErrors {
		if errors.Is(err, mapping.sentinel) {
			return mapping.public
		}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.ErrInternalServer.WithInternal(err)
}

// fail writes the public form of err and logs server-side failures with their cause.
func fail(c *gin.Context, err error) {
	public := publicError(err)
	if public.StatusCode >= http.StatusInternalServerError {
		logger.WithModule("handlers").Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Error(c, public)
}

func isTokenError(err error) bool {
	return errors.Is(err, iauth.ErrTokenInvalid) ||
		errors.Is(err, iauth.ErrTokenExpired) ||
		errors.Is(err, iauth.ErrTokenNotFound) ||
		errors.Is(err, iauth.ErrTokenRevoked) ||
		errors.Is(err, iauth.ErrAccountBanned)
}
