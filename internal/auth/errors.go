package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown identities and wrong passwords alike.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountBanned signals that the account was suspended by an administrator.
	ErrAccountBanned = errors.New("auth: account banned")
	// ErrAccountUnverified signals that the account has not confirmed its email address.
	ErrAccountUnverified = errors.New("auth: account unverified")
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrDuplicateIdentity is returned when registering an email or username already in use.
	ErrDuplicateIdentity = errors.New("auth: duplicate identity")
	// ErrRegistrationDisabled is returned when self-service registration is switched off.
	ErrRegistrationDisabled = errors.New("auth: registration disabled")

	ErrTokenInvalid  = errors.New("auth: token invalid")
	ErrTokenExpired  = errors.New("auth: token expired")
	ErrTokenNotFound = errors.New("auth: token not found")
	// ErrTokenRevoked is returned when a refresh token that already left the active state is presented.
	ErrTokenRevoked = errors.New("auth: token revoked")

	ErrResetTokenInvalid = errors.New("auth: reset token invalid")
	ErrResetTokenExpired = errors.New("auth: reset token expired")

	ErrSessionNotFound = errors.New("auth: session not found")
	ErrUserNotFound    = errors.New("auth: user not found")
)
