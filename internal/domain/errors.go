package domain

import "errors"

// Expected, caller-recoverable authentication failures.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAdminEmailExists    = errors.New("admin email already registered")
	ErrAccountDisabled     = errors.New("account disabled")
	ErrGuestMigrated       = errors.New("guest already migrated")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	ErrUserDisabled        = errors.New("user disabled")
	ErrDeviceMismatch      = errors.New("device mismatch")
	ErrInvalidToken        = errors.New("invalid token")

	// ErrSessionInactive is returned when an access token is not the subject's live session.
	ErrSessionInactive = errors.New("session is not active")

	ErrSubjectNotFound = errors.New("subject not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidInput    = errors.New("invalid input")
)
