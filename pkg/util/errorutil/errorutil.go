package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/auth-core/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithStatus returns a copy of e answering with a different HTTP status.
func (e *DomainError) WithStatus(status int) *DomainError {
	cp := *e
	cp.HTTPStatus = status
	return &cp
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

type mapping struct {
	code   string
	status int
}

// authErrors maps the domain taxonomy onto wire codes and statuses.
var authErrors = []struct {
	err error
	mapping
}{
	{domain.ErrInvalidCredentials, mapping{"INVALID_CREDENTIALS", http.StatusUnauthorized}},
	{domain.ErrAdminEmailExists, mapping{"ADMIN_EMAIL_EXISTS", http.StatusConflict}},
	{domain.ErrAccountDisabled, mapping{"ACCOUNT_DISABLED", http.StatusForbidden}},
	{domain.ErrGuestMigrated, mapping{"GUEST_MIGRATED", http.StatusConflict}},
	{domain.ErrInvalidRefreshToken, mapping{"INVALID_REFRESH_TOKEN", http.StatusUnauthorized}},
	{domain.ErrExpiredRefreshToken, mapping{"EXPIRED_REFRESH_TOKEN", http.StatusUnauthorized}},
	{domain.ErrUserDisabled, mapping{"USER_DISABLED", http.StatusForbidden}},
	{domain.ErrDeviceMismatch, mapping{"DEVICE_MISMATCH", http.StatusUnauthorized}},
	{domain.ErrInvalidToken, mapping{"INVALID_TOKEN", http.StatusUnauthorized}},
	{domain.ErrSessionInactive, mapping{"SESSION_INACTIVE", http.StatusUnauthorized}},
	{domain.ErrSubjectNotFound, mapping{"NOT_FOUND", http.StatusNotFound}},
	{domain.ErrInvalidInput, mapping{"VALIDATION_FAILED", http.StatusBadRequest}},
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	for _, m := range authErrors {
		if errors.Is(err, m.err) {
			message := m.err.Error()
			if m.err == domain.ErrInvalidInput {
				message = err.Error()
			}
			return &DomainError{
				Code:       m.code,
				Message:    message,
				HTTPStatus: m.status,
				Err:        err,
			}
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
