package service

import (
	"errors"
	"fmt"

	sessiondomain "stocktrack/backend/internal/session/domain"
)

// Sentinel errors for the auth service; the handler maps them to HTTP status
// codes. ErrInvalidCredentials and ErrInvalidOrExpiredToken are deliberately
// generic: the caller learns nothing about which part of the check failed.
var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrActiveSessionConflict  = errors.New("an active session already exists")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrSessionNotFound        = errors.New("session not found")
	ErrValidation             = errors.New("validation failed")
)

// ActiveSessionError is returned by Login when the user already holds an
// active session and the caller did not request a takeover. It carries the
// conflicting session's public metadata; this is the one deliberately
// informative failure, since the conflicting session belongs to the same
// authenticated party.
type ActiveSessionError struct {
	Existing sessiondomain.PublicSession
}

func (e *ActiveSessionError) Error() string {
	return ErrActiveSessionConflict.Error()
}

// Is makes errors.Is(err, ErrActiveSessionConflict) match.
func (e *ActiveSessionError) Is(target error) bool {
	return target == ErrActiveSessionConflict
}

// validationError wraps ErrValidation with a caller-facing detail message.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
