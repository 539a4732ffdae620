package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrOAuthDenied        = errors.New("oauth consent denied")
	ErrCallbackMismatch   = errors.New("oauth callback mismatch")
	ErrLinkUnverified     = errors.New("linked account unverified")

	// ErrActionInFlight is returned when an action is started while another
	// one is still loading.
	ErrActionInFlight = errors.New("auth action already in flight")
	// ErrInvalidTransition is returned when an action is not allowed from the
	// current session status, or a commit would break a session invariant.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ErrorKind classifies failures surfaced to the session.
type ErrorKind string

const (
	KindValidation         ErrorKind = "ValidationError"
	KindNetwork            ErrorKind = "NetworkError"
	KindInvalidCredentials ErrorKind = "InvalidCredentials"
	KindOAuthDenied        ErrorKind = "OAuthDenied"
	KindCallbackMismatch   ErrorKind = "OAuthCallbackMismatch"
	KindLinkUnverified     ErrorKind = "OnboardingLinkUnverified"
	KindSessionExpired     ErrorKind = "SessionExpired"
)

// AuthError is the structured error carried by a Session and returned by auth actions.
type AuthError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Err     error     `json:"-"`
}

// NewAuthError builds an AuthError wrapping err.
func NewAuthError(kind ErrorKind, err error) *AuthError {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	return &AuthError{Kind: kind, Message: msg, Err: err}
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another *AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// Clone returns a copy without the wrapped cause, suitable for publishing.
func (e *AuthError) Clone() *AuthError {
	if e == nil {
		return nil
	}
	return &AuthError{Kind: e.Kind, Message: e.Message, Field: e.Field}
}

// KindOf returns the ErrorKind of err, or "" if err is not an AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
