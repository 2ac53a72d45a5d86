package session

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AuthErrorKind is the stable local classification of auth failures.
type AuthErrorKind string

const (
	AuthUserNotFound        AuthErrorKind = "user-not-found"
	AuthWrongPassword       AuthErrorKind = "wrong-password"
	AuthEmailAlreadyInUse   AuthErrorKind = "email-already-in-use"
	AuthInvalidEmail        AuthErrorKind = "invalid-email"
	AuthWeakPassword        AuthErrorKind = "weak-password"
	AuthNetworkFailure      AuthErrorKind = "network-failure"
	AuthTooManyRequests     AuthErrorKind = "too-many-requests"
	AuthPopupBlocked        AuthErrorKind = "popup-blocked"
	AuthPopupCancelled      AuthErrorKind = "popup-cancelled"
	AuthOperationNotAllowed AuthErrorKind = "operation-not-allowed"
	AuthNoCurrentUser       AuthErrorKind = "no-current-user"
	AuthUnknown             AuthErrorKind = "unknown"
)

// backendCodes maps backend error codes onto local kinds.
var backendCodes = map[string]AuthErrorKind{
	"auth/user-not-found":          AuthUserNotFound,
	"auth/wrong-password":          AuthWrongPassword,
	"auth/invalid-credential":      AuthWrongPassword,
	"auth/email-already-in-use":    AuthEmailAlreadyInUse,
	"auth/invalid-email":           AuthInvalidEmail,
	"auth/weak-password":           AuthWeakPassword,
	"auth/network-request-failed":  AuthNetworkFailure,
	"auth/too-many-requests":       AuthTooManyRequests,
	"auth/popup-blocked":           AuthPopupBlocked,
	"auth/popup-closed-by-user":    AuthPopupCancelled,
	"auth/cancelled-popup-request": AuthPopupCancelled,
	"auth/operation-not-allowed":   AuthOperationNotAllowed,
	"auth/no-current-user":         AuthNoCurrentUser,
	"auth/requires-recent-login":   AuthNoCurrentUser,
	"auth/user-token-expired":      AuthNoCurrentUser,
}

// AuthError is returned by every Manager auth operation.
type AuthError struct {
	Kind AuthErrorKind
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Kind, e.Err)
	}
	return "auth " + string(e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another AuthError of the same kind, so callers can write
// errors.Is(err, &session.AuthError{Kind: session.AuthWrongPassword}).
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// coder is implemented by backend errors that carry a machine-readable code.
type coder interface {
	AuthCode() string
}

// MapAuthError translates any backend error into an *AuthError. It is the one
// place raw backend codes are interpreted.
func MapAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	var c coder
	if errors.As(err, &c) {
		code := c.AuthCode()
		if kind, ok := backendCodes[code]; ok {
			return &AuthError{Kind: kind, Code: code, Err: err}
		}
		if code != "" {
			return &AuthError{Kind: AuthUnknown, Code: code, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{Kind: AuthNetworkFailure, Err: err}
	}

	return &AuthError{Kind: AuthUnknown, Err: err}
}

// IsAuthKind reports whether err maps to the given kind.
func IsAuthKind(err error, kind AuthErrorKind) bool {
	mapped := MapAuthError(err)
	return mapped != nil && mapped.Kind == kind
}

// ProfileErrorKind classifies profile update failures.
type ProfileErrorKind string

const (
	ProfileNotAuthenticated    ProfileErrorKind = "not-authenticated"
	ProfileBackendWriteFailure ProfileErrorKind = "backend-write-failure"
)

// ProfileError is returned by UpdateProfile.
type ProfileError struct {
	Kind ProfileErrorKind
	Err  error
}

func (e *ProfileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("profile %s: %v", e.Kind, e.Err)
	}
	return "profile " + string(e.Kind)
}

func (e *ProfileError) Unwrap() error { return e.Err }

func (e *ProfileError) Is(target error) bool {
	t, ok := target.(*ProfileError)
	return ok && t.Kind == e.Kind
}
