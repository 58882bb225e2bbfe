package auth

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrMalformedToken = errors.New("malformed token")
	ErrExpiredToken   = errors.New("token expired")
	ErrRevokedToken   = errors.New("token revoked")
	ErrUnknownSubject = errors.New("unknown subject")
	ErrUpstream       = errors.New("auth upstream unavailable")
)

// Error is returned by every failed validation. Reason is one of the sentinel errors above.
type Error struct {
	Reason error
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return "auth: " + e.Reason.Error()
	}
	return fmt.Sprintf("auth: %v: %v", e.Reason, e.Cause)
}

func (e *Error) Unwrap() error { return e.Reason }

func fail(reason, cause error) error {
	return &Error{Reason: reason, Cause: cause}
}

// IsAuthError reports whether err came from token validation.
func IsAuthError(err error) bool {
	var authErr *Error
	return errors.As(err, &authErr)
}
