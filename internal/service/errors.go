package service

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrUserExists          = errors.New("user with this username or email already exists")
	ErrUnauthorized        = errors.New("unauthorized request")
	ErrInvalidCredentials  = errors.New("invalid user credentials")
	ErrInvalidToken        = errors.New("invalid refresh token")
	ErrTokenReused         = errors.New("refresh token is expired or used")
	ErrUserNotFound        = errors.New("user does not exist")
	ErrAmbiguousIdentifier = errors.New("username and email belong to different users")
)

// ValidationError reports bad input. It matches ErrValidation with errors.Is
// and carries a message that is safe to return to clients.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}
