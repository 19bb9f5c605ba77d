package services

import "errors"

// Sentinel errors for credential flows. Handlers map these onto the
// HTTP error envelope.
var (
	// ErrEmailTaken reports a duplicate email at account creation.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials reports a wrong password.
	ErrInvalidCredentials = errors.New("old password is incorrect")

	// ErrSamePassword reports a new password equal to the current one.
	ErrSamePassword = errors.New("new password must be different from the current password")

	// ErrUserInactive reports an authentication attempt against a
	// deactivated account.
	ErrUserInactive = errors.New("account is deactivated")
)

// ValidationError reports a missing or policy-violating input value.
// Field names the offending request field so clients can attach the
// message to the right form input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
