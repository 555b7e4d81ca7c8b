package auth

import (
	"errors"
	"strings"
)

// Form rules checked locally before any request is made.
const (
	MinPasswordLength = 6
	MinUsernameLength = 3
)

// ErrValidation matches every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError is a form error that never reached the backend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap returns ErrValidation
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateLogin requires both fields.
func ValidateLogin(email, password string) error {
	if blank(email) {
		return invalid("email", "Email is required")
	}
	if password == "" {
		return invalid("password", "Password is required")
	}
	return nil
}

// ValidateRegistration checks the sign-up form. A mismatch is reported
// before a short password.
func ValidateRegistration(email, username, password, confirmation string) error {
	switch {
	case blank(email):
		return invalid("email", "Email is required")
	case blank(username):
		return invalid("username", "Username is required")
	case password != confirmation:
		return invalid("confirmation", "Passwords do not match")
	case len(password) < MinPasswordLength:
		return invalid("password", "Password must be at least 6 characters")
	}
	return nil
}

// ValidateRecoveryCode rejects a blank code.
func ValidateRecoveryCode(code string) error {
	if blank(code) {
		return invalid("token", "Please enter a valid recovery code")
	}
	return nil
}

// ValidatePasswordReset checks the new-password step of a recovery.
func ValidatePasswordReset(newPassword, confirmation string) error {
	if newPassword != confirmation {
		return invalid("confirmation", "Passwords do not match")
	}
	if len(newPassword) < MinPasswordLength {
		return invalid("password", "Password must be at least 6 characters")
	}
	return nil
}

// ValidatePasswordChange checks the profile password form.
func ValidatePasswordChange(oldPassword, newPassword, confirmation string) error {
	if oldPassword == "" || newPassword == "" || confirmation == "" {
		return invalid("password", "All fields are required")
	}
	if len(newPassword) < MinPasswordLength {
		return invalid("password", "Password must be at least 6 characters")
	}
	if newPassword != confirmation {
		return invalid("confirmation", "Passwords do not match")
	}
	return nil
}

// ValidateUsernameChange checks the profile username form.
func ValidateUsernameChange(currentPassword, newUsername string) error {
	if len(strings.TrimSpace(newUsername)) < MinUsernameLength {
		return invalid("username", "Username must be at least 3 characters")
	}
	if currentPassword == "" {
		return invalid("password", "All fields are required")
	}
	return nil
}
