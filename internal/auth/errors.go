package auth

import (
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
)

type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindEmailNotConfirmed  ErrorKind = "email_not_confirmed"
	KindAlreadyRegistered  ErrorKind = "already_registered"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindGeneric            ErrorKind = "generic"
)

// Error is a rejection reported by the auth provider.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return "auth: " + e.Message
}

// Classify buckets a provider error by its message.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var providerErr *Error
	if errors.As(err, &providerErr) {
		msg = providerErr.Message
	}
	switch {
	case strings.Contains(msg, "Invalid login credentials"):
		return KindInvalidCredentials
	case strings.Contains(msg, "Email not confirmed"):
		return KindEmailNotConfirmed
	case strings.Contains(msg, "already registered"):
		return KindAlreadyRegistered
	case strings.Contains(msg, "invalid"):
		return KindInvalidInput
	default:
		return KindGeneric
	}
}

// ToAppError maps a provider error onto the API error vocabulary with a
// message fit for the sign-in and sign-up forms.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch Classify(err) {
	case KindInvalidCredentials:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "Invalid email or password. Please try again.")
	case KindEmailNotConfirmed:
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "Please verify your email before signing in. Check your inbox for a verification link.")
	case KindAlreadyRegistered:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "This email is already registered. Please sign in instead.")
	case KindInvalidInput:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "Please enter a valid email address")
	default:
		msg := err.Error()
		var providerErr *Error
		if errors.As(err, &providerErr) {
			msg = providerErr.Message
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
}
