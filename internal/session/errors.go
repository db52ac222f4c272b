package session

import "errors"

var (
	// ErrNoToken means no session token is available.
	ErrNoToken = errors.New("session: no token")

	// ErrInvalidIdentifier is returned by an Authorizer when the phone number
	// or account identifier is rejected.
	ErrInvalidIdentifier = errors.New("session: invalid identifier")

	// ErrInvalidCode is returned by an Authorizer when the one-time code is
	// wrong or expired.
	ErrInvalidCode = errors.New("session: invalid code")

	// ErrPasswordNeeded is returned by SignIn when the account has a second factor.
	ErrPasswordNeeded = errors.New("session: password needed")

	// ErrInvalidPassword is returned by CheckPassword for a wrong second factor.
	ErrInvalidPassword = errors.New("session: invalid password")

	// ErrTooManyAttempts is returned when the operator exhausted the retries
	// for one challenge step.
	ErrTooManyAttempts = errors.New("session: too many attempts")
)

// IsCredentialError reports whether err is a recoverable credential error that
// warrants asking the operator again.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrInvalidPassword)
}
