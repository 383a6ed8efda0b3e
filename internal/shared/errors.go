package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates the request carries no valid session or token.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden indicates the principal lacks a permission.
	ErrForbidden = errors.New("forbidden")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// SafeError marks an error whose message may be shown to end users.
type SafeError struct {
	Msg string
	Err error
}

func (e *SafeError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *SafeError) Unwrap() error { return e.Err }

// Safe wraps err with a user facing message.
func Safe(msg string, err error) error {
	return &SafeError{Msg: msg, Err: err}
}

// UserSafeMessage returns text suitable for a flash or form error. Internal
// error chains collapse to a generic message.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe *SafeError
	if errors.As(err, &safe) {
		return safe.Msg
	}
	if errors.Is(err, ErrNotFound) {
		return "The requested record could not be found"
	}
	return "Something went wrong, please try again"
}
