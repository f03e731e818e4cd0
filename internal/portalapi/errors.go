package portalapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a classified failure from the portal API. Status 0 means the
// request never produced an HTTP response (network failure, timeout).
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("portal api: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("portal api: http %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("portal api: http %d", e.Status)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNoCredential is returned when a protected call is attempted without a
// stored bearer token. Callers treat it exactly like an expired credential:
// both trigger the out-of-band re-authentication flow.
var ErrNoCredential = &Error{Status: http.StatusUnauthorized, Message: "no credential"}

// IsAuthExpired reports whether the error means the session credential is
// missing or no longer accepted. The request must not be retried with the
// same credential.
func IsAuthExpired(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsConflict reports whether the server rejected a booking because the slot
// is no longer free. This is an expected race with other patients, not a bug.
func IsConflict(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// IsNotFound reports whether the requested resource does not exist.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsNetwork reports whether the request failed before an HTTP response.
func IsNetwork(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == 0
}

// IsServerError reports whether the server answered with a 5xx status.
func IsServerError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}
