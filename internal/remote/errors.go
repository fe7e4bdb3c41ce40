package remote

import (
	"errors"
	"fmt"
)

// ErrNetwork marks failures where no response was received at all
// (transport error, timeout, refused connection). Use errors.Is to detect.
var ErrNetwork = errors.New("network error")

// ErrNotLoggedIn is returned by calls that require an identity header when
// no login has happened.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is an application-level failure: the backend responded, but
// with a non-success status. Callers distinguish it from ErrNetwork by the
// presence of a response. The client never retries either kind; retry is a
// caller decision.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}
