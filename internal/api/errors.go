// Package api provides the HTTP client for the remote storage service.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned when the server answered an API call with a
// non-success HTTP status. The exchange itself completed, so transport-level
// retries do not apply; callers decide what the status means for them.
type StatusError struct {
	Op         string // operation name, e.g. "lock folder"
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// IsLocked reports whether err indicates the folder is locked by another
// client (HTTP 423).
func IsLocked(err error) bool {
	return IsStatus(err, http.StatusLocked)
}
