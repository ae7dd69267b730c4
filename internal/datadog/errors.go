package datadog

import (
	"errors"
	"fmt"
)

// ErrRequestFailed is returned when a request could not be completed
// (network failure, timeout, cancelled context).
var ErrRequestFailed = errors.New("datadog: request failed")

// StatusError is returned for a completed request with a non-2xx status.
type StatusError struct {
	StatusCode int
	// Body is the response body, truncated.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("datadog: unexpected status %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the upstream HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
