package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing without a live connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when starting a connection fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectTimeout is returned by EnsureConnected when the link did not
	// come up within the configured wait.
	ErrConnectTimeout = errors.New("mqtt: timed out waiting for connection")

	// ErrPublishFailed is returned when the client refuses a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidTopic is returned for an empty topic or one outside the
	// dd/pager/{device}/{channel} scheme.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrStopped is returned after Stop has been called.
	ErrStopped = errors.New("mqtt: manager stopped")
)
