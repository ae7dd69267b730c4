package alert

import "errors"

// ErrInvalidPayload is returned when a webhook body is not a JSON object.
var ErrInvalidPayload = errors.New("alert: payload is not a JSON object")
