package credential

import "errors"

var (
	// ErrInvalidDeviceID is returned for an empty device id or one that
	// cannot be used as a single topic segment.
	ErrInvalidDeviceID = errors.New("credential: invalid device id")

	// ErrNoCredentials is returned by Resolver when neither a stored record
	// nor fallback keys are available for a device.
	ErrNoCredentials = errors.New("credential: no credentials for device")
)
