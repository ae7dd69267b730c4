package credential

import (
	"context"
	"fmt"
	"log/slog"
)

// Logger is the logging surface the resolver needs.
// *slog.Logger and *logging.Logger both satisfy it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Source reports where resolved credentials came from.
type Source string

const (
	SourceDevice   Source = "device"
	SourceFallback Source = "fallback"
)

// Resolver picks the credentials an upstream call for a device is made with.
type Resolver struct {
	repo     Repository
	fallback Credentials
	logger   Logger
}

// NewResolver creates a resolver over repo. fallback may be empty, in which
// case devices without a stored record cannot be resolved.
func NewResolver(repo Repository, fallback Credentials, logger Logger) *Resolver {
	if fallback.Region == "" {
		fallback.Region = DefaultRegion
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, fallback: fallback, logger: logger}
}

// Resolve returns the device's stored credentials when present with a
// non-empty API key, otherwise the fallback. A storage error is logged and
// treated as a missing record.
func (r *Resolver) Resolve(ctx context.Context, deviceID string) (Credentials, Source, error) {
	if r.repo != nil {
		rec, found, err := r.repo.Lookup(ctx, deviceID)
		switch {
		case err != nil:
			r.logger.Warn("device record lookup failed, using fallback credentials",
				"device_id", deviceID,
				"error", err,
			)
		case found && rec.APIKey != "":
			creds := rec.Credentials()
			if creds.Region == "" {
				creds.Region = DefaultRegion
			}
			return creds, SourceDevice, nil
		}
	}

	if r.fallback.Empty() {
		return Credentials{}, "", fmt.Errorf("%w: %s", ErrNoCredentials, deviceID)
	}
	return r.fallback, SourceFallback, nil
}

// Fallback returns the process-wide credentials.
func (r *Resolver) Fallback() Credentials {
	return r.fallback
}
