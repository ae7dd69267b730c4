package credential

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRegion is the upstream site used when none is supplied.
const DefaultRegion = "datadoghq.com"

// DeviceRecord holds the upstream credentials registered for one device.
type DeviceRecord struct {
	DeviceID  string
	APIKey    string
	AppKey    string
	Region    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credentials returns the key pair and region of the record.
func (r DeviceRecord) Credentials() Credentials {
	return Credentials{APIKey: r.APIKey, AppKey: r.AppKey, Region: r.Region}
}

// Credentials is the key pair and region an upstream call is made with.
type Credentials struct {
	APIKey string
	AppKey string
	Region string
}

// Empty reports whether no API key is set.
func (c Credentials) Empty() bool {
	return c.APIKey == ""
}

// ValidateDeviceID checks that id is usable as a single MQTT topic level.
func ValidateDeviceID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDeviceID)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: %q contains '/', '+' or '#'", ErrInvalidDeviceID, id)
	}
	return nil
}
