package bridge

import (
	"context"
	"time"

	"github.com/ddpager/pager-bridge/internal/credential"
	"github.com/ddpager/pager-bridge/internal/infrastructure/mqtt"
)

// Status is the outcome reported to HTTP callers.
type Status string

const (
	StatusPublished  Status = "published"
	StatusSent       Status = "sent"
	StatusRegistered Status = "registered"
	StatusError      Status = "error"
)

// Webhook provisioning outcomes reported on registration.
const (
	WebhookCreated = "created"
	WebhookFailed  = "failed"
	WebhookSkipped = "skipped"
)

// ErrorKind classifies a failed Result for the HTTP layer.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindInput is a problem with the caller's request.
	KindInput
	// KindTransport means the MQTT publish failed.
	KindTransport
	// KindUpstream means the incident API rejected or failed the call.
	KindUpstream
	// KindInternal is a local failure such as storage.
	KindInternal
)

// Result is the JSON body returned by every bridge operation.
type Result struct {
	Status         Status    `json:"status"`
	AlertID        string    `json:"alert_id,omitempty"`
	DeviceID       string    `json:"device_id,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Webhook        string    `json:"webhook,omitempty"`
	Kind           ErrorKind `json:"-"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Status != StatusError
}

// Registration is the input to RegisterDevice.
type Registration struct {
	DeviceID string
	APIKey   string
	AppKey   string
	Region   string
}

// DeviceStatus describes a device without exposing its secrets.
type DeviceStatus struct {
	DeviceID   string     `json:"device_id"`
	Registered bool       `json:"registered"`
	Region     string     `json:"region,omitempty"`
	HasAPIKey  bool       `json:"has_api_key"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Publisher delivers payloads to the transport.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// CredentialStore persists device records.
type CredentialStore interface {
	Lookup(ctx context.Context, deviceID string) (credential.DeviceRecord, bool, error)
	Upsert(ctx context.Context, rec credential.DeviceRecord) (credential.DeviceRecord, error)
}

// Upstream is the subset of the incident API used during registration.
type Upstream interface {
	ValidateCredentials(ctx context.Context, creds credential.Credentials) error
	CreateWebhook(ctx context.Context, creds credential.Credentials, name, url string) error
}

// ActionHandler processes a device ack/resolve event.
type ActionHandler interface {
	Handle(ctx context.Context, ev mqtt.DeviceEvent)
}

// Recorder receives the outcome of each alert publish. Optional.
type Recorder interface {
	RecordAlertPublished(deviceID, alertID string, ok bool)
}

// Logger is the logging surface the service needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
