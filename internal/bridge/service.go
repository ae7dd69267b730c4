package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ddpager/pager-bridge/internal/alert"
	"github.com/ddpager/pager-bridge/internal/credential"
	"github.com/ddpager/pager-bridge/internal/datadog"
	"github.com/ddpager/pager-bridge/internal/infrastructure/logging"
	"github.com/ddpager/pager-bridge/internal/infrastructure/mqtt"
)

const (
	// maxBodyLog is how much of a webhook body is logged.
	maxBodyLog = 500

	// notifyTimeout bounds the best-effort setup_complete publish.
	notifyTimeout = 3 * time.Second

	// webhookNamePrefix names auto-provisioned webhooks: dd-pager-{device}.
	webhookNamePrefix = "dd-pager-"
)

// setupCompletePayload is published on setup_complete after registration.
var setupCompletePayload = []byte(`{"status":"ok"}`)

// Config contains service settings.
type Config struct {
	// PublicURL is the bridge's externally reachable base URL.
	// Empty skips webhook provisioning.
	PublicURL string
}

// Service composes the normalizer, transport, credential store and
// upstream client.
type Service struct {
	cfg      Config
	pub      Publisher
	store    CredentialStore
	upstream Upstream
	actions  ActionHandler
	recorder Recorder
	logger   Logger
}

// Option configures a Service.
type Option func(*Service)

// WithActionHandler sets where HandleDeviceAction delegates.
func WithActionHandler(h ActionHandler) Option {
	return func(s *Service) { s.actions = h }
}

// WithRecorder records every alert publish.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a bridge service.
func NewService(cfg Config, pub Publisher, store CredentialStore, upstream Upstream, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		pub:      pub,
		store:    store,
		upstream: upstream,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublishAlert normalizes a webhook body and publishes it to the device's
// alert topic.
func (s *Service) PublishAlert(ctx context.Context, deviceID string, body []byte) Result {
	if err := credential.ValidateDeviceID(deviceID); err != nil {
		return errorResult(KindInput, deviceID, "", err.Error())
	}

	s.logger.Info("webhook received",
		"device_id", deviceID,
		"body", logging.Truncate(string(body), maxBodyLog),
	)

	msg, err := alert.Normalize(body)
	if err != nil {
		s.logger.Warn("webhook rejected", "device_id", deviceID, "error", err)
		return errorResult(KindInput, deviceID, "", fmt.Sprintf("invalid webhook payload: %v", err))
	}

	if err := s.publish(ctx, deviceID, msg); err != nil {
		return errorResult(KindTransport, deviceID, msg.ID, fmt.Sprintf("MQTT publish failed: %v", err))
	}
	return Result{Status: StatusPublished, AlertID: msg.ID, DeviceID: deviceID}
}

// SendTestAlert publishes a synthetic alert with a fresh test- id.
func (s *Service) SendTestAlert(ctx context.Context, deviceID string, o alert.Overrides) Result {
	if err := credential.ValidateDeviceID(deviceID); err != nil {
		return errorResult(KindInput, deviceID, "", err.Error())
	}

	msg := alert.NewTestAlert(o)
	if err := s.publish(ctx, deviceID, msg); err != nil {
		return errorResult(KindTransport, deviceID, msg.ID, fmt.Sprintf("MQTT publish failed: %v", err))
	}
	return Result{Status: StatusSent, AlertID: msg.ID, DeviceID: deviceID}
}

func (s *Service) publish(ctx context.Context, deviceID string, msg alert.Message) error {
	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	topic := mqtt.Topic(deviceID, mqtt.ChannelAlert)
	err = s.pub.Publish(ctx, topic, payload)
	if s.recorder != nil {
		s.recorder.RecordAlertPublished(deviceID, msg.ID, err == nil)
	}
	if err != nil {
		s.logger.Error("alert publish failed",
			"device_id", deviceID,
			"alert_id", msg.ID,
			"topic", topic,
			"error", err,
		)
		return err
	}

	s.logger.Info("alert published",
		"device_id", deviceID,
		"alert_id", msg.ID,
		"topic", topic,
		"payload", string(payload),
	)
	return nil
}

// RegisterDevice validates the credentials upstream and, only if they
// are accepted, stores them. Webhook provisioning and the setup_complete
// notification are attempted afterwards; their failure does not fail the
// registration.
func (s *Service) RegisterDevice(ctx context.Context, reg Registration) Result {
	reg.DeviceID = strings.TrimSpace(reg.DeviceID)
	reg.APIKey = strings.TrimSpace(reg.APIKey)
	reg.AppKey = strings.TrimSpace(reg.AppKey)
	reg.Region = strings.TrimSpace(reg.Region)
	if reg.Region == "" {
		reg.Region = credential.DefaultRegion
	}

	if err := credential.ValidateDeviceID(reg.DeviceID); err != nil {
		return errorResult(KindInput, reg.DeviceID, "", err.Error())
	}
	if reg.APIKey == "" || reg.AppKey == "" {
		return errorResult(KindInput, reg.DeviceID, "", "api_key and app_key are required")
	}

	creds := credential.Credentials{APIKey: reg.APIKey, AppKey: reg.AppKey, Region: reg.Region}

	if err := s.upstream.ValidateCredentials(ctx, creds); err != nil {
		s.logger.Warn("device registration rejected",
			"device_id", reg.DeviceID,
			"region", reg.Region,
			"error", err,
		)
		res := errorResult(KindUpstream, reg.DeviceID, "", fmt.Sprintf("credential validation failed: %v", err))
		res.UpstreamStatus = datadog.StatusCode(err)
		return res
	}

	if _, err := s.store.Upsert(ctx, credential.DeviceRecord{
		DeviceID: reg.DeviceID,
		APIKey:   reg.APIKey,
		AppKey:   reg.AppKey,
		Region:   reg.Region,
	}); err != nil {
		s.logger.Error("storing device record failed", "device_id", reg.DeviceID, "error", err)
		return errorResult(KindInternal, reg.DeviceID, "", fmt.Sprintf("storing credentials failed: %v", err))
	}

	s.logger.Info("device registered", "device_id", reg.DeviceID, "region", reg.Region)

	res := Result{Status: StatusRegistered, DeviceID: reg.DeviceID}
	res.Webhook = s.provisionWebhook(ctx, reg.DeviceID, creds)
	s.notifySetupComplete(ctx, reg.DeviceID)
	return res
}

func (s *Service) provisionWebhook(ctx context.Context, deviceID string, creds credential.Credentials) string {
	hookURL, ok := s.WebhookURL(deviceID)
	if !ok {
		return WebhookSkipped
	}

	if err := s.upstream.CreateWebhook(ctx, creds, webhookNamePrefix+deviceID, hookURL); err != nil {
		s.logger.Warn("webhook provisioning failed",
			"device_id", deviceID,
			"url", hookURL,
			"upstream_status", datadog.StatusCode(err),
			"error", err,
		)
		return WebhookFailed
	}

	s.logger.Info("webhook provisioned", "device_id", deviceID, "url", hookURL)
	return WebhookCreated
}

func (s *Service) notifySetupComplete(ctx context.Context, deviceID string) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	topic := mqtt.Topic(deviceID, mqtt.ChannelSetupComplete)
	if err := s.pub.Publish(ctx, topic, setupCompletePayload); err != nil {
		s.logger.Warn("setup_complete notification failed", "device_id", deviceID, "error", err)
	}
}

// WebhookURL returns {public_url}/webhook/{device}, or false when no
// public URL is configured.
func (s *Service) WebhookURL(deviceID string) (string, bool) {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	if base == "" {
		return "", false
	}
	return base + "/webhook/" + url.PathEscape(deviceID), true
}

// HandleDeviceAction passes an inbound device event to the action handler.
// Its signature matches dispatch.HandleFunc.
func (s *Service) HandleDeviceAction(ctx context.Context, ev mqtt.DeviceEvent) {
	if s.actions == nil {
		s.logger.Warn("device action dropped, no handler", "device_id", ev.DeviceID, "channel", ev.Channel)
		return
	}
	s.actions.Handle(ctx, ev)
}

// DeviceStatus reports whether deviceID is registered.
func (s *Service) DeviceStatus(ctx context.Context, deviceID string) (DeviceStatus, error) {
	if err := credential.ValidateDeviceID(deviceID); err != nil {
		return DeviceStatus{}, err
	}

	rec, found, err := s.store.Lookup(ctx, deviceID)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("looking up device: %w", err)
	}

	st := DeviceStatus{DeviceID: deviceID, Registered: found}
	if found {
		st.Region = rec.Region
		st.HasAPIKey = rec.APIKey != ""
		st.CreatedAt = &rec.CreatedAt
		st.UpdatedAt = &rec.UpdatedAt
	}
	return st, nil
}

func errorResult(kind ErrorKind, deviceID, alertID, detail string) Result {
	return Result{Status: StatusError, Kind: kind, DeviceID: deviceID, AlertID: alertID, Detail: detail}
}

// IsInvalidDevice reports whether err came from device id validation.
func IsInvalidDevice(err error) bool {
	return errors.Is(err, credential.ErrInvalidDeviceID)
}
