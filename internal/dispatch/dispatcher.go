package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ddpager/pager-bridge/internal/credential"
	"github.com/ddpager/pager-bridge/internal/datadog"
	"github.com/ddpager/pager-bridge/internal/infrastructure/mqtt"
)

// defaultConcurrency bounds in-flight upstream calls.
const defaultConcurrency = 8

// Resolver finds the credentials to act with for a device.
type Resolver interface {
	Resolve(ctx context.Context, deviceID string) (credential.Credentials, credential.Source, error)
}

// ActionClient performs an action on a page upstream.
type ActionClient interface {
	Do(ctx context.Context, action datadog.Action, creds credential.Credentials, alertID string) error
}

// Recorder receives the outcome of each upstream call. Optional.
type Recorder interface {
	RecordDeviceAction(deviceID, action, alertID string, ok bool)
}

// Logger is the logging surface the dispatcher needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Dispatcher consumes DeviceEvents.
type Dispatcher struct {
	resolver    Resolver
	client      ActionClient
	recorder    Recorder
	logger      Logger
	concurrency int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder records every upstream outcome.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithConcurrency bounds how many events are handled at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New creates a dispatcher.
func New(resolver Resolver, client ActionClient, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver:    resolver,
		client:      client,
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleFunc processes one event.
type HandleFunc func(ctx context.Context, ev mqtt.DeviceEvent)

// Run feeds events to handle until ctx is cancelled or events is closed,
// then waits for in-flight calls to finish. A nil handle uses d.Handle.
func (d *Dispatcher) Run(ctx context.Context, events <-chan mqtt.DeviceEvent, handle HandleFunc) {
	if handle == nil {
		handle = d.Handle
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	defer g.Wait() //nolint:errcheck // Handle never returns an error

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.Go(func() error {
				handle(ctx, ev)
				return nil
			})
		}
	}
}

// Handle processes one event: resolve credentials, then make exactly one
// upstream call. Nothing is returned; outcomes are logged.
func (d *Dispatcher) Handle(ctx context.Context, ev mqtt.DeviceEvent) {
	action, ok := actionFor(ev.Channel)
	if !ok {
		d.logger.Warn("ignoring device event on unexpected channel",
			"device_id", ev.DeviceID,
			"channel", ev.Channel,
		)
		return
	}

	alertID := ev.AlertID()
	if alertID == "" {
		d.logger.Warn("ignoring device event with empty alert id",
			"device_id", ev.DeviceID,
			"action", action,
		)
		return
	}

	creds, source, err := d.resolver.Resolve(ctx, ev.DeviceID)
	if err != nil {
		if errors.Is(err, credential.ErrNoCredentials) {
			d.logger.Warn("no credentials for device, skipping upstream call",
				"device_id", ev.DeviceID,
				"action", action,
				"alert_id", alertID,
			)
		} else {
			d.logger.Error("resolving device credentials failed",
				"device_id", ev.DeviceID,
				"error", err,
			)
		}
		return
	}

	err = d.client.Do(ctx, action, creds, alertID)
	if d.recorder != nil {
		d.recorder.RecordDeviceAction(ev.DeviceID, string(action), alertID, err == nil)
	}
	if err != nil {
		d.logger.Error("upstream device action failed",
			"device_id", ev.DeviceID,
			"action", action,
			"alert_id", alertID,
			"upstream_status", datadog.StatusCode(err),
			"error", err,
		)
		return
	}

	d.logger.Info("upstream device action sent",
		"device_id", ev.DeviceID,
		"action", action,
		"alert_id", alertID,
		"credentials", source,
		"region", creds.Region,
	)
}

func actionFor(ch mqtt.Channel) (datadog.Action, bool) {
	switch ch {
	case mqtt.ChannelAck:
		return datadog.ActionAcknowledge, true
	case mqtt.ChannelResolve:
		return datadog.ActionResolve, true
	}
	return "", false
}
