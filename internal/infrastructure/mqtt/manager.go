package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ddpager/pager-bridge/internal/infrastructure/config"
)

const (
	// maxPayloadSize caps a single publish (1MB).
	maxPayloadSize = 1 << 20

	// defaultRetryDelay is the pause before the single start() retry.
	defaultRetryDelay = time.Second

	// defaultEventBuffer is the capacity of the inbound DeviceEvent channel.
	defaultEventBuffer = 64

	defaultConnectWait  = 10 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DeviceEvent is an ack or resolve message received from a device.
type DeviceEvent struct {
	DeviceID string
	Channel  Channel
	Payload  []byte
}

// Manager owns the single broker connection shared by every request.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Inbound ack/resolve messages are delivered on Events(); the manager
//     never calls into other components from paho's goroutines.
type Manager struct {
	cfg      config.MQTTConfig
	clientID string
	dial     Dialer
	logger   Logger

	connectWait  time.Duration
	pollInterval time.Duration
	retryDelay   time.Duration
	now          func() time.Time

	mu        sync.Mutex
	conn      Conn
	startedAt time.Time
	stopped   bool

	events   chan DeviceEvent
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the paho dialer, typically with a stub in tests.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithLogger sets the logger used for connection and dispatch events.
func WithLogger(l Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithConnectWait overrides the EnsureConnected bound and polling interval.
func WithConnectWait(wait, poll time.Duration) Option {
	return func(m *Manager) {
		m.connectWait = wait
		m.pollInterval = poll
	}
}

// WithRetryDelay overrides the pause between the two start attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(m *Manager) { m.events = make(chan DeviceEvent, n) }
}

// NewManager creates a manager for the broker in cfg. No connection is
// made until Start or EnsureConnected is called.
func NewManager(cfg config.MQTTConfig, clientID string, opts ...Option) *Manager {
	m := &Manager{
		cfg:          cfg,
		clientID:     clientID,
		dial:         DialPaho,
		logger:       slog.Default(),
		connectWait:  time.Duration(cfg.ConnectWait) * time.Second,
		pollInterval: time.Duration(cfg.PollInterval) * time.Millisecond,
		retryDelay:   defaultRetryDelay,
		now:          time.Now,
		events:       make(chan DeviceEvent, defaultEventBuffer),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.connectWait <= 0 {
		m.connectWait = defaultConnectWait
	}
	if m.pollInterval <= 0 {
		m.pollInterval = defaultPollInterval
	}
	return m
}

// Events returns the channel of inbound ack/resolve events.
// It is never closed; consumers stop on their own context.
func (m *Manager) Events() <-chan DeviceEvent {
	return m.events
}

// Start tears down any existing connection and initiates a new one.
//
// It returns as soon as the handshake is under way. The connection then
// reconnects on its own with backoff between Reconnect.InitialDelay and
// Reconnect.MaxDelay.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked()
}

func (m *Manager) startLocked() error {
	if m.stopped {
		return ErrStopped
	}

	if m.conn != nil {
		m.conn.Disconnect()
		m.conn = nil
	}

	conn, err := m.dial(DialConfig{
		MQTT:      m.cfg,
		ClientID:  m.clientID,
		OnMessage: m.handleMessage,
		Logger:    m.logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := conn.Connect(); err != nil {
		conn.Disconnect()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m.conn = conn
	m.startedAt = m.now()
	m.logger.Info("mqtt connection started",
		"broker", fmt.Sprintf("%s:%d", m.cfg.Broker.Host, m.cfg.Broker.Port),
		"client_id", m.clientID,
		"tls", m.cfg.Broker.TLS,
	)
	return nil
}

// startIfIdle starts a connection unless one is already connected or was
// started within the last connectWait.
func (m *Manager) startIfIdle() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.conn != nil {
		if m.conn.IsConnected() || m.now().Sub(m.startedAt) < m.connectWait {
			return nil
		}
	}
	return m.startLocked()
}

// EnsureConnected blocks until the connection is up, for at most the
// configured connect wait.
//
// When already connected it returns immediately. Otherwise it starts a
// connection, retrying the start once after the retry delay, then polls
// the link state. It never blocks past the bound or past ctx.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}

	if err := m.startIfIdle(); err != nil {
		if errors.Is(err, ErrStopped) {
			return err
		}
		m.logger.Warn("mqtt start failed, retrying once", "error", err, "delay", m.retryDelay)

		if err := sleepCtx(ctx, m.retryDelay); err != nil {
			return err
		}
		if err := m.Start(); err != nil {
			return err
		}
	}

	deadline := time.NewTimer(m.connectWait)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		if m.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for mqtt connection: %w", ctx.Err())
		case <-deadline.C:
			if m.IsConnected() {
				return nil
			}
			return fmt.Errorf("%w after %v", ErrConnectTimeout, m.connectWait)
		case <-ticker.C:
		}
	}
}

// Publish ensures the connection is up and queues payload on topic at the
// configured QoS. Success means the client accepted the message, not that
// the device received it.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if err := m.EnsureConnected(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.Publish(topic, byte(m.cfg.QoS), payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// IsConnected returns the current link state.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.conn.IsConnected()
}

// HealthCheck returns ErrNotConnected when the link is down.
func (m *Manager) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}
	if !m.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Stop closes the connection and halts reconnection. Later calls to Start,
// EnsureConnected or Publish fail with ErrStopped.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		if m.conn != nil {
			m.conn.Disconnect()
			m.conn = nil
		}
		m.mu.Unlock()
		close(m.done)
	})
}

// handleMessage routes one inbound message to Events.
func (m *Manager) handleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	deviceID, ch, err := ParseTopic(topic)
	if err != nil {
		m.logger.Warn("discarding message on unrecognised topic", "topic", topic)
		return
	}
	if ch != ChannelAck && ch != ChannelResolve {
		m.logger.Debug("ignoring inbound message", "topic", topic, "channel", ch)
		return
	}

	ev := DeviceEvent{
		DeviceID: deviceID,
		Channel:  ch,
		Payload:  append([]byte(nil), payload...),
	}
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// AlertID returns the payload trimmed of surrounding whitespace.
func (e DeviceEvent) AlertID() string {
	return strings.TrimSpace(string(e.Payload))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
