package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ddpager/pager-bridge/internal/infrastructure/config"
	"github.com/ddpager/pager-bridge/internal/infrastructure/logging"
)

// stubConn is an in-memory Conn whose state tests control.
type stubConn struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	publishErr   error
	connectAfter time.Duration
	published    []stubPublish
	disconnected bool
	onMessage    MessageHandler
}

type stubPublish struct {
	topic   string
	qos     byte
	payload []byte
}

func (s *stubConn) Connect() error {
	if s.connectErr != nil {
		return s.connectErr
	}
	if s.connectAfter > 0 {
		time.AfterFunc(s.connectAfter, func() { s.setConnected(true) })
	} else if s.connectAfter == 0 {
		s.setConnected(true)
	}
	return nil
}

func (s *stubConn) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *stubConn) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.disconnected
}

func (s *stubConn) Publish(topic string, qos byte, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published = append(s.published, stubPublish{topic, qos, payload})
	return nil
}

func (s *stubConn) Disconnect() {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
}

// stubDialer hands out conns built by next and counts dials.
type stubDialer struct {
	dials atomic.Int32
	next  func(n int32) *stubConn
	last  atomic.Pointer[stubConn]
}

func (d *stubDialer) Dial(dc DialConfig) (Conn, error) {
	n := d.dials.Add(1)
	c := d.next(n)
	c.onMessage = dc.OnMessage
	d.last.Store(c)
	return c, nil
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:       config.MQTTBrokerConfig{Host: "broker.test", Port: 8883, TLS: true},
		QoS:          1,
		Reconnect:    config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 30},
		ConnectWait:  10,
		PollInterval: 250,
	}
}

func newTestManager(d *stubDialer, opts ...Option) *Manager {
	base := []Option{
		WithDialer(d.Dial),
		WithLogger(logging.Discard()),
		WithConnectWait(200*time.Millisecond, 10*time.Millisecond),
		WithRetryDelay(20 * time.Millisecond),
	}
	return NewManager(testConfig(), "dd-pager-bridge-test", append(base, opts...)...)
}

func TestEnsureConnected_AlreadyConnected(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{} }}
	m := newTestManager(d)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	start := time.Now()
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("EnsureConnected() took %v on a live connection", elapsed)
	}
	if got := d.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestEnsureConnected_WaitsForHandshake(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{connectAfter: 50 * time.Millisecond} }}
	m := newTestManager(d)
	defer m.Stop()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false after EnsureConnected")
	}
}

func TestEnsureConnected_TimesOutWithinBound(t *testing.T) {
	// connectAfter < 0: the stub never comes up.
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{connectAfter: -1} }}
	m := newTestManager(d)
	defer m.Stop()

	start := time.Now()
	err := m.EnsureConnected(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("EnsureConnected() error = %v, want ErrConnectTimeout", err)
	}
	if elapsed > 200*time.Millisecond+150*time.Millisecond {
		t.Errorf("EnsureConnected() took %v, bound is 200ms", elapsed)
	}
}

func TestEnsureConnected_DefaultBound(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full default bound")
	}
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{connectAfter: -1} }}
	m := NewManager(testConfig(), "c", WithDialer(d.Dial), WithLogger(logging.Discard()))
	defer m.Stop()

	start := time.Now()
	err := m.EnsureConnected(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("EnsureConnected() error = %v, want ErrConnectTimeout", err)
	}
	if elapsed > 10*time.Second+time.Second {
		t.Errorf("EnsureConnected() took %v, bound is 10s", elapsed)
	}
}

func TestEnsureConnected_RetriesStartOnce(t *testing.T) {
	d := &stubDialer{next: func(n int32) *stubConn {
		if n == 1 {
			return &stubConn{connectErr: errors.New("refused")}
		}
		return &stubConn{}
	}}
	m := newTestManager(d)
	defer m.Stop()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if got := d.dials.Load(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestEnsureConnected_SecondStartFailureSurfaces(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{connectErr: errors.New("refused")} }}
	m := newTestManager(d)
	defer m.Stop()

	err := m.EnsureConnected(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("EnsureConnected() error = %v, want ErrConnectionFailed", err)
	}
	if got := d.dials.Load(); got != 2 {
		t.Errorf("dials = %d, want exactly 2 attempts", got)
	}
}

func TestEnsureConnected_InFlightStartNotRepeated(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{connectAfter: 60 * time.Millisecond} }}
	m := newTestManager(d)
	defer m.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.EnsureConnected(context.Background()); err != nil {
				t.Errorf("EnsureConnected() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := d.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1 for concurrent callers", got)
	}
}

func TestEnsureConnected_ContextCancelled(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{connectAfter: -1} }}
	m := newTestManager(d, WithConnectWait(5*time.Second, 10*time.Millisecond))
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := m.EnsureConnected(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("EnsureConnected() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestStart_TearsDownPrevious(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{} }}
	m := newTestManager(d)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := d.last.Load()
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !first.disconnected {
		t.Error("first connection not disconnected by second Start")
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false after restart")
	}
}

func TestPublish(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{} }}
	m := newTestManager(d)
	defer m.Stop()

	topic := Topic("pager-42", ChannelAlert)
	if err := m.Publish(context.Background(), topic, []byte(`{"id":"x1"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	conn := d.last.Load()
	if len(conn.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(conn.published))
	}
	got := conn.published[0]
	if got.topic != topic || got.qos != 1 || string(got.payload) != `{"id":"x1"}` {
		t.Errorf("published %+v", got)
	}
}

func TestPublish_Errors(t *testing.T) {
	tests := []struct {
		name    string
		conn    func() *stubConn
		topic   string
		payload []byte
		wantErr error
	}{
		{"empty topic", func() *stubConn { return &stubConn{} }, "", []byte("x"), ErrInvalidTopic},
		{"oversize payload", func() *stubConn { return &stubConn{} }, "dd/pager/a/alert", make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"client refuses", func() *stubConn { return &stubConn{publishErr: errors.New("queue full")} }, "dd/pager/a/alert", []byte("x"), ErrPublishFailed},
		{"never connects", func() *stubConn { return &stubConn{connectAfter: -1} }, "dd/pager/a/alert", []byte("x"), ErrConnectTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDialer{next: func(int32) *stubConn { return tt.conn() }}
			m := newTestManager(d)
			defer m.Stop()

			err := m.Publish(context.Background(), tt.topic, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStop(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{} }}
	m := newTestManager(d)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	conn := d.last.Load()
	m.Stop()
	m.Stop() // second call is a no-op

	if !conn.disconnected {
		t.Error("Stop() did not disconnect")
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true after Stop")
	}
	if err := m.EnsureConnected(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("EnsureConnected() after Stop error = %v, want ErrStopped", err)
	}
}

func TestHealthCheck(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{} }}
	m := newTestManager(d)
	defer m.Stop()

	if err := m.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() before start error = %v, want ErrNotConnected", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestInboundDispatch(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{} }}
	m := newTestManager(d)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	deliver := d.last.Load().onMessage

	deliver("dd/pager/pager-42/alert", []byte("ignored"))
	deliver("some/other/topic", []byte("ignored"))
	deliver("dd/pager/pager-42/ack", []byte(" x1 \n"))
	deliver("dd/pager/pager-7/resolve", []byte("x2"))

	want := []struct {
		device  string
		channel Channel
		alertID string
	}{
		{"pager-42", ChannelAck, "x1"},
		{"pager-7", ChannelResolve, "x2"},
	}
	for _, w := range want {
		select {
		case ev := <-m.Events():
			if ev.DeviceID != w.device || ev.Channel != w.channel || ev.AlertID() != w.alertID {
				t.Errorf("event = {%s %s %q}, want {%s %s %q}",
					ev.DeviceID, ev.Channel, ev.AlertID(), w.device, w.channel, w.alertID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	select {
	case ev := <-m.Events():
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestInboundDispatch_StopUnblocksSender(t *testing.T) {
	d := &stubDialer{next: func(int32) *stubConn { return &stubConn{} }}
	m := newTestManager(d, WithEventBuffer(0))

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	deliver := d.last.Load().onMessage

	done := make(chan struct{})
	go func() {
		deliver("dd/pager/pager-42/ack", []byte("x1"))
		close(done)
	}()

	m.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler still blocked after Stop")
	}
}
