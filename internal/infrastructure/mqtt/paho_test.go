package mqtt

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ddpager/pager-bridge/internal/infrastructure/logging"
)

// closedPort returns a local address with nothing listening on it.
func closedPort(t *testing.T) (string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return "127.0.0.1", port
}

func TestDialPaho_NotConnectedWhileRetrying(t *testing.T) {
	host, port := closedPort(t)
	cfg := testConfig()
	cfg.Broker.Host = host
	cfg.Broker.Port = port
	cfg.Broker.TLS = false

	conn, err := DialPaho(DialConfig{MQTT: cfg, ClientID: "closed-port", Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("DialPaho() error = %v", err)
	}
	t.Cleanup(conn.Disconnect)

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect() error = %v, want nil while paho retries", err)
	}

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if conn.IsConnected() {
			t.Fatal("IsConnected() = true with no broker listening")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestManager_EnsureConnectedTimesOutWithoutBroker(t *testing.T) {
	host, port := closedPort(t)
	cfg := testConfig()
	cfg.Broker.Host = host
	cfg.Broker.Port = port
	cfg.Broker.TLS = false

	const wait = 500 * time.Millisecond
	m := NewManager(cfg, "closed-port",
		WithLogger(logging.Discard()),
		WithConnectWait(wait, 20*time.Millisecond),
		WithRetryDelay(10*time.Millisecond),
	)
	t.Cleanup(m.Stop)

	start := time.Now()
	err := m.EnsureConnected(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("EnsureConnected() error = %v, want ErrConnectTimeout", err)
	}
	if elapsed < wait-50*time.Millisecond || elapsed > wait+time.Second {
		t.Errorf("EnsureConnected() took %v, want about %v", elapsed, wait)
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true with no broker listening")
	}
	if err := m.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	if err := m.Publish(context.Background(), Topic("pager-42", ChannelAlert), []byte(`{}`)); !errors.Is(err, ErrConnectTimeout) {
		t.Errorf("Publish() error = %v, want ErrConnectTimeout", err)
	}
}
