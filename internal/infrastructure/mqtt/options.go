package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ddpager/pager-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// handshakeTimeout bounds a single TCP/TLS + CONNECT exchange inside paho.
	handshakeTimeout = 10 * time.Second

	// subscribeTimeout bounds the wait for a SUBACK after (re)connect.
	subscribeTimeout = 5 * time.Second

	// disconnectQuiesce is the time to wait for pending operations on disconnect.
	disconnectQuiesce = 250 // milliseconds

	// keepAlive is the keepalive interval for the connection.
	keepAlive = 60 * time.Second

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// DialConfig is everything a Dialer needs to build a connection.
type DialConfig struct {
	MQTT     config.MQTTConfig
	ClientID string

	// OnMessage receives every message arriving on the ack/resolve
	// wildcard subscriptions.
	OnMessage MessageHandler

	Logger Logger
}

// MessageHandler is the callback signature for received messages.
type MessageHandler func(topic string, payload []byte)

// Dialer creates an unconnected Conn. The default dials paho.
type Dialer func(DialConfig) (Conn, error)

// Conn is the narrow transport surface the Manager drives.
type Conn interface {
	// Connect initiates the handshake and returns without waiting for it
	// to finish. Only errors the client reports immediately are returned.
	Connect() error

	// IsConnected reports whether the link is currently up.
	IsConnected() bool

	// Publish queues payload on topic and returns once the client accepted
	// it, without waiting for the broker's acknowledgement.
	Publish(topic string, qos byte, payload []byte) error

	// Disconnect closes the link and stops reconnecting.
	Disconnect()
}

// buildClientOptions creates paho MQTT options from bridge config.
//
// This configures the broker URL (tcp:// or ssl://), client id, optional
// credentials, and paho's own reconnect loop bounded by
// Reconnect.InitialDelay..Reconnect.MaxDelay.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session: subscriptions are re-issued from the OnConnect handler.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(handshakeTimeout)
	opts.SetKeepAlive(keepAlive)

	// Handlers run on their own goroutines so a slow consumer cannot
	// stall paho's router.
	opts.SetOrderMatters(false)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// pahoConn adapts a paho client to Conn.
type pahoConn struct {
	client pahomqtt.Client
}

// DialPaho is the production Dialer.
func DialPaho(dc DialConfig) (Conn, error) {
	opts := buildClientOptions(dc.MQTT, dc.ClientID)
	logger := dc.Logger
	qos := byte(dc.MQTT.QoS)

	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if dc.OnMessage != nil {
			dc.OnMessage(msg.Topic(), msg.Payload())
		}
	}

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		logger.Info("mqtt connected", "client_id", dc.ClientID)

		filters := map[string]byte{
			AckSubscription():     qos,
			ResolveSubscription(): qos,
		}
		token := c.SubscribeMultiple(filters, handler)
		go func() {
			if !token.WaitTimeout(subscribeTimeout) {
				logger.Warn("mqtt subscribe timed out", "timeout", subscribeTimeout)
				return
			}
			if err := token.Error(); err != nil {
				logger.Error("mqtt subscribe failed", "error", err)
			}
		}()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		logger.Info("mqtt reconnecting")
	})

	return &pahoConn{client: pahomqtt.NewClient(opts)}, nil
}

func (p *pahoConn) Connect() error {
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return err
		}
	default:
	}
	return nil
}

// IsConnected reports an open network link. paho's own IsConnected is
// also true while ConnectRetry or AutoReconnect is still dialling.
func (p *pahoConn) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

func (p *pahoConn) Publish(topic string, qos byte, payload []byte) error {
	token := p.client.Publish(topic, qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

func (p *pahoConn) Disconnect() {
	p.client.Disconnect(disconnectQuiesce)
}
