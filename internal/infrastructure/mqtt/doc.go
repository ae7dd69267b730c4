// Package mqtt owns the bridge's single broker connection.
//
// This package manages:
//   - The dd/pager/{device}/{channel} topic scheme
//   - One long-lived paho connection shared by every HTTP request
//   - A bounded EnsureConnected wait for request handlers
//   - Fire-and-forget QoS 1 publishing
//   - Routing inbound ack/resolve messages onto a channel
//
// # Connection lifecycle
//
//	Disconnected → Connecting → Connected
//	      ↑                         │
//	      └──── link failure ───────┘
//
// After the first Start, paho reconnects on its own with backoff
// (1s to 30s by default). EnsureConnected only restarts the connection when
// no start is already in flight, and gives up after mqtt.connect_wait.
//
// # Security Considerations
//
//   - TLS 1.2+ is used when mqtt.broker.tls is true (the default)
//   - Payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	mgr := mqtt.NewManager(cfg.MQTT, cfg.ClientID(), mqtt.WithLogger(log))
//	defer mgr.Stop()
//
//	err := mgr.Publish(ctx, mqtt.Topic("pager-42", mqtt.ChannelAlert), payload)
//
//	for ev := range mgr.Events() {
//	    // ev.DeviceID, ev.Channel, ev.AlertID()
//	}
package mqtt
