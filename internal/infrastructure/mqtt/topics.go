package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every pager topic.
//
// Full scheme: dd/pager/{device_id}/{channel}
const TopicPrefix = "dd/pager"

// topicSegments is the number of levels in a pager topic.
const topicSegments = 4

// Channel is the last topic level, naming the message kind.
type Channel string

const (
	// ChannelAlert carries AlertMessage JSON from the bridge to a device.
	ChannelAlert Channel = "alert"

	// ChannelAck carries an alert id the device acknowledged.
	ChannelAck Channel = "ack"

	// ChannelResolve carries an alert id the device resolved.
	ChannelResolve Channel = "resolve"

	// ChannelSetupComplete tells a device its registration succeeded.
	ChannelSetupComplete Channel = "setup_complete"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelAlert, ChannelAck, ChannelResolve, ChannelSetupComplete:
		return true
	}
	return false
}

// Topic returns the address for deviceID on channel c.
//
// Example: dd/pager/pager-42/alert
func Topic(deviceID string, c Channel) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, deviceID, c)
}

// ParseTopic splits a pager topic into device id and channel.
// Anything that is not exactly dd/pager/{device}/{known channel} is
// rejected with ErrInvalidTopic.
func ParseTopic(topic string) (string, Channel, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicSegments || parts[0]+"/"+parts[1] != TopicPrefix {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	deviceID, ch := parts[2], Channel(parts[3])
	if deviceID == "" || !ch.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return deviceID, ch, nil
}

// Subscription returns the wildcard filter matching channel c on every device.
//
// Pattern: dd/pager/+/{channel}
func Subscription(c Channel) string {
	return fmt.Sprintf("%s/+/%s", TopicPrefix, c)
}

// AckSubscription matches acknowledgements from all devices.
func AckSubscription() string { return Subscription(ChannelAck) }

// ResolveSubscription matches resolutions from all devices.
func ResolveSubscription() string { return Subscription(ChannelResolve) }
