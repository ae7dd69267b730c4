package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement and event tag values for pager history.
const (
	measurementPagerEvents = "pager_events"

	EventAlertPublished = "alert_published"
)

// RecordAlertPublished records one publish attempt to a device.
func (c *Client) RecordAlertPublished(deviceID, alertID string, ok bool) {
	c.record(deviceID, EventAlertPublished, alertID, ok)
}

// RecordDeviceAction records one acknowledge or resolve call made on a
// device's behalf. action is the upstream action name.
func (c *Client) RecordDeviceAction(deviceID, action, alertID string, ok bool) {
	c.record(deviceID, action, alertID, ok)
}

func (c *Client) record(deviceID, event, alertID string, ok bool) {
	if c == nil || !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementPagerEvents,
		map[string]string{
			"device_id": deviceID,
			"event":     event,
		},
		map[string]interface{}{
			"alert_id": alertID,
			"ok":       ok,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
