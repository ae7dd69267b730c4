// Package influxdb records pager history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every alert
// published to a device and every acknowledge/resolve call made for one
// becomes a point in the pager_events measurement:
//
//	pager_events,device_id=pager-42,event=alert_published alert_id="x1",ok=true
//	pager_events,device_id=pager-42,event=acknowledge alert_id="x1",ok=false
//
// The integration is optional (influxdb.enabled). Writes are non-blocking
// and batched according to batch_size and flush_interval; write errors are
// delivered to the SetOnError callback.
package influxdb
