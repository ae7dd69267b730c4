// Package dispatch turns device ack/resolve events into upstream calls.
//
// Events arrive from the MQTT manager's channel. Each one is handled on
// its own goroutine (bounded): credentials are resolved for the device,
// then a single acknowledge or resolve request is made. There is no
// caller to report to, so every failure ends in a log line.
package dispatch
