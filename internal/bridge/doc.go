// Package bridge orchestrates the pager bridge's request-driven operations.
//
// Service is what the HTTP layer calls: publish a webhook alert, send a
// test alert, register a device's credentials, report a device's status.
// Failures are returned as a Result with status "error" instead of an
// error value, so a handler can always answer with a JSON body.
package bridge
