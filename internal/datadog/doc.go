// Package datadog is the client for the upstream incident API.
//
// Four calls are used: acknowledge and resolve an On-Call page, validate
// an API key, and create a webhook integration pointed back at the bridge.
// Every request carries the DD-API-KEY and DD-APPLICATION-KEY headers
// of the credentials it is made with, goes to api.{region}, and is bounded
// by a fixed timeout. Requests are never retried.
package datadog
