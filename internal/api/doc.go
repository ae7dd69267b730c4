// Package api implements the HTTP surface of the pager bridge.
//
// Routes:
//   - GET  /health                liveness plus MQTT link state
//   - GET  /setup                 setup page with a test button and registration form
//   - POST /webhook               alert for the configured default device
//   - POST /webhook/{device_id}   alert for a registered device
//   - POST /test-alert            synthetic alert
//   - POST /register              store per-device credentials
//   - GET  /devices/{device_id}   registration status, never secrets
//
// Webhook and test-alert handlers always answer 200 with a JSON result
// whose status field carries the outcome, so the incident service never
// retries a webhook the bridge could not deliver.
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
