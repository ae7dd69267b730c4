// Package credential is the per-device credential store.
//
// Each physical pager registers the upstream API key pair and region it
// acts with. Records are keyed by device id and persisted in SQLite so
// they survive restarts. Resolver layers the process-wide fallback keys
// on top: a stored record with a non-empty API key wins, otherwise the
// fallback is used when configured.
package credential
