// Package logging provides structured logging for the pager bridge.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default attributes (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	mqttLog := logger.Component("mqtt")
//	mqttLog.Info("connected", "broker", host)
//
// Never log broker passwords or upstream API/application keys.
package logging
