// Package logging provides structured logging for rfidhub.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
