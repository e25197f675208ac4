// Package logging provides structured logging for udon.
//
// This package wraps Go's standard log/slog package so every component
// (supervisor, device monitor, MQTT relay, HTTP API) logs the same way.
//
// # Features
//
//   - JSON output for services (machine-parsable)
//   - Text output for interactive use (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "port", 8470)
//
// Never log MQTT passwords, InfluxDB tokens or JWTs.
package logging
