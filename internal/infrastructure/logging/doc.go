// Package logging provides structured logging on top of log/slog.
//
// Every entry carries the service name and build version. Components
// receive a child logger tagged with their name:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("router").Debug("host rejected", "host", host)
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Never log secrets such as the InfluxDB token or MQTT password.
package logging
