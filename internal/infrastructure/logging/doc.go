// Package logging provides structured logging for the CEC service.
//
// It wraps log/slog with default fields (service, version) and a Component
// helper for per-subsystem loggers. *Logger satisfies the Logger interfaces
// accepted by the protocol packages, so one logger flows from main into the
// adapter, the service loop and the devices.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("unit").Info("unit started", "devices", 2)
package logging
