// Package obs wires up the ambient logging and metrics every other
// package depends on: a zerolog logger configured per `logging.*` in
// the loaded configuration, and the Prometheus collectors the MCP HTTP
// frontend exposes at /metrics. Grounded on the teacher's
// internal/cli/root.go initLogging and internal/server/server.go's
// ExecutionManager metric registration.
package obs

import (
	"os"
	"strings"

	"github.com/ploston/dael/internal/config"
	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide logger from the loaded LoggingConfig:
// a level and a format (console or json). Per-component overrides
// (logging.components.<name> in the config file) are applied by
// ComponentLogger, not here.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var writer zerolog.ConsoleWriter
	var logger zerolog.Logger
	if strings.EqualFold(cfg.Format, "json") {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		writer = zerolog.ConsoleWriter{Out: os.Stderr}
		logger = zerolog.New(writer).With().Timestamp().Logger()
	}

	return logger.Level(parseLevel(cfg.Level))
}

// ComponentLogger narrows logger to name, applying any per-component
// level override from logging.components before returning.
func ComponentLogger(logger zerolog.Logger, cfg config.LoggingConfig, name string) zerolog.Logger {
	component := logger.With().Str("component", name).Logger()
	if override, ok := cfg.Components[name]; ok {
		component = component.Level(parseLevel(override))
	}
	return component
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
