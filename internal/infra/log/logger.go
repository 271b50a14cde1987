package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger создаёт zerolog с полем service. В dev включается debug и вывод в консольном формате.
func NewLogger(appEnv, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if appEnv == "dev" {
		level = zerolog.DebugLevel
	}
	var logger zerolog.Logger
	if appEnv == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.With().Timestamp().Str("service", service).Logger().Level(level)
}
