package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the zerolog Logger for a process, tagged with the service
// name so api and watchdog lines are distinguishable in shared sinks.
// APP_ENV=dev (or development) uses a human-friendly console writer; LOG_LEVEL
// overrides the default info level.
func NewLogger(env, service string) zerolog.Logger {
	out := zerolog.New(os.Stdout)
	if env == "dev" || env == "development" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}

	return out.Level(level).With().Timestamp().Str("service", service).Logger()
}
