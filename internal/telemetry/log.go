// Package telemetry carries the ambient logging and metrics stack shared
// by every component: structured, leveled, key-value logging in the
// teacher's log.Info("msg", "key", value) call shape, backed by zerolog
// (the structured logger the corpus's own Postgres outbox worker uses),
// plus the Prometheus counters/histograms the dispatcher updates.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide logger. level accepts zerolog's
// textual levels ("debug", "info", "warn", "error"); an unrecognized
// value falls back to info.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
