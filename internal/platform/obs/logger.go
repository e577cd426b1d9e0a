package obs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global logger from DRTSIM_LOG_FORMAT and DRTSIM_DEBUG.
// Extra writers receive the same lines as JSON.
func SetupLogger(extra ...io.Writer) {
	var out io.Writer = os.Stdout
	if os.Getenv("DRTSIM_LOG_FORMAT") != "JSON" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if len(extra) > 0 {
		out = zerolog.MultiLevelWriter(append([]io.Writer{out}, extra...)...)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if os.Getenv("DRTSIM_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}
}

// NewEventLogger returns a JSON-lines logger for per-traveler events.
func NewEventLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Logger()
}
