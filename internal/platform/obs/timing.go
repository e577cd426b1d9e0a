package obs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type ctxKey string

const RunIDKey ctxKey = "run_id"

// WithRunID tags a context so timings of one simulation can be correlated.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// Time logs the wall-clock duration of an external call at debug level.
// Usage: defer obs.Time(ctx, "op")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	runID, _ := ctx.Value(RunIDKey).(string)

	return func(errp *error) {
		dur := time.Since(start)

		ev := log.Debug().Str("run_id", runID).Str("op", name).Int64("dur_ms", dur.Milliseconds())
		if errp != nil && *errp != nil {
			ev.Err(*errp).Msg("op failed")
			return
		}
		ev.Msg("op done")
	}
}
