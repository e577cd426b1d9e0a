package simulation

import (
	"drt-simulator/internal/domain"
	"maps"
)

// Outcome keys reported even when they never fire.
var outcomeKeys = []string{
	"unactivatable_persons",
	"unreactivatable_persons",
	"unplannable_persons",
	"unchoosable_persons",
	"undeliverable_drt",
	"unassigned_drt_trips",
	"no_suitable_pt_stop",
	"too_short_drt_leg",
	"too_late_request",
	"overnight_trip",
	"one_leg",
	"too_long_pt_trip",
	"delivered_travelers",
	"tw_violations",
}

// Counters tallies named simulation outcomes. The event loop is single
// threaded, so no locking is needed.
type Counters struct {
	m map[string]int
}

func NewCounters() *Counters {
	c := &Counters{m: make(map[string]int)}
	for _, k := range outcomeKeys {
		c.m[k] = 0
	}
	for _, m := range domain.AllModes {
		c.m[string(m)+"_trips"] = 0
	}
	return c
}

func (c *Counters) Inc(key string) {
	if key == "" {
		return
	}
	c.m[key]++
}

func (c *Counters) Get(key string) int { return c.m[key] }

// Snapshot returns a copy of every counter.
func (c *Counters) Snapshot() map[string]int { return maps.Clone(c.m) }

