package behaviour

import (
	"drt-simulator/internal/domain"
	"drt-simulator/internal/services/fleet"
	"drt-simulator/internal/sim"
	"errors"
	"fmt"
	"slices"
)

var ErrNoDRTLeg = errors.New("booked trip has no DRT leg")

// execute runs the chosen trip and returns what actually happened.
func (t *Traveler) execute(p *sim.Process, planned *domain.Trip, b *fleet.Booking) (*domain.Trip, error) {
	if b == nil {
		return t.executePlanned(p, planned), nil
	}

	at := slices.IndexFunc(planned.Legs, func(l domain.Leg) bool { return l.Mode == domain.ModeDRT })
	if at < 0 {
		return nil, ErrNoDRTLeg
	}
	src := planned.DeepCopy()
	actual := &domain.Trip{MainMode: planned.MainMode}

	// Legs before the ride are taken as planned.
	for _, l := range src.Legs[:at] {
		actual.AppendLegContiguous(l)
	}

	v := p.Wait(b.Executed)
	ride, ok := v.(domain.Leg)
	if !ok {
		return nil, fmt.Errorf("booking executed with %T", v)
	}
	ride.FromStop, ride.ToStop = src.Legs[at].FromStop, src.Legs[at].ToStop
	t.event("leg_end").
		Str("mode", string(ride.Mode)).
		Str("vehicle", b.Vehicle).
		Float64("start", ride.StartTime).
		Msg("")
	actual.AppendLegContiguous(ride)

	for _, l := range src.Legs[at+1:] {
		if l.StartTime < actual.EndTime()-timeEps {
			t.w.Events.Warn().
				Str("event", "late_feeder").
				Int("person", t.ID).
				Float64("sim_time", t.w.Env.Now()).
				Float64("arrival", actual.EndTime()).
				Float64("departure", l.StartTime).
				Msg("drt ride ended after the connection left")
		}
		p.Sleep(max(0, l.StartTime-t.w.Env.Now()))
		t.event("leg_start").Str("mode", string(l.Mode)).Msg("")
		p.Sleep(max(0, l.EndTime-t.w.Env.Now()))
		t.event("leg_end").Str("mode", string(l.Mode)).Msg("")
		actual.AppendLegContiguous(l)
	}
	return actual, nil
}

// executePlanned advances through the legs on their planned times.
func (t *Traveler) executePlanned(p *sim.Process, planned *domain.Trip) *domain.Trip {
	for _, l := range planned.Legs {
		p.Sleep(max(0, l.StartTime-t.w.Env.Now()))
		t.event("leg_start").Str("mode", string(l.Mode)).Msg("")
		p.Sleep(max(0, l.EndTime-t.w.Env.Now()))
		t.event("leg_end").Str("mode", string(l.Mode)).Msg("")
	}
	return planned.DeepCopy()
}
