package drtplanner

import (
	"cmp"
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"errors"
	"slices"

	"github.com/samber/lo"
)

// Upper bound on planner queries per budget while scanning the trip window.
const maxScanSteps = 48

// feeder is a transit itinerary whose car leg connects to a zone stop.
type feeder struct {
	trip *domain.Trip
	car  int
	// pt is the PT leg served at stop.
	pt   int
	stop string
}

// splitFeeder locates the car leg and the PT stop it connects to.
func splitFeeder(trip *domain.Trip, out bool) (feeder, bool) {
	car := slices.IndexFunc(trip.Legs, func(l domain.Leg) bool { return l.Mode == domain.ModeCar })
	if car < 0 {
		return feeder{}, false
	}
	if out {
		for i := car + 1; i < len(trip.Legs); i++ {
			if l := trip.Legs[i]; l.Mode.IsPT() {
				return feeder{trip: trip, car: car, pt: i, stop: l.FromStop}, l.FromStop != ""
			}
		}
		return feeder{}, false
	}
	for i := car - 1; i >= 0; i-- {
		if l := trip.Legs[i]; l.Mode.IsPT() {
			return feeder{trip: trip, car: car, pt: i, stop: l.ToStop}, l.ToStop != ""
		}
	}
	return feeder{}, false
}

// transfer is the latest moment the traveler may leave the vehicle (OUT) or
// the earliest they can board it (IN), given the PT timetable at the stop and
// any walk between the stop and the car leg.
func (f feeder) transfer(out bool, leaving float64) float64 {
	legs := f.trip.Legs
	var walk float64
	if out {
		for _, l := range legs[f.car+1 : f.pt] {
			walk += l.Duration
		}
		return legs[f.pt].StartTime - walk - leaving
	}
	for _, l := range legs[f.pt+1 : f.car] {
		walk += l.Duration
	}
	return legs[f.pt].EndTime + walk
}

// routingMiss reports planner outcomes that end a budget search or scan without failing the run.
func routingMiss(err error) bool {
	return errors.Is(err, ports.ErrNoPath) || errors.Is(err, ports.ErrTrivialPath) || errors.Is(err, ports.ErrUnreachable)
}

func (p *Planner) plan(ctx context.Context, q Query, mode domain.Mode, at, maxPreTransit float64) ([]*domain.Trip, error) {
	return p.transit.PlanTransit(ctx, q.Origin, q.Destination, at, ports.PlanOptions{
		Modes:             []domain.Mode{mode},
		MaxWalkDistance:   q.Attrs.MaxWalkingDistance,
		WalkSpeed:         q.Attrs.WalkSpeed,
		ArriveBy:          q.ArriveBy,
		MaxPreTransitTime: maxPreTransit,
	})
}

// viableBudgets shrinks maxPreTransitTime and keeps every value whose
// itineraries transfer at a zone stop.
func (p *Planner) viableBudgets(ctx context.Context, q Query, mode domain.Mode) ([]float64, error) {
	var budgets []float64
	for mpt := p.cfg.MaxPreTransitTime; mpt >= p.cfg.MinPreTransitTime && mpt > 0; mpt -= p.cfg.PreTransitStep {
		trips, err := p.plan(ctx, q, mode, q.Time, mpt)
		if routingMiss(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		if lo.ContainsBy(trips, func(t *domain.Trip) bool {
			f, ok := splitFeeder(t, q.Travel == domain.TravelOut)
			return ok && p.stops[f.stop]
		}) {
			budgets = append(budgets, mpt)
		}
		if p.cfg.PreTransitStep <= 0 {
			break
		}
	}
	return budgets, nil
}

// check validates an itinerary against the day and the traveler's trip window.
// A terminal rejection ends the scan in the current direction.
func (p *Planner) check(q Query, t *domain.Trip) (rej *Rejection, terminal bool) {
	switch {
	case len(t.Legs) < 2:
		return reject(ReasonOneLeg, "%s itinerary", t.MainMode), true
	case t.EndTime() > p.cfg.Horizon || t.StartTime() < q.Now:
		return reject(ReasonOvernight, "itinerary %.0f..%.0f", t.StartTime(), t.EndTime()), true
	case t.StartTime() < q.TripTW.Left || t.EndTime() > q.TripTW.Right:
		return reject(ReasonTooLongPT, "itinerary %.0f..%.0f outside trip window", t.StartTime(), t.EndTime()), true
	case t.Duration > q.MaxTripDuration:
		return reject(ReasonTooLongPT, "%.0f s over a %.0f s limit", t.Duration, q.MaxTripDuration), false
	}
	return nil, false
}

// waitGap is the idle time at the stop between the feeder side and PT.
func waitGap(t *domain.Trip, arriveBy bool) float64 {
	if arriveBy {
		for i := len(t.Legs) - 1; i > 0; i-- {
			if t.Legs[i-1].Mode.IsPT() {
				return t.Legs[i].StartTime - t.Legs[i-1].EndTime
			}
		}
		return 0
	}
	for i := 1; i < len(t.Legs); i++ {
		if t.Legs[i].Mode.IsPT() {
			return t.Legs[i].StartTime - t.Legs[i-1].EndTime
		}
	}
	return 0
}

// scan walks the trip window forward (depart-at) or backward (arrive-by)
// for every budget and collects distinct feeder itineraries.
func (p *Planner) scan(ctx context.Context, q Query, mode domain.Mode, budgets []float64) ([]feeder, *Rejection, error) {
	type span struct{ start, end float64 }
	seen := make(map[span]bool)
	var (
		out  []feeder
		last *Rejection
	)

	for _, budget := range budgets {
		t := q.Time
		for range maxScanSteps {
			if t < q.Now || t > p.cfg.Horizon {
				break
			}
			trips, err := p.plan(ctx, q, mode, t, budget)
			if routingMiss(err) {
				break
			}
			if err != nil {
				return nil, nil, err
			}
			if len(trips) == 0 {
				break
			}

			stop := false
			for _, trip := range trips {
				if rej, terminal := p.check(q, trip); rej != nil {
					last = rej
					stop = stop || terminal
					continue
				}
				f, ok := splitFeeder(trip, q.Travel == domain.TravelOut)
				if !ok || !p.stops[f.stop] {
					last = reject(ReasonNoStop, "stop %q is outside the zone", f.stop)
					continue
				}
				key := span{trip.StartTime(), trip.EndTime()}
				if !seen[key] {
					seen[key] = true
					out = append(out, f)
				}
			}
			if stop {
				break
			}

			step := max(1, waitGap(trips[0], q.ArriveBy))
			if q.ArriveBy {
				t -= step
			} else {
				t += step
			}
		}
	}
	return out, last, nil
}

// downselect keeps the fastest, earliest, latest and median candidates plus
// uniform samples when there are more than MaxCandidates.
func (p *Planner) downselect(cands []feeder, arriveBy bool) []feeder {
	if len(cands) <= p.cfg.MaxCandidates {
		return cands
	}
	anchor := func(f feeder) float64 {
		if arriveBy {
			return f.trip.EndTime()
		}
		return f.trip.StartTime()
	}
	sorted := slices.Clone(cands)
	slices.SortStableFunc(sorted, func(a, b feeder) int { return cmp.Compare(anchor(a), anchor(b)) })

	fastest := lo.MinBy(sorted, func(a, b feeder) bool { return a.trip.Duration < b.trip.Duration })
	keep := make(map[*domain.Trip]bool, p.cfg.MaxCandidates)
	for _, f := range []feeder{fastest, sorted[0], sorted[len(sorted)-1], sorted[len(sorted)/2]} {
		keep[f.trip] = true
	}

	rest := lo.Filter(sorted, func(f feeder, _ int) bool { return !keep[f.trip] })
	for _, i := range p.rng.Perm(len(rest)) {
		if len(keep) >= p.cfg.MaxCandidates {
			break
		}
		keep[rest[i].trip] = true
	}
	return lo.Filter(sorted, func(f feeder, _ int) bool { return keep[f.trip] })
}
