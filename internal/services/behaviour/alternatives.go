package behaviour

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"drt-simulator/internal/services/drtplanner"
	"errors"
	"fmt"
)

const timeEps = 1.0

// departure is the query time for depart-at plans, never in the past.
func (tp *tripPlan) departure(now float64) float64 {
	if tp.arriveBy {
		return tp.anchor
	}
	return max(tp.anchor, now)
}

// acceptable reports whether the trip fits the trip window and ends on the same day.
func (t *Traveler) acceptable(trip *domain.Trip, tp *tripPlan, now float64) bool {
	start, end := trip.StartTime(), trip.EndTime()
	return start >= now-timeEps &&
		end <= t.w.Config.Horizon+timeEps &&
		start >= tp.tw.Left-timeEps &&
		end <= tp.tw.Right+timeEps
}

// alternatives collects the traditional itineraries and at most one DRT
// solution. drt is the DRT alternative when the fleet holds a pending
// solution for the traveler.
func (t *Traveler) alternatives(ctx context.Context, tp *tripPlan) (alts []*domain.Trip, drt *domain.Trip, err error) {
	now := t.w.Env.Now()
	at := tp.departure(now)

	if tp.direct.Distance == 0 && tp.direct.Duration == 0 {
		return []*domain.Trip{domain.NewTrivialTrip(tp.from.Coord, at, domain.ModeWalk)}, nil, nil
	}

	for _, m := range t.Attrs.Modes {
		if m == domain.ModeDRT || m == domain.ModeDRTTransit {
			continue
		}
		trips, err := t.traditional(ctx, tp, m, at)
		if err != nil {
			return nil, nil, err
		}
		for _, trip := range trips {
			if t.acceptable(trip, tp, now) {
				alts = append(alts, trip)
			}
		}
	}

	drt, err = t.drtAlternative(ctx, tp, now)
	if err != nil {
		return nil, nil, err
	}
	if drt != nil {
		alts = append(alts, drt)
	}
	return alts, drt, nil
}

// traditional plans one mode. Routing misses drop the mode silently.
func (t *Traveler) traditional(ctx context.Context, tp *tripPlan, m domain.Mode, at float64) ([]*domain.Trip, error) {
	if m == domain.ModeCar {
		start := at
		if tp.arriveBy {
			start = tp.anchor - tp.direct.Duration
		}
		trip, err := t.w.Router.PlanRoad(ctx, tp.from.Coord, tp.to.Coord, start)
		if err != nil {
			if routingMiss(err) || errors.Is(err, ports.ErrTrivialPath) {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		return []*domain.Trip{trip}, nil
	}

	trips, err := t.w.Router.PlanTransit(ctx, tp.from.Coord, tp.to.Coord, at, ports.PlanOptions{
		Modes:           []domain.Mode{m},
		MaxWalkDistance: t.Attrs.MaxWalkingDistance,
		WalkSpeed:       t.Attrs.WalkSpeed,
		ArriveBy:        tp.arriveBy,
	})
	if err != nil {
		if routingMiss(err) || errors.Is(err, ports.ErrTrivialPath) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", m, err)
	}
	for _, trip := range trips {
		if trip.MainMode == "" {
			trip.MainMode = trip.MainModeFromLegs()
		}
	}
	return trips, nil
}

func (t *Traveler) drtAlternative(ctx context.Context, tp *tripPlan, now float64) (*domain.Trip, error) {
	if t.w.DRT == nil {
		return nil, nil
	}
	switch tp.travel {
	case domain.TravelWithin:
		if !t.Attrs.HasMode(domain.ModeDRT) {
			return nil, nil
		}
	case domain.TravelIn, domain.TravelOut:
		if !t.Attrs.HasMode(domain.ModeDRTTransit) {
			return nil, nil
		}
	default:
		return nil, nil
	}

	trip, err := t.w.DRT.Plan(ctx, drtplanner.Query{
		Person:          t.ID,
		Origin:          tp.from.Coord,
		Destination:     tp.to.Coord,
		Travel:          tp.travel,
		Attrs:           t.Attrs,
		Time:            tp.anchor,
		ArriveBy:        tp.arriveBy,
		Now:             now,
		TripTW:          tp.tw,
		MaxTripDuration: tp.maxDuration,
		Direct:          tp.direct,
	})
	var rej *drtplanner.Rejection
	if errors.As(err, &rej) {
		t.w.Metrics.Inc(rej.Reason.Counter())
		t.event("rejection").
			Str("reason", string(rej.Reason)).
			Str("detail", rej.Detail).
			Msg("")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("drt: %w", err)
	}
	return trip, nil
}
