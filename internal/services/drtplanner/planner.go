// Package drtplanner builds DRT and DRT_TRANSIT alternatives for a traveler
// and inserts them into the fleet schedule.
package drtplanner

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"drt-simulator/internal/services/fleet"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Dispatcher is the part of the fleet the planner needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req fleet.Request) (*domain.Trip, error)
}

// Window is the additive and proportional part of a DRT time window.
type Window struct {
	Constant   float64
	Multiplier float64
}

type Config struct {
	// Horizon is the last simulation second of the day.
	Horizon           float64
	MinDistance       float64
	MaxPreTransitTime float64
	MinPreTransitTime float64
	PreTransitStep    float64
	MaxCandidates     int
	Windows           map[domain.TravelType]Window
	// Stops are the PT stop ids inside the DRT zone.
	Stops []string
}

// Query describes one trip the traveler wants DRT alternatives for.
type Query struct {
	Person      int
	Origin      domain.Coord
	Destination domain.Coord
	Travel      domain.TravelType
	Attrs       domain.Attributes
	// Time is the departure (depart-at) or arrival (arrive-by) anchor.
	Time     float64
	ArriveBy bool
	Now      float64
	// TripTW bounds the whole door-to-door trip.
	TripTW          domain.TimeWindow
	MaxTripDuration float64
	// Direct is the reference car trip for the same OD.
	Direct *domain.Trip
}

type Planner struct {
	transit    ports.TransitPlanner
	dispatcher Dispatcher
	cfg        Config
	stops      map[string]bool
	rng        *rand.Rand
	log        zerolog.Logger
}

func New(transit ports.TransitPlanner, d Dispatcher, cfg Config, rng *rand.Rand) *Planner {
	stops := make(map[string]bool, len(cfg.Stops))
	for _, s := range cfg.Stops {
		stops[s] = true
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	return &Planner{
		transit:    transit,
		dispatcher: d,
		cfg:        cfg,
		stops:      stops,
		rng:        rng,
		log:        log.With().Str("component", "drtplanner").Logger(),
	}
}

// Plan returns an inserted DRT or DRT_TRANSIT trip. A *Rejection error is
// recoverable; any other error is fatal to the simulation.
func (p *Planner) Plan(ctx context.Context, q Query) (*domain.Trip, error) {
	switch q.Travel {
	case domain.TravelWithin:
		return p.planWithin(ctx, q)
	case domain.TravelIn, domain.TravelOut:
		return p.planCross(ctx, q)
	}
	return nil, fmt.Errorf("plan drt: person %d: travel type %s is not served", q.Person, q.Travel)
}

func (p *Planner) maxIVT(a domain.Attributes, direct float64) float64 {
	return direct*a.MaxIVTMultiplier + a.MaxIVTConstant + a.BoardingTime + a.LeavingTime
}

func (p *Planner) planWithin(ctx context.Context, q Query) (*domain.Trip, error) {
	if q.Direct == nil {
		return nil, fmt.Errorf("plan drt: person %d: no direct trip", q.Person)
	}
	if d := q.Origin.DistanceTo(q.Destination); d < p.cfg.MinDistance {
		return nil, reject(ReasonTooShort, "%.0f m", d)
	}

	direct := q.Direct.Duration
	w := p.cfg.Windows[domain.TravelWithin]
	h := w.Constant/2 + w.Multiplier*direct/2
	maxIVT := p.maxIVT(q.Attrs, direct)

	var pick, drop domain.TimeWindow
	if q.ArriveBy {
		drop = domain.TimeWindow{Left: q.Time - 2*h, Right: q.Time}
		pick = domain.TimeWindow{Left: q.Time - direct - h, Right: q.Time - direct + h}
	} else {
		pick = domain.TimeWindow{Left: q.Time - h, Right: q.Time + h}
		drop = domain.TimeWindow{Left: pick.Left, Right: pick.Right + maxIVT}
	}

	req, err := p.request(q, q.Origin, q.Destination, pick, drop, maxIVT)
	if err != nil {
		return nil, err
	}
	return p.dispatch(ctx, req, ReasonUndeliverable)
}

// request clips the windows to the remaining day and builds the fleet request.
func (p *Planner) request(q Query, from, to domain.Coord, pick, drop domain.TimeWindow, maxIVT float64) (fleet.Request, error) {
	if pick.Left > p.cfg.Horizon || drop.Left > p.cfg.Horizon {
		return fleet.Request{}, reject(ReasonOvernight, "pickup opens at %.0f", pick.Left)
	}
	if pick.Right < q.Now {
		return fleet.Request{}, reject(ReasonTooLate, "pickup window closed at %.0f, now %.0f", pick.Right, q.Now)
	}
	pick = pick.Clip(q.Now, p.cfg.Horizon)
	drop = drop.Clip(q.Now, p.cfg.Horizon)
	if pick.Left > pick.Right || drop.Left > drop.Right {
		return fleet.Request{}, reject(ReasonTooLate, "empty window after clipping")
	}

	return fleet.Request{
		Person:           q.Person,
		Pickup:           from,
		Delivery:         to,
		PickupTW:         pick,
		DeliveryTW:       drop,
		BoardingTime:     q.Attrs.BoardingTime,
		LeavingTime:      q.Attrs.LeavingTime,
		Dims:             q.Attrs.Dims,
		MaxInVehicleTime: maxIVT,
	}, nil
}

func (p *Planner) dispatch(ctx context.Context, req fleet.Request, reason Reason) (*domain.Trip, error) {
	trip, err := p.dispatcher.Dispatch(ctx, req)
	if errors.Is(err, fleet.ErrUndeliverable) {
		return nil, reject(reason, "person %d", req.Person)
	}
	if err != nil {
		return nil, err
	}
	return trip, nil
}

// planCross composes a DRT feeder with transit: kiss-and-ride out of the
// zone, ride-and-kiss into it.
func (p *Planner) planCross(ctx context.Context, q Query) (*domain.Trip, error) {
	mode := domain.ModeRideKiss
	if q.Travel == domain.TravelOut {
		mode = domain.ModeKissRide
	}

	budgets, err := p.viableBudgets(ctx, q, mode)
	if err != nil {
		return nil, err
	}
	if len(budgets) == 0 {
		return nil, reject(ReasonNoStop, "no zone stop reachable with %s", mode)
	}

	cands, last, err := p.scan(ctx, q, mode, budgets)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		if last != nil {
			return nil, last
		}
		return nil, reject(ReasonNoStop, "no candidate itinerary")
	}
	cands = p.downselect(cands, q.ArriveBy)

	p.log.Debug().
		Float64("sim_time", q.Now).
		Int("person", q.Person).
		Int("budgets", len(budgets)).
		Int("candidates", len(cands)).
		Msg("drt transit candidates")

	var rej *Rejection
	for _, c := range cands {
		trip, err := p.dispatchFeeder(ctx, q, c)
		if errors.As(err, &rej) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return trip, nil
	}
	if rej != nil {
		return nil, rej
	}
	return nil, reject(ReasonUnassigned, "person %d", q.Person)
}

// dispatchFeeder replaces the car leg of an itinerary with a DRT ride.
func (p *Planner) dispatchFeeder(ctx context.Context, q Query, f feeder) (*domain.Trip, error) {
	out := q.Travel == domain.TravelOut
	car := f.trip.Legs[f.car]

	var (
		from, to   domain.Coord
		transitDur float64
		otherSide  float64
	)
	if out {
		from, to = q.Origin, car.End
		transitDur = f.trip.EndTime() - car.EndTime
		otherSide = car.StartTime - f.trip.StartTime()
	} else {
		from, to = car.Start, q.Destination
		transitDur = car.StartTime - f.trip.StartTime()
		otherSide = f.trip.EndTime() - car.EndTime
	}

	budget := q.MaxTripDuration - (transitDur + otherSide)
	if budget <= car.Duration {
		return nil, reject(ReasonTooLongPT, "budget %.0f s for a %.0f s feeder", budget, car.Duration)
	}
	if d := from.DistanceTo(to); d < p.cfg.MinDistance {
		return nil, reject(ReasonTooShort, "%.0f m to stop %s", d, f.stop)
	}

	maxIVT := p.maxIVT(q.Attrs, car.Duration)

	// The window spans the whole budget and closes on the PT side.
	anchor := f.transfer(out, q.Attrs.LeavingTime)
	var pick, drop domain.TimeWindow
	if out {
		drop = domain.TimeWindow{Left: anchor - budget, Right: anchor}
		pick = domain.TimeWindow{Left: anchor - budget, Right: anchor - car.Duration}
	} else {
		pick = domain.TimeWindow{Left: anchor, Right: anchor + budget - car.Duration}
		drop = domain.TimeWindow{Left: anchor, Right: anchor + budget}
	}

	req, err := p.request(q, from, to, pick, drop, maxIVT)
	if err != nil {
		return nil, err
	}
	planned, err := p.dispatch(ctx, req, ReasonUnassigned)
	if err != nil {
		return nil, err
	}
	return compose(planned.Legs[0], f, out), nil
}

// compose builds the DRT_TRANSIT trip around the planned DRT leg.
func compose(drt domain.Leg, f feeder, out bool) *domain.Trip {
	src := f.trip.DeepCopy()
	trip := &domain.Trip{MainMode: domain.ModeDRTTransit}
	if out {
		drt.ToStop = f.stop
		trip.AppendLeg(drt)
		for _, l := range src.Legs[f.car+1:] {
			trip.AppendLegContiguous(l)
		}
		return trip
	}

	for _, l := range src.Legs[:f.car] {
		trip.AppendLegContiguous(l)
	}
	drt.FromStop = f.stop
	trip.AppendLegContiguous(drt)
	return trip
}
