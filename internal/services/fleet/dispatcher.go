package fleet

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/platform/obs"
	"drt-simulator/internal/ports"
	"drt-simulator/internal/sim"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Allowed deviation from a booked time window before it is reported.
const twSlack = 1.0

type pendingSolution struct {
	vehicle string
	route   domain.Route
	request Request
	pickup  float64
	dropoff float64
}

// Dispatcher owns the fleet: it inserts requests through the VRP solver and
// hands committed routes to the vehicle processes.
type Dispatcher struct {
	env     *sim.Env
	router  ports.RoadRouter
	matrix  ports.MatrixProvider
	cache   ports.TDMCache
	solver  ports.Solver
	horizon float64
	metrics Metrics

	vehicles []*Vehicle
	byID     map[string]*Vehicle
	bookings map[int]*Booking
	pending  map[int]*pendingSolution

	log zerolog.Logger
}

func NewDispatcher(
	env *sim.Env,
	router ports.RoadRouter,
	matrix ports.MatrixProvider,
	cache ports.TDMCache,
	solver ports.Solver,
	horizon float64,
) *Dispatcher {
	return &Dispatcher{
		env:      env,
		router:   router,
		matrix:   matrix,
		cache:    cache,
		solver:   solver,
		horizon:  horizon,
		metrics:  nopMetrics{},
		byID:     make(map[string]*Vehicle),
		bookings: make(map[int]*Booking),
		pending:  make(map[int]*pendingSolution),
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) SetMetrics(m Metrics) { d.metrics = m }

// AddVehicle registers an idle vehicle parked at home.
func (d *Dispatcher) AddVehicle(id string, vt domain.VehicleType, home domain.Coord) (*Vehicle, error) {
	if _, ok := d.byID[id]; ok {
		return nil, fmt.Errorf("add vehicle: duplicate id %q", id)
	}
	v := &Vehicle{
		ID:       id,
		Type:     vt,
		Home:     home,
		coord:    home,
		rerouted: d.env.NewEvent(),
		d:        d,
		log:      d.log.With().Str("vehicle", id).Logger(),
	}
	d.vehicles = append(d.vehicles, v)
	d.byID[id] = v
	return v, nil
}

// Start launches one simulation process per vehicle.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, v := range d.vehicles {
		d.env.Process("vehicle-"+v.ID, func(p *sim.Process) error {
			return v.run(ctx, p)
		})
	}
}

func (d *Dispatcher) Vehicles() []*Vehicle { return d.vehicles }

func (d *Dispatcher) Vehicle(id string) (*Vehicle, bool) {
	v, ok := d.byID[id]
	return v, ok
}

func (d *Dispatcher) Booking(person int) (*Booking, bool) {
	b, ok := d.bookings[person]
	return b, ok
}

// Bookings returns every committed booking ordered by person.
func (d *Dispatcher) Bookings() []*Booking {
	out := make([]*Booking, 0, len(d.bookings))
	for _, b := range d.bookings {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b *Booking) int { return a.Request.Person - b.Request.Person })
	return out
}

// Dispatch solves the fleet schedule with req inserted. On success the
// solution is held until Commit or Discard and the planned DRT trip is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (_ *domain.Trip, err error) {
	defer obs.Time(ctx, "fleet.Dispatch")(&err)

	if b, ok := d.bookings[req.Person]; ok && b.Status != BookingDelivered {
		return nil, fmt.Errorf("dispatch: person %d already holds booking in status %s", req.Person, b.Status)
	}
	if len(d.vehicles) == 0 {
		return nil, fmt.Errorf("dispatch person %d: %w", req.Person, ErrUndeliverable)
	}

	pb, err := d.buildProblem(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	sol, err := d.solver.Solve(ctx, pb.problem)
	if err != nil {
		return nil, fmt.Errorf("dispatch: solve: %w", err)
	}
	if err := d.cache.Commit(ctx); err != nil {
		return nil, fmt.Errorf("dispatch: commit tdm cache: %w", err)
	}

	if sol.IsUnassigned(req.Person) {
		return nil, fmt.Errorf("dispatch person %d: %w", req.Person, ErrUndeliverable)
	}
	sr, ok := sol.RouteOf(req.Person)
	if !ok {
		return nil, fmt.Errorf("dispatch person %d: not in any route: %w", req.Person, ErrUndeliverable)
	}
	v, ok := d.byID[sr.VehicleID]
	if !ok {
		return nil, fmt.Errorf("dispatch: %w: %q", ErrUnknownVehicle, sr.VehicleID)
	}
	if err := pb.checkKeeps(sr, req.Person); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	route, err := translate(sr, pb.positions[v.ID], v.Home, pb.requests)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	pickup, dropoff, ok := serviceTimes(route, req.Person)
	if !ok {
		return nil, fmt.Errorf("dispatch: %w: person %d lacks a service act", ErrInconsistentSolution, req.Person)
	}

	d.pending[req.Person] = &pendingSolution{
		vehicle: v.ID,
		route:   route,
		request: req,
		pickup:  pickup,
		dropoff: dropoff,
	}

	d.log.Debug().
		Float64("sim_time", d.env.Now()).
		Int("person", req.Person).
		Str("vehicle", v.ID).
		Float64("pickup", pickup).
		Float64("dropoff", dropoff).
		Msg("request inserted")

	return plannedTrip(req, pickup, dropoff), nil
}

// plannedTrip is the traveler-facing view of a pending insertion. Its single
// step stands in for geometry that is only known once the ride happens.
func plannedTrip(req Request, pickup, dropoff float64) *domain.Trip {
	leg := domain.Leg{
		Mode:      domain.ModeDRT,
		Start:     req.Pickup,
		End:       req.Delivery,
		StartTime: pickup,
		EndTime:   dropoff,
		Duration:  dropoff - pickup,
		Steps:     []domain.Step{{Start: req.Pickup, End: req.Delivery, Duration: dropoff - pickup}},
	}
	trip := &domain.Trip{MainMode: domain.ModeDRT}
	trip.AppendLeg(leg)
	return trip
}

// Commit makes the pending solution for person the vehicle's new route.
func (d *Dispatcher) Commit(person int) (*Booking, error) {
	ps, ok := d.pending[person]
	if !ok {
		return nil, fmt.Errorf("commit person %d: %w", person, ErrNoPendingSolution)
	}
	delete(d.pending, person)

	v, ok := d.byID[ps.vehicle]
	if !ok {
		return nil, fmt.Errorf("commit person %d: %w: %q", person, ErrUnknownVehicle, ps.vehicle)
	}

	b := &Booking{
		Request:        ps.request,
		Vehicle:        v.ID,
		Status:         BookingPlanned,
		PlannedPickup:  ps.pickup,
		PlannedDropoff: ps.dropoff,
		Executed:       d.env.NewEvent(),
	}
	d.bookings[person] = b

	// Other travelers on this vehicle may have shifted.
	for _, a := range ps.route {
		ob, ok := d.bookings[a.Person]
		if !ok || ob == b {
			continue
		}
		switch a.Type {
		case domain.ActPickUp:
			ob.PlannedPickup = a.StartTime
		case domain.ActDropOff, domain.ActDelivery:
			ob.PlannedDropoff = a.EndTime
		}
	}

	v.route = ps.route
	v.reroute()

	d.log.Info().
		Float64("sim_time", d.env.Now()).
		Int("person", person).
		Str("vehicle", v.ID).
		Int("acts", len(ps.route)).
		Msg("booking committed")
	return b, nil
}

// Discard drops the pending solution for person, if any.
func (d *Dispatcher) Discard(person int) {
	delete(d.pending, person)
}

// audit reports a service outside its booked window.
func (d *Dispatcher) audit(b *Booking, what string, t float64, tw domain.TimeWindow) {
	if t >= tw.Left-twSlack && t <= tw.Right+twSlack {
		return
	}
	d.metrics.Inc("tw_violations")
	d.log.Error().
		Float64("sim_time", d.env.Now()).
		Int("person", b.Request.Person).
		Str("vehicle", b.Vehicle).
		Str("service", what).
		Float64("at", t).
		Float64("tw_left", tw.Left).
		Float64("tw_right", tw.Right).
		Msg("time window violated")
}

// materialize fills the road geometry of a move act. Steps already on the act
// are kept; the rest is routed and stretched to the act's scheduled duration.
func (d *Dispatcher) materialize(ctx context.Context, act *domain.DrtAct) error {
	from, start := act.StartCoord, act.StartTime
	for _, s := range act.Steps {
		from = s.End
		start += s.Duration
	}

	var steps []domain.Step
	trip, err := d.router.Route(ctx, from, act.EndCoord)
	switch {
	case errors.Is(err, ports.ErrTrivialPath):
	case err != nil:
		return fmt.Errorf("materialize %s %v->%v: %w", act.Type, from, act.EndCoord, err)
	default:
		for _, l := range trip.Legs {
			steps = append(steps, l.Steps...)
		}
	}

	act.Steps = append(act.Steps, fitSteps(steps, from, act.EndCoord, max(0, act.EndTime-start))...)
	act.Distance = 0
	for _, s := range act.Steps {
		act.Distance += s.Distance
	}
	return nil
}

// fitSteps scales step durations to sum to duration and pins the ends to from and to.
func fitSteps(steps []domain.Step, from, to domain.Coord, duration float64) []domain.Step {
	if len(steps) == 0 {
		if from == to && duration <= 0 {
			return nil
		}
		return []domain.Step{{Start: from, End: to, Distance: from.DistanceTo(to), Duration: duration}}
	}

	out := slices.Clone(steps)
	var total float64
	for _, s := range out {
		total += s.Duration
	}
	var assigned float64
	for i := range out {
		switch {
		case i == len(out)-1:
			out[i].Duration = max(0, duration-assigned)
		case total > 0:
			out[i].Duration = out[i].Duration * duration / total
		default:
			out[i].Duration = 0
		}
		assigned += out[i].Duration
	}
	out[0].Start = from
	out[len(out)-1].End = to
	return out
}
