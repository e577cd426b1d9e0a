package fleet

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/sim"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
)

// Tolerance for comparing accumulated simulation times.
const timeEps = 1e-6

// Vehicle executes its committed route in simulation time.
// route[0] is the act in progress; Dispatcher replaces the route wholesale
// and triggers rerouted.
type Vehicle struct {
	ID   string
	Type domain.VehicleType
	// Home is the return depot.
	Home domain.Coord

	coord      domain.Coord
	route      domain.Route
	current    *domain.DrtAct
	passengers []*Booking
	load       domain.Dimensions
	rerouted   *sim.Event

	Kilometers float64
	// Seconds spent on move acts.
	RideTime float64
	Samples  []domain.OccupancySample
	// Track is every step the vehicle drove, in order.
	Track []domain.Step

	d   *Dispatcher
	log zerolog.Logger
}

func (v *Vehicle) Coord() domain.Coord { return v.coord }

func (v *Vehicle) Route() domain.Route { return v.route }

func (v *Vehicle) Load() domain.Dimensions { return v.load }

func (v *Vehicle) Passengers() []*Booking { return v.passengers }

func (v *Vehicle) status() domain.VehicleStatus { return domain.StatusOf(v.route[0].Type) }

// reroute wakes the vehicle; repeated calls before it wakes collapse into one.
func (v *Vehicle) reroute() {
	v.rerouted.Trigger(nil, sim.Urgent)
}

func (v *Vehicle) sample(now float64, status domain.VehicleStatus) {
	v.Samples = append(v.Samples, domain.OccupancySample{
		Time:        now,
		Status:      status,
		Passengers:  len(v.passengers),
		Seats:       v.load.Seats,
		Wheelchairs: v.load.Wheelchairs,
		Kilometers:  v.Kilometers,
	})
}

// run is the vehicle process body.
func (v *Vehicle) run(ctx context.Context, p *sim.Process) error {
	env := p.Env()
	for {
		if len(v.route) == 0 {
			v.current = nil
			v.sample(env.Now(), domain.StatusIdle)
			p.Wait(v.rerouted)
			v.afterReroute(env.Now())
			continue
		}

		act := v.route[0]
		if act.Type.IsMove() && !act.Materialized() {
			if err := v.d.materialize(ctx, act); err != nil {
				return fmt.Errorf("vehicle %s: %w", v.ID, err)
			}
		}
		if v.current != act {
			v.current = act
			v.sample(env.Now(), v.status())
			v.log.Debug().
				Float64("sim_time", env.Now()).
				Str("act", string(act.Type)).
				Int("person", act.Person).
				Float64("until", act.EndTime).
				Msg("act started")
		}

		timer := env.Timeout(act.EndTime - env.Now())
		won := p.Wait(env.AnyOf(timer, v.rerouted)).(*sim.Event)
		if won != timer {
			v.afterReroute(env.Now())
			continue
		}
		if len(v.route) == 0 || v.route[0] != act {
			continue
		}

		v.route = v.route[1:]
		if err := v.complete(act); err != nil {
			return fmt.Errorf("vehicle %s: %w", v.ID, err)
		}
	}
}

// afterReroute settles the interrupted act and re-arms the rerouted latch.
func (v *Vehicle) afterReroute(now float64) {
	v.rerouted = v.d.env.NewEvent()
	if v.current == nil {
		return
	}
	if len(v.route) > 0 && v.route[0] == v.current {
		// Service act carried into the new route.
		return
	}

	act := v.current
	switch {
	case act.Type.IsMove():
		t := act.StartTime
		for _, s := range act.Steps {
			t += s.Duration
			if t > now+timeEps {
				break
			}
			v.attribute(s, true)
		}
	case !act.Type.IsService() && now > act.StartTime:
		v.attribute(domain.Step{Start: act.StartCoord, End: act.StartCoord, Duration: now - act.StartTime}, false)
	}
	v.current = nil
	if len(v.route) > 0 {
		v.coord = v.route[0].StartCoord
	}
}

// attribute credits a step to the vehicle and to every traveler on board.
func (v *Vehicle) attribute(s domain.Step, moving bool) {
	v.Kilometers += s.Distance / 1000
	if moving {
		v.RideTime += s.Duration
		if s.Distance > 0 {
			v.Track = append(v.Track, s)
		}
	}
	for _, b := range v.passengers {
		b.Leg.AppendStep(s)
	}
	v.coord = s.End
}

func (v *Vehicle) attributeAct(act *domain.DrtAct) {
	if act.Type.IsMove() {
		for _, s := range act.Steps {
			v.attribute(s, true)
		}
		v.coord = act.EndCoord
		return
	}
	v.attribute(domain.Step{Start: act.StartCoord, End: act.EndCoord, Duration: act.Duration}, false)
}

// complete applies the effects of an act whose timer expired.
func (v *Vehicle) complete(act *domain.DrtAct) error {
	switch act.Type {
	case domain.ActDrive, domain.ActReturn:
		if !act.Materialized() {
			return fmt.Errorf("%w: %s to %v", ErrUnmaterialized, act.Type, act.EndCoord)
		}
		v.attributeAct(act)

	case domain.ActWait, domain.ActIdle:
		v.attributeAct(act)

	case domain.ActPickUp:
		if err := v.board(act); err != nil {
			return err
		}
		v.attributeAct(act)

	case domain.ActDropOff, domain.ActDelivery:
		v.attributeAct(act)
		if err := v.alight(act); err != nil {
			return err
		}
	}

	if len(v.route) == 0 {
		v.log.Debug().Float64("sim_time", act.EndTime).Msg("route finished")
	}
	return nil
}

func (v *Vehicle) board(act *domain.DrtAct) error {
	b, ok := v.d.bookings[act.Person]
	if !ok || b.Vehicle != v.ID || b.Status != BookingPlanned {
		return fmt.Errorf("%w: pick up of person %d", ErrUnknownBooking, act.Person)
	}

	load := v.load.Add(b.Request.Dims)
	if !v.Type.Capacity.Fits(load) {
		return fmt.Errorf("%w: person %d needs %+v, vehicle carries %+v of %+v",
			ErrCapacityOverflow, act.Person, b.Request.Dims, v.load, v.Type.Capacity)
	}
	v.load = load
	v.passengers = append(v.passengers, b)

	b.Status = BookingOnBoard
	b.PickupTime = act.StartTime
	b.Leg = domain.Leg{Mode: domain.ModeDRT, Start: act.StartCoord, End: act.StartCoord, StartTime: act.StartTime, EndTime: act.StartTime}

	for _, a := range v.route {
		if a.Person == act.Person && a.Type == domain.ActDropOff {
			a.Type = domain.ActDelivery
		}
	}

	v.d.audit(b, "pickup", act.StartTime, b.Request.PickupTW)
	v.log.Info().Float64("sim_time", act.StartTime).Int("person", act.Person).Msg("picked up")
	return nil
}

func (v *Vehicle) alight(act *domain.DrtAct) error {
	i := slices.IndexFunc(v.passengers, func(b *Booking) bool { return b.Request.Person == act.Person })
	if i < 0 {
		return fmt.Errorf("%w: drop off of person %d not on board", ErrUnknownBooking, act.Person)
	}
	b := v.passengers[i]

	load := v.load.Sub(b.Request.Dims)
	if load.Negative() {
		return fmt.Errorf("%w: vehicle %s unloading person %d", ErrCapacityUnderflow, v.ID, act.Person)
	}
	v.load = load
	v.passengers = slices.Delete(v.passengers, i, i+1)

	b.Status = BookingDelivered
	b.DropoffTime = act.EndTime
	b.Leg.End = act.EndCoord

	v.d.audit(b, "dropoff", act.StartTime, b.Request.DeliveryTW)
	v.d.metrics.Inc("delivered_travelers")
	v.log.Info().Float64("sim_time", act.EndTime).Int("person", act.Person).Msg("dropped off")

	b.Executed.Succeed(b.Leg)
	return nil
}
