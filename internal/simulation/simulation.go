// Package simulation composes the event loop, the DRT fleet, the planners
// and the travelers into one run.
package simulation

import (
	"context"
	"drt-simulator/internal/config"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/platform/obs"
	"drt-simulator/internal/ports"
	"drt-simulator/internal/services/behaviour"
	"drt-simulator/internal/services/choice"
	"drt-simulator/internal/services/drtplanner"
	"drt-simulator/internal/services/fleet"
	"drt-simulator/internal/sim"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Services are the external adapters a run talks to.
type Services struct {
	Router ports.Router
	Matrix ports.MatrixProvider
	Cache  ports.TDMCache
	Solver ports.Solver
}

// Simulation is the central context every component is reached through.
type Simulation struct {
	Env       *sim.Env
	Fleet     *fleet.Dispatcher
	Planner   *drtplanner.Planner
	Chooser   *choice.Chooser
	Counters  *Counters
	Travelers []*behaviour.Traveler

	cfg *config.Config
}

// PopulationSource builds the population repository around the run's generator.
type PopulationSource func(rng *rand.Rand) ports.PopulationRepository

// Result is what a finished run leaves behind for reporting.
type Result struct {
	Start    float64
	Horizon  float64
	Counters map[string]int
	Trips    []behaviour.TripRecord
	Vehicles []*fleet.Vehicle
	Bookings []*fleet.Booking
	// Exits counts how each traveler's day ended.
	Exits map[behaviour.Transition]int
}

func plannerConfig(cfg *config.Config, stops []string) drtplanner.Config {
	return drtplanner.Config{
		Horizon:           cfg.Horizon(),
		MinDistance:       cfg.MinDistance,
		MaxPreTransitTime: cfg.MaxPreTransitTime,
		MinPreTransitTime: cfg.MinPreTransitTime,
		PreTransitStep:    cfg.PreTransitStep,
		MaxCandidates:     cfg.MaxCandidates,
		Windows: map[domain.TravelType]drtplanner.Window{
			domain.TravelWithin: {Constant: cfg.DRTWindowConstantWithin, Multiplier: cfg.DRTWindowMultiplierWithin},
			domain.TravelIn:     {Constant: cfg.DRTWindowConstantIn, Multiplier: cfg.DRTWindowMultiplierIn},
			domain.TravelOut:    {Constant: cfg.DRTWindowConstantOut, Multiplier: cfg.DRTWindowMultiplierOut},
		},
		Stops: stops,
	}
}

// New loads the population and the zone stops and builds the run. All
// randomness, population sampling included, comes from the clock's generator.
func New(
	ctx context.Context,
	cfg *config.Config,
	svc Services,
	population PopulationSource,
	stops ports.StopRepository,
	events zerolog.Logger,
) (*Simulation, error) {
	env := sim.NewEnv(cfg.SimStart, cfg.Seed)

	persons, err := population(env.Rand()).ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	var stopIDs []string
	if stops != nil {
		if stopIDs, err = stops.ListStops(ctx); err != nil {
			return nil, fmt.Errorf("simulation: %w", err)
		}
	}

	s := &Simulation{Env: env, Counters: NewCounters(), cfg: cfg}

	s.Fleet = fleet.NewDispatcher(env, svc.Router, svc.Matrix, svc.Cache, svc.Solver, cfg.Horizon())
	s.Fleet.SetMetrics(s.Counters)
	for i := range cfg.NumberVehicles {
		vt := cfg.VehicleTypes[i%len(cfg.VehicleTypes)].Domain()
		if _, err := s.Fleet.AddVehicle(fmt.Sprintf("v%d", i), vt, cfg.Depot); err != nil {
			return nil, fmt.Errorf("simulation: %w", err)
		}
	}

	s.Planner = drtplanner.New(svc.Router, s.Fleet, plannerConfig(cfg, stopIDs), env.Rand())
	s.Chooser = choice.New(choice.Config{VOT: cfg.ModeVOT(), DRTPenalty: cfg.DRTPenalty}, env.Rand())

	world := &behaviour.World{
		Env:      env,
		Router:   svc.Router,
		DRT:      s.Planner,
		Chooser:  s.Chooser,
		Fleet:    s.Fleet,
		Metrics:  s.Counters,
		Events:   events,
		PlanLock: env.NewLock(),
		Config: behaviour.Config{
			Horizon:              cfg.Horizon(),
			DRTZones:             cfg.DRTZones,
			TripWindowConstant:   cfg.TripWindowConstant,
			TripWindowMultiplier: cfg.TripWindowMultiplier,
			PlanningInAdvance:    cfg.PlanningInAdvance,
		},
	}
	attrs := cfg.Attributes()
	for _, p := range persons {
		s.Travelers = append(s.Travelers, behaviour.NewTraveler(p.ID, attrs, p.Activities, world))
	}

	log.Info().
		Int("persons", len(persons)).
		Int("vehicles", cfg.NumberVehicles).
		Int("stops", len(stopIDs)).
		Float64("start", cfg.SimStart).
		Float64("horizon", cfg.Horizon()).
		Msg("simulation ready")
	return s, nil
}

// Run drives the event loop to the horizon. The first process error stops
// the run and is returned together with the partial result.
func (s *Simulation) Run(ctx context.Context) (_ *Result, err error) {
	defer obs.Time(ctx, "simulation.Run")(&err)
	defer s.Env.Close()

	s.Fleet.Start(ctx)
	for _, t := range s.Travelers {
		t.Start(ctx)
	}

	err = s.Env.Run(s.cfg.Horizon())
	res := s.result()
	if err != nil {
		log.Error().Err(err).Float64("sim_time", s.Env.Now()).Msg("simulation aborted")
		return res, fmt.Errorf("simulation: %w", err)
	}

	log.Info().
		Float64("sim_time", s.Env.Now()).
		Int("delivered", s.Counters.Get("delivered_travelers")).
		Int("trips", len(res.Trips)).
		Msg("simulation finished")
	return res, nil
}

func (s *Simulation) result() *Result {
	res := &Result{
		Start:    s.cfg.SimStart,
		Horizon:  s.cfg.Horizon(),
		Counters: s.Counters.Snapshot(),
		Vehicles: s.Fleet.Vehicles(),
		Bookings: s.Fleet.Bookings(),
		Exits:    make(map[behaviour.Transition]int),
	}
	for _, t := range s.Travelers {
		res.Trips = append(res.Trips, t.Trips...)
		if t.State() == behaviour.StateFinal {
			res.Exits[t.Exit()]++
		}
	}
	slices.SortStableFunc(res.Trips, func(a, b behaviour.TripRecord) int { return a.Person - b.Person })
	return res
}
