// Package behaviour drives travelers through their day: activate, plan,
// choose, execute and reactivate until the last activity.
package behaviour

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"drt-simulator/internal/services/choice"
	"drt-simulator/internal/services/drtplanner"
	"drt-simulator/internal/services/fleet"
	"drt-simulator/internal/sim"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var ErrMissingActivities = errors.New("plan has fewer than two activities")

type DRTPlanner interface {
	Plan(ctx context.Context, q drtplanner.Query) (*domain.Trip, error)
}

type Fleet interface {
	Commit(person int) (*fleet.Booking, error)
	Discard(person int)
}

type Metrics interface {
	Inc(key string)
}

type Config struct {
	Horizon              float64
	DRTZones             []int
	TripWindowConstant   float64
	TripWindowMultiplier float64
	PlanningInAdvance    float64
}

// World is everything a traveler interacts with.
type World struct {
	Env      *sim.Env
	Router   ports.Router
	DRT      DRTPlanner
	Chooser  *choice.Chooser
	Fleet    Fleet
	Metrics  Metrics
	Events   zerolog.Logger
	PlanLock *sim.Lock
	Config   Config
}

// TripRecord is one executed trip with its planned and direct references.
type TripRecord struct {
	Person  int          `json:"person"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	Direct  *domain.Trip `json:"direct"`
	Planned *domain.Trip `json:"planned"`
	Actual  *domain.Trip `json:"executed"`
}

type Traveler struct {
	ID    int
	Attrs domain.Attributes
	Trips []TripRecord

	activities []domain.Activity
	fsm        machine
	w          *World
}

func NewTraveler(id int, attrs domain.Attributes, activities []domain.Activity, w *World) *Traveler {
	return &Traveler{
		ID:         id,
		Attrs:      attrs,
		activities: activities,
		fsm:        machine{state: StateInitial},
		w:          w,
	}
}

func (t *Traveler) State() State { return t.fsm.state }

// Exit is the transition that ended the day.
func (t *Traveler) Exit() Transition { return t.fsm.exit }

// Start registers the traveler process.
func (t *Traveler) Start(ctx context.Context) *sim.Process {
	return t.w.Env.Process(fmt.Sprintf("person-%d", t.ID), func(p *sim.Process) error {
		return t.run(ctx, p)
	})
}

func (t *Traveler) event(name string) *zerolog.Event {
	return t.w.Events.Info().
		Str("event", name).
		Int("person", t.ID).
		Float64("sim_time", t.w.Env.Now())
}

// exit leaves the day through an exceptional transition.
func (t *Traveler) exit(tr Transition, cause error) error {
	if err := t.fsm.fire(tr); err != nil {
		return fmt.Errorf("person %d: %w", t.ID, err)
	}
	t.w.Metrics.Inc(tr.Counter())
	ev := t.event(string(tr))
	if cause != nil {
		ev = ev.Str("cause", cause.Error())
	}
	ev.Msg("")
	return nil
}

// tripPlan is the OD and timing of the trip to the next activity.
type tripPlan struct {
	from, to    domain.Activity
	travel      domain.TravelType
	direct      *domain.Trip
	arriveBy    bool
	anchor      float64
	maxDuration float64
	tw          domain.TimeWindow
	wake        float64
}

func routingMiss(err error) bool {
	return errors.Is(err, ports.ErrNoPath) || errors.Is(err, ports.ErrUnreachable)
}

// prepare computes the direct reference trip and the trip window.
func (t *Traveler) prepare(ctx context.Context) (*tripPlan, error) {
	cfg := t.w.Config
	now := t.w.Env.Now()
	tp := &tripPlan{from: t.activities[0], to: t.activities[1]}
	tp.travel = domain.ClassifyTravel(tp.from.ZoneID, tp.to.ZoneID, cfg.DRTZones)

	direct, err := t.w.Router.PlanRoad(ctx, tp.from.Coord, tp.to.Coord, now)
	switch {
	case errors.Is(err, ports.ErrTrivialPath):
		direct = domain.NewTrivialTrip(tp.from.Coord, now, domain.ModeCar)
	case err != nil:
		return nil, err
	}
	tp.direct = direct
	tp.maxDuration = direct.Duration*(1+cfg.TripWindowMultiplier) + cfg.TripWindowConstant

	switch {
	case tp.to.StartTime != nil:
		tp.arriveBy, tp.anchor = true, *tp.to.StartTime
	case tp.from.EndTime != nil:
		tp.anchor = *tp.from.EndTime
	default:
		tp.anchor = now
	}

	if tp.arriveBy {
		tp.tw = domain.TimeWindow{Left: tp.anchor - tp.maxDuration, Right: min(tp.anchor, cfg.Horizon)}
		tp.wake = tp.tw.Left - cfg.PlanningInAdvance
	} else {
		tp.tw = domain.TimeWindow{Left: tp.anchor, Right: min(tp.anchor+tp.maxDuration, cfg.Horizon)}
		tp.wake = tp.anchor - cfg.PlanningInAdvance
	}
	return tp, nil
}

func (t *Traveler) run(ctx context.Context, p *sim.Process) error {
	if len(t.activities) < 2 {
		return fmt.Errorf("person %d: %w", t.ID, ErrMissingActivities)
	}

	for first := true; ; first = false {
		tp, err := t.prepare(ctx)
		if err != nil {
			if !routingMiss(err) {
				return fmt.Errorf("person %d: direct trip: %w", t.ID, err)
			}
			if first {
				return t.exit(Unactivatable, err)
			}
			return t.exit(Unreactivatable, err)
		}
		tr := Reactivate
		if first {
			tr = Activate
		}
		if err := t.fsm.fire(tr); err != nil {
			return fmt.Errorf("person %d: %w", t.ID, err)
		}
		t.event(string(tr)).
			Str("travel", string(tp.travel)).
			Bool("arrive_by", tp.arriveBy).
			Float64("anchor", tp.anchor).
			Float64("direct_s", tp.direct.Duration).
			Msg("")

		p.Sleep(max(0, tp.wake-t.w.Env.Now()))

		chosen, booking, done, err := t.planAndChoose(ctx, p, tp)
		if err != nil || done {
			return err
		}

		if err := t.fsm.fire(ExecuteTrip); err != nil {
			return fmt.Errorf("person %d: %w", t.ID, err)
		}
		actual, err := t.execute(p, chosen, booking)
		if err != nil {
			return fmt.Errorf("person %d: %w", t.ID, err)
		}
		t.record(tp, chosen, actual)

		t.activities = t.activities[1:]
		if len(t.activities) < 2 {
			if err := t.fsm.fire(Finalize); err != nil {
				return fmt.Errorf("person %d: %w", t.ID, err)
			}
			t.event(string(Finalize)).Msg("")
			return nil
		}
	}
}

// planAndChoose holds the planning lock from the first planner query until
// the chosen DRT solution is committed. done reports an exceptional exit.
func (t *Traveler) planAndChoose(ctx context.Context, p *sim.Process, tp *tripPlan) (chosen *domain.Trip, b *fleet.Booking, done bool, err error) {
	if err := t.fsm.fire(Plan); err != nil {
		return nil, nil, true, fmt.Errorf("person %d: %w", t.ID, err)
	}
	p.Wait(t.w.PlanLock.Acquire())
	defer t.w.PlanLock.Release()

	alts, drt, err := t.alternatives(ctx, tp)
	if err != nil {
		return nil, nil, true, fmt.Errorf("person %d: plan: %w", t.ID, err)
	}
	t.event(string(Plan)).Int("alternatives", len(alts)).Bool("drt", drt != nil).Msg("")
	if len(alts) == 0 {
		return nil, nil, true, t.exit(Unplannable, nil)
	}

	if err := t.fsm.fire(Choose); err != nil {
		return nil, nil, true, fmt.Errorf("person %d: %w", t.ID, err)
	}
	chosen, ok := t.w.Chooser.Choose(t.Attrs, alts)
	if !ok {
		if drt != nil {
			t.w.Fleet.Discard(t.ID)
		}
		return nil, nil, true, t.exit(Unchoosable, nil)
	}
	t.event(string(Choose)).
		Str("mode", string(chosen.MainMode)).
		Float64("start", chosen.StartTime()).
		Float64("end", chosen.EndTime()).
		Msg("")

	if drt == nil {
		return chosen, nil, false, nil
	}
	if chosen != drt {
		t.w.Fleet.Discard(t.ID)
		return chosen, nil, false, nil
	}
	b, err = t.w.Fleet.Commit(t.ID)
	if err != nil {
		return nil, nil, true, fmt.Errorf("person %d: %w", t.ID, err)
	}
	return chosen, b, false, nil
}

func (t *Traveler) record(tp *tripPlan, planned, actual *domain.Trip) {
	t.Trips = append(t.Trips, TripRecord{
		Person:  t.ID,
		From:    tp.from.Type,
		To:      tp.to.Type,
		Direct:  tp.direct,
		Planned: planned,
		Actual:  actual,
	})
	t.w.Metrics.Inc(string(actual.MainMode) + "_trips")
	for _, l := range actual.Legs {
		t.w.Metrics.Inc(string(l.Mode) + "_legs")
	}
	t.event("delivered").
		Str("mode", string(actual.MainMode)).
		Float64("duration_s", actual.Duration).
		Float64("distance_m", actual.Distance).
		Msg("")
}
