package behaviour

import (
	"bytes"
	"context"
	"drt-simulator/internal/adapters/routing"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/services/choice"
	"drt-simulator/internal/services/drtplanner"
	"drt-simulator/internal/services/fleet"
	"drt-simulator/internal/sim"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

type counters map[string]int

func (c counters) Inc(key string) { c[key]++ }

type fakePlanner struct {
	trip    *domain.Trip
	rej     *drtplanner.Rejection
	queries []drtplanner.Query
}

func (f *fakePlanner) Plan(_ context.Context, q drtplanner.Query) (*domain.Trip, error) {
	f.queries = append(f.queries, q)
	if f.rej != nil {
		return nil, f.rej
	}
	return f.trip, nil
}

// fakeFleet delivers the scripted ride when it ends.
type fakeFleet struct {
	env       *sim.Env
	ride      domain.Leg
	committed []int
	discarded []int
}

func (f *fakeFleet) Commit(person int) (*fleet.Booking, error) {
	f.committed = append(f.committed, person)
	b := &fleet.Booking{Vehicle: "v0", Status: fleet.BookingPlanned, Executed: f.env.NewEvent()}
	ride := f.ride
	f.env.Process("ride", func(p *sim.Process) error {
		p.Sleep(ride.EndTime - p.Env().Now())
		b.Executed.Succeed(ride)
		return nil
	})
	return b, nil
}

func (f *fakeFleet) Discard(person int) { f.discarded = append(f.discarded, person) }

var (
	home   = domain.Coord{Lat: 52.0, Lon: 21.0}
	office = domain.Coord{Lat: 52.01, Lon: 21.01}
	stopAt = domain.Coord{Lat: 52.02, Lon: 21.02}
	far    = domain.Coord{Lat: 52.3, Lon: 21.5}
)

type fixture struct {
	env     *sim.Env
	router  *routing.MockRouter
	planner *fakePlanner
	fleet   *fakeFleet
	metrics counters
	world   *World
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := sim.NewEnv(0, 42)
	t.Cleanup(env.Close)
	f := &fixture{
		env:     env,
		router:  routing.NewMockRouter(),
		planner: &fakePlanner{},
		fleet:   &fakeFleet{env: env},
		metrics: counters{},
	}
	f.world = &World{
		Env:      env,
		Router:   f.router,
		DRT:      f.planner,
		Chooser:  choice.New(choice.Config{}, env.Rand()),
		Fleet:    f.fleet,
		Metrics:  f.metrics,
		Events:   zerolog.Nop(),
		PlanLock: env.NewLock(),
		Config: Config{
			Horizon:              86400,
			DRTZones:             []int{1},
			TripWindowConstant:   1800,
			TripWindowMultiplier: 1,
			PlanningInAdvance:    600,
		},
	}
	return f
}

func (f *fixture) run(t *testing.T, tr *Traveler) {
	t.Helper()
	tr.Start(context.Background())
	if err := f.env.Run(math.Inf(1)); err != nil {
		t.Fatal(err)
	}
}

func attrs(modes ...domain.Mode) domain.Attributes {
	return domain.Attributes{
		WalkSpeed:      1.2,
		BoardingTime:   30,
		LeavingTime:    30,
		Dims:           domain.Dimensions{Seats: 1},
		DrivingLicense: true,
		Modes:          modes,
	}
}

func day(to domain.Coord, toZone int) []domain.Activity {
	return []domain.Activity{
		{Type: "home", Coord: home, ZoneID: 1, EndTime: domain.Float(28800)},
		{Type: "work", Coord: to, ZoneID: toZone, EndTime: domain.Float(61200)},
	}
}

func TestTravelerWalksAndFinalizes(t *testing.T) {
	f := newFixture(t)
	tr := NewTraveler(1, attrs(domain.ModeWalk), day(office, 1), f.world)
	f.run(t, tr)

	if tr.State() != StateFinal || tr.Exit() != Finalize {
		t.Fatalf("state = %s via %s", tr.State(), tr.Exit())
	}
	if len(tr.Trips) != 1 {
		t.Fatalf("executed %d trips", len(tr.Trips))
	}
	rec := tr.Trips[0]
	if rec.Actual.MainMode != domain.ModeWalk || rec.Actual.StartTime() != 28800 {
		t.Fatalf("executed %s starting %v", rec.Actual.MainMode, rec.Actual.StartTime())
	}
	if rec.Actual == rec.Planned {
		t.Fatal("executed trip shares the planned trip")
	}
	if f.env.Now() != rec.Actual.EndTime() {
		t.Fatalf("clock %v, arrival %v", f.env.Now(), rec.Actual.EndTime())
	}
	if f.metrics["WALK_trips"] != 1 || f.metrics["WALK_legs"] != 1 {
		t.Fatalf("counters = %v", f.metrics)
	}
}

func TestTravelerArriveByPlansInAdvance(t *testing.T) {
	f := newFixture(t)
	f.planner.rej = &drtplanner.Rejection{Reason: drtplanner.ReasonTooShort}
	acts := []domain.Activity{
		{Type: "home", Coord: home, ZoneID: 1, EndTime: domain.Float(20000)},
		{Type: "work", Coord: office, ZoneID: 1, StartTime: domain.Float(36000)},
	}
	tr := NewTraveler(2, attrs(domain.ModeWalk, domain.ModeDRT), acts, f.world)
	f.run(t, tr)

	if len(f.planner.queries) != 1 {
		t.Fatalf("drt queried %d times", len(f.planner.queries))
	}
	q := f.planner.queries[0]
	maxDur := f.router.Measure(home, office).DurationSeconds*2 + 1800
	if want := 36000 - maxDur - 600; q.Now != want {
		t.Fatalf("planned at %v, want %v", q.Now, want)
	}
	if !q.ArriveBy || q.Time != 36000 || q.Travel != domain.TravelWithin {
		t.Fatalf("query = %+v", q)
	}
	if q.TripTW != (domain.TimeWindow{Left: 36000 - maxDur, Right: 36000}) {
		t.Fatalf("trip window = %+v", q.TripTW)
	}
	if f.metrics["too_short_drt_leg"] != 1 {
		t.Fatalf("counters = %v", f.metrics)
	}
	if got := tr.Trips[0].Actual.EndTime(); got != 36000 {
		t.Fatalf("arrived at %v", got)
	}
}

func TestTravelerTripWindowClippedToHorizon(t *testing.T) {
	f := newFixture(t)
	f.world.Config.Horizon = 30000
	maxDur := f.router.Measure(home, office).DurationSeconds*2 + 1800

	arrive := NewTraveler(6, attrs(domain.ModeWalk), []domain.Activity{
		{Type: "home", Coord: home, ZoneID: 1, EndTime: domain.Float(20000)},
		{Type: "work", Coord: office, ZoneID: 1, StartTime: domain.Float(36000)},
	}, f.world)
	tp, err := arrive.prepare(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !tp.arriveBy || tp.anchor != 36000 {
		t.Fatalf("arrive-by = %v anchored at %v", tp.arriveBy, tp.anchor)
	}
	if tp.tw != (domain.TimeWindow{Left: 36000 - maxDur, Right: 30000}) {
		t.Fatalf("arrive-by window = %+v", tp.tw)
	}

	depart := NewTraveler(7, attrs(domain.ModeWalk), []domain.Activity{
		{Type: "home", Coord: home, ZoneID: 1, EndTime: domain.Float(29500)},
		{Type: "work", Coord: office, ZoneID: 1},
	}, f.world)
	if tp, err = depart.prepare(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tp.arriveBy || tp.tw != (domain.TimeWindow{Left: 29500, Right: 30000}) {
		t.Fatalf("depart-at window = %+v", tp.tw)
	}
}

func TestTravelerExceptionalExits(t *testing.T) {
	tests := []struct {
		name    string
		attrs   domain.Attributes
		bounded bool
		exit    Transition
	}{
		{name: "unroutable", attrs: attrs(domain.ModeWalk), bounded: true, exit: Unactivatable},
		{name: "no modes", attrs: attrs(), exit: Unplannable},
		{name: "car without license", attrs: func() domain.Attributes {
			a := attrs(domain.ModeCar)
			a.DrivingLicense = false
			return a
		}(), exit: Unchoosable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.bounded {
				f.router.Bounds = &orb.Bound{Min: orb.Point{20.9, 51.9}, Max: orb.Point{21.1, 52.1}}
			}
			tr := NewTraveler(3, tc.attrs, day(far, 2), f.world)
			f.run(t, tr)

			if tr.State() != StateFinal || tr.Exit() != tc.exit {
				t.Fatalf("state = %s via %s", tr.State(), tr.Exit())
			}
			if f.metrics[tc.exit.Counter()] != 1 {
				t.Fatalf("counters = %v", f.metrics)
			}
			if len(tr.Trips) != 0 {
				t.Fatalf("executed %d trips", len(tr.Trips))
			}
		})
	}
}

func TestTravelerDiscardsUnchosenDRT(t *testing.T) {
	f := newFixture(t)
	f.world.Chooser = choice.New(choice.Config{DRTPenalty: -1000}, f.env.Rand())
	drt := &domain.Trip{MainMode: domain.ModeDRT}
	drt.AppendLeg(domain.Leg{Mode: domain.ModeDRT, Start: home, End: office, StartTime: 29000, EndTime: 29300, Duration: 300})
	f.planner.trip = drt

	tr := NewTraveler(4, attrs(domain.ModeCar, domain.ModeDRT), day(office, 1), f.world)
	f.run(t, tr)

	if len(f.fleet.committed) != 0 || len(f.fleet.discarded) != 1 || f.fleet.discarded[0] != 4 {
		t.Fatalf("committed %v, discarded %v", f.fleet.committed, f.fleet.discarded)
	}
	if tr.Trips[0].Actual.MainMode != domain.ModeCar {
		t.Fatalf("executed %s", tr.Trips[0].Actual.MainMode)
	}
}

func TestTravelerRidesFeederThenRail(t *testing.T) {
	f := newFixture(t)
	planned := &domain.Trip{MainMode: domain.ModeDRTTransit}
	planned.AppendLeg(domain.Leg{Mode: domain.ModeDRT, Start: home, End: stopAt, ToStop: "S1",
		StartTime: 29000, EndTime: 29600, Duration: 600,
		Steps: []domain.Step{{Start: home, End: stopAt, Duration: 600}}})
	planned.AppendLeg(domain.Leg{Mode: domain.ModeRail, Start: stopAt, End: far, FromStop: "S1",
		StartTime: 30000, EndTime: 31800, Duration: 1800,
		Steps: []domain.Step{{Start: stopAt, End: far, Duration: 1800}}})
	f.planner.trip = planned
	f.fleet.ride = domain.Leg{Mode: domain.ModeDRT, Start: home, End: stopAt,
		StartTime: 29100, EndTime: 29700, Duration: 600,
		Steps: []domain.Step{{Start: home, End: stopAt, Duration: 600}}}

	var events bytes.Buffer
	f.world.Events = zerolog.New(&events)

	tr := NewTraveler(5, attrs(domain.ModeDRTTransit), day(far, 2), f.world)
	f.run(t, tr)

	if len(f.fleet.committed) != 1 || len(tr.Trips) != 1 {
		t.Fatalf("committed %v, trips %d", f.fleet.committed, len(tr.Trips))
	}
	if q := f.planner.queries[0]; q.Travel != domain.TravelOut {
		t.Fatalf("travel = %s", q.Travel)
	}
	actual := tr.Trips[0].Actual
	if err := actual.Validate(); err != nil {
		t.Fatal(err)
	}
	ride := actual.Legs[0]
	if ride.StartTime != 29100 || ride.EndTime != 30000 || ride.ToStop != "S1" {
		t.Fatalf("ride = %+v", ride)
	}
	if actual.EndTime() != 31800 || f.env.Now() != 31800 {
		t.Fatalf("arrived at %v, clock %v", actual.EndTime(), f.env.Now())
	}
	if f.metrics["DRT_TRANSIT_trips"] != 1 || f.metrics["DRT_legs"] != 1 || f.metrics["RAIL_legs"] != 1 {
		t.Fatalf("counters = %v", f.metrics)
	}
	// The planned itinerary is left untouched.
	if planned.Legs[0].EndTime != 29600 {
		t.Fatal("planned trip was modified")
	}

	// The rail leg is logged when it departs and when it arrives.
	var rail []string
	dec := json.NewDecoder(&events)
	for dec.More() {
		var ev map[string]any
		if err := dec.Decode(&ev); err != nil {
			t.Fatal(err)
		}
		if ev["mode"] == string(domain.ModeRail) {
			rail = append(rail, fmt.Sprintf("%v@%v", ev["event"], ev["sim_time"]))
		}
	}
	if want := []string{"leg_start@30000", "leg_end@31800"}; !slices.Equal(rail, want) {
		t.Fatalf("rail events = %v, want %v", rail, want)
	}
}

func TestMachineRejectsOutOfOrderTransitions(t *testing.T) {
	m := machine{state: StateInitial}
	if err := m.fire(Plan); err == nil {
		t.Fatal("plan before activation should fail")
	}
	for _, tr := range []Transition{Activate, Plan, Choose, ExecuteTrip, Reactivate} {
		if err := m.fire(tr); err != nil {
			t.Fatal(err)
		}
	}
	if m.state != StateActivity {
		t.Fatalf("state = %s", m.state)
	}
	if Finalize.Counter() != "" || Unplannable.Counter() != "unplannable_persons" {
		t.Fatal("unexpected counter keys")
	}
}
