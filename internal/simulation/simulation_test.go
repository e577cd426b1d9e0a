package simulation

import (
	"bufio"
	"bytes"
	"context"
	"drt-simulator/internal/adapters/cache"
	"drt-simulator/internal/adapters/repositories"
	"drt-simulator/internal/adapters/routing"
	"drt-simulator/internal/adapters/solver"
	"drt-simulator/internal/config"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/platform/db"
	"drt-simulator/internal/ports"
	"drt-simulator/internal/services/behaviour"
	"encoding/json"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

type staticPopulation []ports.PersonPlan

func (s staticPopulation) ListPersons(context.Context) ([]ports.PersonPlan, error) { return s, nil }

type staticStops []string

func (s staticStops) ListStops(context.Context) ([]string, error) { return s, nil }

var (
	depot  = domain.Coord{Lat: 52.01, Lon: 21.0}
	home   = domain.Coord{Lat: 52.0, Lon: 21.0}
	office = domain.Coord{Lat: 52.0332, Lon: 21.0}
	stopAt = domain.Coord{Lat: 52.05, Lon: 21.0}
	far    = domain.Coord{Lat: 52.3, Lon: 21.5}
)

const (
	nine      = 32400.0
	nineFive  = 32700.0
	nineHalf  = 34200.0
	eight     = 28800.0
	afternoon = 61200.0
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.NumberVehicles = 1
	cfg.Depot = depot
	cfg.DRTZones = []int{1}
	cfg.VehicleTypes = []config.VehicleType{{ID: "minibus", Seats: 8, CostPerMeter: 0.001, CostPerSecond: 0.01}}
	cfg.Modes = []string{"DRT"}
	cfg.CacheDSN = filepath.Join(t.TempDir(), "tdm.db")
	return &cfg
}

type run struct {
	res    *Result
	sim    *Simulation
	events []map[string]any
}

func simulate(t *testing.T, cfg *config.Config, r *routing.MockRouter, persons ...ports.PersonPlan) run {
	t.Helper()
	conn, err := db.Open(db.DriverSQLite, cfg.CacheDSN)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := repositories.InitSchema(conn, db.DriverSQLite); err != nil {
		t.Fatal(err)
	}

	svc := Services{Router: r, Matrix: r, Cache: cache.NewSqliteTDMCache(conn), Solver: &solver.InsertionSolver{}}
	var buf bytes.Buffer
	pop := func(*rand.Rand) ports.PopulationRepository { return staticPopulation(persons) }

	s, err := New(context.Background(), cfg, svc, pop, staticStops{"S1"}, zerolog.New(&buf))
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	out := run{res: res, sim: s}
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var ev map[string]any
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("event log line %q: %v", sc.Text(), err)
		}
		out.events = append(out.events, ev)
	}
	return out
}

func person(id int, from domain.Coord, fromZone int, to domain.Coord, toZone int, leave float64, arrive *float64) ports.PersonPlan {
	work := domain.Activity{Type: "work", Coord: to, ZoneID: toZone, StartTime: arrive}
	if arrive == nil {
		work.EndTime = domain.Float(afternoon)
	}
	return ports.PersonPlan{ID: id, Activities: []domain.Activity{
		{Type: "home", Coord: from, ZoneID: fromZone, EndTime: domain.Float(leave)},
		work,
	}}
}

func checkTrips(t *testing.T, res *Result) {
	t.Helper()
	for _, rec := range res.Trips {
		if err := rec.Actual.Validate(); err != nil {
			t.Fatalf("person %d executed trip: %v", rec.Person, err)
		}
	}
}

func TestWithinZoneDRT(t *testing.T) {
	cfg := testConfig(t)
	r := routing.NewMockRouter()
	got := simulate(t, cfg, r, person(1, home, 1, office, 1, nine, domain.Float(nineHalf)))
	res := got.res

	for key, want := range map[string]int{"DRT_trips": 1, "DRT_legs": 1, "delivered_travelers": 1, "tw_violations": 0} {
		if res.Counters[key] != want {
			t.Fatalf("%s = %d, want %d (%v)", key, res.Counters[key], want, res.Counters)
		}
	}
	checkTrips(t, res)

	b := res.Bookings[0]
	if b.Status != "DELIVERED" || b.PickupTime < nine || b.DropoffTime > nineHalf {
		t.Fatalf("booking %+v", b)
	}
	if end := res.Trips[0].Actual.EndTime(); end > nineHalf+cfg.LeavingTime {
		t.Fatalf("arrived at %v", end)
	}

	v := res.Vehicles[0]
	want := r.Measure(depot, home).DistanceMeters + r.Measure(home, office).DistanceMeters + r.Measure(office, depot).DistanceMeters
	if math.Abs(v.Kilometers*1000-want) > 1 {
		t.Fatalf("vehicle drove %.1f m, want %.1f", v.Kilometers*1000, want)
	}
	if v.Coord() != depot {
		t.Fatalf("vehicle parked at %v", v.Coord())
	}
}

func TestTwoTravelersShareOneVehicle(t *testing.T) {
	cfg := testConfig(t)
	neighbour := domain.Coord{Lat: 52.003, Lon: 21.0}
	got := simulate(t, cfg, routing.NewMockRouter(),
		person(1, home, 1, office, 1, nine, domain.Float(nineHalf)),
		person(2, neighbour, 1, office, 1, nineFive, domain.Float(nineHalf)),
	)
	res := got.res

	if res.Counters["DRT_trips"] != 2 || res.Counters["delivered_travelers"] != 2 {
		t.Fatalf("counters = %v", res.Counters)
	}
	checkTrips(t, res)
	if res.Bookings[0].Vehicle != res.Bookings[1].Vehicle {
		t.Fatal("travelers served by different vehicles")
	}

	most := 0
	for _, s := range res.Vehicles[0].Samples {
		most = max(most, s.Passengers)
		if s.Seats > cfg.VehicleTypes[0].Seats {
			t.Fatalf("over capacity at %v", s.Time)
		}
	}
	if most != 2 {
		t.Fatalf("peak occupancy %d, want a shared ride", most)
	}
}

// rideKiss rides a train from the origin to the zone stop, then drives the
// last mile. Trains arrive every 15 minutes.
func rideKiss(from, to domain.Coord, at float64, opts ports.PlanOptions) ([]*domain.Trip, error) {
	if len(opts.Modes) != 1 || opts.Modes[0] != domain.ModeRideKiss {
		return nil, ports.ErrNoPath
	}
	var railStart, carStart float64
	if opts.ArriveBy {
		carStart = at - 600
		railStart = math.Floor(carStart/900)*900 - 1800
	} else {
		railStart = math.Ceil(at/900) * 900
		carStart = railStart + 1800
	}
	rail := domain.Leg{Mode: domain.ModeRail, Start: from, End: stopAt, FromStop: "R0", ToStop: "S1",
		StartTime: railStart, EndTime: railStart + 1800, Duration: 1800, Distance: 30000,
		Steps: []domain.Step{{Start: from, End: stopAt, Distance: 30000, Duration: 1800}}}
	car := domain.Leg{Mode: domain.ModeCar, Start: stopAt, End: to,
		StartTime: carStart, EndTime: carStart + 600, Duration: 600, Distance: 4000,
		Steps: []domain.Step{{Start: stopAt, End: to, Distance: 4000, Duration: 600}}}
	trip := &domain.Trip{MainMode: domain.ModeRideKiss}
	trip.AppendLeg(rail)
	trip.AppendLeg(car)
	return []*domain.Trip{trip}, nil
}

func TestRideKissIntoZone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modes = []string{"DRT_TRANSIT"}
	r := routing.NewMockRouter()
	r.Transit = rideKiss

	got := simulate(t, cfg, r, person(1, far, 2, office, 1, eight, domain.Float(nineHalf)))
	res := got.res

	if res.Counters["DRT_TRANSIT_trips"] != 1 || res.Counters["DRT_legs"] != 1 || res.Counters["RAIL_legs"] < 1 {
		t.Fatalf("counters = %v", res.Counters)
	}
	checkTrips(t, res)
	actual := res.Trips[0].Actual
	last := actual.Legs[len(actual.Legs)-1]
	if last.Mode != domain.ModeDRT || last.FromStop != "S1" {
		t.Fatalf("last leg %s from %q", last.Mode, last.FromStop)
	}
	if actual.EndTime() > nineHalf+cfg.TripWindowConstant/2 {
		t.Fatalf("arrived at %v", actual.EndTime())
	}
}

func TestUnreachableOrigin(t *testing.T) {
	cfg := testConfig(t)
	r := routing.NewMockRouter()
	r.Bounds = &orb.Bound{Min: orb.Point{20.9, 51.9}, Max: orb.Point{21.1, 52.1}}
	outside := domain.Coord{Lat: 53.0, Lon: 21.0}

	got := simulate(t, cfg, r, person(1, outside, 1, office, 1, nine, domain.Float(nineHalf)))
	if got.res.Counters["unactivatable_persons"] != 1 || len(got.res.Trips) != 0 {
		t.Fatalf("counters = %v, trips = %d", got.res.Counters, len(got.res.Trips))
	}
	if got.res.Exits[behaviour.Unactivatable] != 1 {
		t.Fatalf("exits = %v", got.res.Exits)
	}
}

func TestSimultaneousRequestsOverloadOneVehicle(t *testing.T) {
	cfg := testConfig(t)
	cfg.VehicleTypes[0].Seats = 4
	dest := domain.Coord{Lat: 52.04, Lon: 21.0}

	var persons []ports.PersonPlan
	for i := range 10 {
		from := domain.Coord{Lat: 52.0 + 0.002*float64(i), Lon: 21.0 + 0.001*float64(i%3)}
		persons = append(persons, person(i+1, from, 1, dest, 1, eight, nil))
	}
	got := simulate(t, cfg, routing.NewMockRouter(), persons...)
	res := got.res

	served := res.Counters["DRT_trips"]
	if served < 1 || served > 4 {
		t.Fatalf("served %d travelers with 4 seats", served)
	}
	if served+res.Counters["undeliverable_drt"] != 10 || res.Counters["unplannable_persons"] != 10-served {
		t.Fatalf("counters = %v", res.Counters)
	}
	checkTrips(t, res)

	// Every plan and commit happens at 08:00, before any act completes.
	for _, ev := range got.events {
		if ev["event"] == "choose" && ev["sim_time"] != eight {
			t.Fatalf("choice at %v", ev["sim_time"])
		}
	}
	for _, b := range res.Bookings {
		if b.PlannedPickup < eight {
			t.Fatalf("pickup planned at %v", b.PlannedPickup)
		}
	}
}

func TestDriverlessTravelerWalks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modes = []string{"CAR", "PARK_RIDE", "WALK"}
	cfg.DrivingLicense = false
	near := domain.Coord{Lat: 52.009, Lon: 21.0}

	got := simulate(t, cfg, routing.NewMockRouter(), person(1, home, 1, near, 1, eight, nil))
	res := got.res
	if res.Counters["WALK_trips"] != 1 || res.Counters["CAR_trips"] != 0 || res.Counters["PARK_RIDE_trips"] != 0 {
		t.Fatalf("counters = %v", res.Counters)
	}
	if res.Exits[behaviour.Finalize] != 1 {
		t.Fatalf("exits = %v", res.Exits)
	}
}

func TestConnectOffline(t *testing.T) {
	cfg := testConfig(t)
	svc, release, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, ok := svc.Matrix.(*routing.MockRouter); !ok {
		t.Fatalf("matrix provider = %T", svc.Matrix)
	}
	if _, ok := svc.Solver.(*solver.InsertionSolver); !ok {
		t.Fatalf("solver = %T", svc.Solver)
	}
	if _, err := svc.Cache.LookupFrom(context.Background(), home); err != nil {
		t.Fatal(err)
	}
}

func TestCountersSeedKnownKeys(t *testing.T) {
	c := NewCounters()
	c.Inc("")
	c.Inc("DRT_trips")
	snap := c.Snapshot()
	if snap["DRT_trips"] != 1 || snap["too_late_request"] != 0 {
		t.Fatalf("snapshot = %v", snap)
	}
	if _, ok := snap[""]; ok {
		t.Fatal("empty key counted")
	}
	snap["DRT_trips"] = 9
	if c.Get("DRT_trips") != 1 {
		t.Fatal("snapshot aliases the counters")
	}
}
