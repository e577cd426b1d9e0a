package domain

import (
	"errors"
	"math"
	"testing"
)

var (
	home = Coord{Lat: 52.2297, Lon: 21.0122}
	work = Coord{Lat: 52.2400, Lon: 21.0300}
	stop = Coord{Lat: 52.2350, Lon: 21.0200}
)

func TestLegAppendStepKeepsInvariants(t *testing.T) {
	leg := Leg{Mode: ModeDRT, StartTime: 100}
	leg.AppendStep(Step{Start: home, End: stop, Distance: 800, Duration: 120})
	leg.AppendStep(Step{Start: stop, End: stop, Duration: 30})
	leg.AppendStep(Step{Start: stop, End: work, Distance: 900, Duration: 150})

	if err := leg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if leg.Start != home || leg.End != work {
		t.Fatalf("leg endpoints = %v -> %v, want %v -> %v", leg.Start, leg.End, home, work)
	}
	if leg.Duration != 300 {
		t.Fatalf("duration = %v, want 300", leg.Duration)
	}
	if leg.EndTime != 400 {
		t.Fatalf("end time = %v, want 400", leg.EndTime)
	}
	if leg.Distance != 1700 {
		t.Fatalf("distance = %v, want 1700", leg.Distance)
	}
}

func TestLegValidateRejectsStepMismatch(t *testing.T) {
	leg := Leg{
		Mode:     ModeCar,
		Start:    home,
		End:      work,
		Duration: 100,
		Steps:    []Step{{Start: home, End: work, Duration: 50}},
	}
	if err := leg.Validate(); err == nil {
		t.Fatal("expected error for step duration mismatch")
	}

	leg.Steps[0].Duration = 100.5
	if err := leg.Validate(); err != nil {
		t.Fatalf("half a second of drift should be tolerated: %v", err)
	}

	leg.Steps[0].Start = stop
	if err := leg.Validate(); err == nil {
		t.Fatal("expected error when first step does not start at leg start")
	}
}

func TestTripMainModeFromLegs(t *testing.T) {
	tests := []struct {
		name  string
		modes []Mode
		want  Mode
	}{
		{"walk only", []Mode{ModeWalk}, ModeWalk},
		{"bike beats walk", []Mode{ModeWalk, ModeBicycle, ModeWalk}, ModeBicycle},
		{"pt beats bike", []Mode{ModeBicycle, ModeBus}, ModeTransit},
		{"car beats pt", []Mode{ModeCar, ModeWalk, ModeRail}, ModeCar},
		{"drt alone", []Mode{ModeDRT}, ModeDRT},
		{"drt with pt", []Mode{ModeDRT, ModeWalk, ModeRail, ModeWalk}, ModeDRTTransit},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			trip := &Trip{}
			for _, m := range tc.modes {
				trip.Legs = append(trip.Legs, Leg{Mode: m})
			}
			if got := trip.MainModeFromLegs(); got != tc.want {
				t.Fatalf("main mode = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestTripValidate(t *testing.T) {
	trip := &Trip{MainMode: ModeTransit}
	if err := trip.Validate(); !errors.Is(err, ErrEmptyTrip) {
		t.Fatalf("err = %v, want ErrEmptyTrip", err)
	}

	trip.AppendLeg(Leg{
		Mode: ModeWalk, Start: home, End: stop, StartTime: 0, EndTime: 300, Duration: 300,
		Steps: []Step{{Start: home, End: stop, Distance: 350, Duration: 300}},
	})
	trip.AppendLeg(Leg{
		Mode: ModeBus, Start: stop, End: work, StartTime: 300, EndTime: 900, Duration: 600,
		Steps: []Step{{Start: stop, End: work, Distance: 3000, Duration: 600}},
	})

	if err := trip.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Duration != 900 || trip.Distance != 3350 {
		t.Fatalf("trip = %vs / %vm, want 900s / 3350m", trip.Duration, trip.Distance)
	}
	if trip.Legs[0].Distance != 350 || trip.Legs[1].Distance != 3000 {
		t.Fatalf("leg distances = %v, %v", trip.Legs[0].Distance, trip.Legs[1].Distance)
	}
}

func TestTripDeepCopyIsIndependent(t *testing.T) {
	trip := &Trip{MainMode: ModeCar}
	trip.AppendLeg(Leg{
		Mode: ModeCar, Start: home, End: work, Duration: 60, EndTime: 60,
		Steps: []Step{{Start: home, End: work, Distance: 1000, Duration: 60}},
	})

	cp := trip.DeepCopy()
	cp.Legs[0].Steps[0].Distance = 1
	cp.Legs[0].Mode = ModeWalk

	if trip.Legs[0].Steps[0].Distance != 1000 {
		t.Fatal("modifying the copy changed the original step")
	}
	if trip.Legs[0].Mode != ModeCar {
		t.Fatal("modifying the copy changed the original leg")
	}
}

func TestNewTrivialTrip(t *testing.T) {
	trip := NewTrivialTrip(home, 3600, ModeWalk)
	if err := trip.Validate(); err != nil {
		t.Fatalf("trivial trip should be valid: %v", err)
	}
	if len(trip.Legs) != 1 || len(trip.Legs[0].Steps) != 1 {
		t.Fatalf("trivial trip should have one leg with one step, got %+v", trip.Legs)
	}
	if trip.StartTime() != 3600 || trip.EndTime() != 3600 {
		t.Fatalf("trivial trip spans %v..%v", trip.StartTime(), trip.EndTime())
	}
}

func TestStripZeroSteps(t *testing.T) {
	steps := []Step{
		{Start: home, End: home},
		{Start: home, End: stop, Distance: 10, Duration: 2},
		{Start: stop, End: stop, Duration: 5},
		{Start: stop, End: work, Distance: 10, Duration: 2},
		{Start: work, End: work},
	}

	got := StripZeroSteps(steps)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Start != home || got[2].End != work {
		t.Fatalf("unexpected ends after strip: %+v", got)
	}

	if len(StripZeroSteps([]Step{{}, {}})) != 0 {
		t.Fatal("all-zero step list should strip to empty")
	}
}

func TestCoordParseAndDistance(t *testing.T) {
	c, err := ParseCoord(" 52.2297, 21.0122 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != home {
		t.Fatalf("parsed %v, want %v", c, home)
	}
	if _, err := ParseCoord("52.1"); err == nil {
		t.Fatal("expected error for a single number")
	}

	d := home.DistanceTo(work)
	if d < 1500 || d > 1800 {
		t.Fatalf("distance = %.0fm, want roughly 1.6km", d)
	}
	if math.Abs(home.DistanceTo(home)) > 1e-9 {
		t.Fatal("distance to self should be zero")
	}
}

func TestDimensionsAndTravelType(t *testing.T) {
	capacity := Dimensions{Seats: 4, Wheelchairs: 1}
	load := Dimensions{Seats: 3}.Add(Dimensions{Seats: 1, Wheelchairs: 1})
	if !capacity.Fits(load) {
		t.Fatalf("%+v should fit into %+v", load, capacity)
	}
	if capacity.Fits(load.Add(Dimensions{Seats: 1})) {
		t.Fatal("fifth seat should not fit")
	}
	if !load.Sub(Dimensions{Wheelchairs: 2}).Negative() {
		t.Fatal("expected underflow")
	}

	zones := []int{7, 8}
	cases := map[TravelType][2]int{
		TravelWithin:   {7, 8},
		TravelIn:       {1, 7},
		TravelOut:      {8, 1},
		TravelExternal: {1, 2},
	}
	for want, od := range cases {
		if got := ClassifyTravel(od[0], od[1], zones); got != want {
			t.Fatalf("ClassifyTravel(%v) = %s, want %s", od, got, want)
		}
	}
}

func TestDrtActValidate(t *testing.T) {
	pick := NewStationaryAct(ActPickUp, 1, home, 100, 30)
	if err := pick.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pick.EndCoord = work
	if err := pick.Validate(); err == nil {
		t.Fatal("stationary act moving should be invalid")
	}

	drive := NewMoveAct(ActDrive, home, work, 0, 120)
	if drive.Materialized() {
		t.Fatal("fresh move act should not be materialized")
	}
	if err := drive.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppendLegContiguousBridgesGaps(t *testing.T) {
	walk := Leg{Mode: ModeWalk, StartTime: 0}
	walk.AppendStep(Step{Start: home, End: work, Distance: 200, Duration: 100})

	rail := Leg{Mode: ModeRail, StartTime: 160}
	rail.AppendStep(Step{Start: work, End: home, Distance: 5000, Duration: 300})

	trip := &Trip{}
	trip.AppendLegContiguous(walk)
	trip.AppendLegContiguous(rail)

	if trip.Duration != 460 {
		t.Fatalf("duration = %v, want 460", trip.Duration)
	}
	if err := trip.Validate(); err != nil {
		t.Fatalf("bridged trip invalid: %v", err)
	}
	dwell := trip.Legs[0].Steps[1]
	if dwell.Duration != 60 || dwell.Distance != 0 || dwell.Start != work {
		t.Fatalf("dwell step = %+v", dwell)
	}
}
