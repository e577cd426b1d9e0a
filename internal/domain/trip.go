package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/jinzhu/copier"
)

// Mode is a travel mode as understood by the planners and the mode chooser.
type Mode string

const (
	ModeCar                  Mode = "CAR"
	ModeWalk                 Mode = "WALK"
	ModeTransit              Mode = "TRANSIT"
	ModeBus                  Mode = "BUS"
	ModeRail                 Mode = "RAIL"
	ModeBicycle              Mode = "BICYCLE"
	ModeBicycleTransit       Mode = "BICYCLE_TRANSIT"
	ModeParkRide             Mode = "PARK_RIDE"
	ModeKissRide             Mode = "KISS_RIDE"
	ModeRideKiss             Mode = "RIDE_KISS"
	ModeBikeRide             Mode = "BIKE_RIDE"
	ModeRentedBicycle        Mode = "RENTED_BICYCLE"
	ModeTransitRentedBicycle Mode = "TRANSIT_RENTED_BICYCLE"
	ModeDRT                  Mode = "DRT"
	ModeDRTTransit           Mode = "DRT_TRANSIT"
)

// AllModes lists every mode in a stable order; counters and reports iterate it.
var AllModes = []Mode{
	ModeCar, ModeWalk, ModeTransit, ModeBus, ModeRail, ModeBicycle, ModeBicycleTransit,
	ModeParkRide, ModeKissRide, ModeRideKiss, ModeBikeRide, ModeRentedBicycle,
	ModeTransitRentedBicycle, ModeDRT, ModeDRTTransit,
}

// IsPT reports whether the mode is scheduled public transport.
func (m Mode) IsPT() bool {
	switch m {
	case ModeTransit, ModeBus, ModeRail:
		return true
	}
	return false
}

// legDurationTolerance is the slack allowed between a leg's duration and the sum of its steps.
const legDurationTolerance = 1.0

var ErrEmptyTrip = errors.New("trip has no legs")

// Step is an atomic movement segment. Times are simulation seconds.
type Step struct {
	Start    Coord   `json:"start"`
	End      Coord   `json:"end"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// IsZero reports a step that neither moves nor takes time.
func (s Step) IsZero() bool {
	return s.Distance == 0 && s.Duration == 0
}

// Leg is one homogeneous portion of a trip.
type Leg struct {
	Mode      Mode    `json:"mode"`
	Start     Coord   `json:"start"`
	End       Coord   `json:"end"`
	FromStop  string  `json:"from_stop,omitempty"`
	ToStop    string  `json:"to_stop,omitempty"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
	Distance  float64 `json:"distance"`
	Steps     []Step  `json:"steps"`
}

// Validate checks the step invariants of a leg.
func (l *Leg) Validate() error {
	if l.Duration < 0 || l.Distance < 0 {
		return fmt.Errorf("leg %s: negative duration or distance", l.Mode)
	}
	if len(l.Steps) == 0 {
		return nil
	}
	var sum float64
	for i, s := range l.Steps {
		if s.Duration < 0 || s.Distance < 0 {
			return fmt.Errorf("leg %s: step %d is negative", l.Mode, i)
		}
		sum += s.Duration
	}
	if math.Abs(sum-l.Duration) > legDurationTolerance {
		return fmt.Errorf("leg %s: steps sum to %.1fs, leg duration %.1fs", l.Mode, sum, l.Duration)
	}
	if l.Steps[0].Start != l.Start {
		return fmt.Errorf("leg %s: first step does not start at leg start", l.Mode)
	}
	if l.Steps[len(l.Steps)-1].End != l.End {
		return fmt.Errorf("leg %s: last step does not end at leg end", l.Mode)
	}
	return nil
}

// AppendStep extends the leg by one step, moving its end coordinate and end time.
func (l *Leg) AppendStep(s Step) {
	if len(l.Steps) == 0 {
		l.Start = s.Start
	}
	l.Steps = append(l.Steps, s)
	l.End = s.End
	l.Duration += s.Duration
	l.Distance += s.Distance
	l.EndTime = l.StartTime + l.Duration
}

// Trip is an ordered sequence of legs between two activities.
type Trip struct {
	MainMode Mode    `json:"main_mode"`
	Legs     []Leg   `json:"legs"`
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
}

// StartTime is the start of the first leg.
func (t *Trip) StartTime() float64 {
	if len(t.Legs) == 0 {
		return 0
	}
	return t.Legs[0].StartTime
}

// EndTime is the end of the last leg.
func (t *Trip) EndTime() float64 {
	if len(t.Legs) == 0 {
		return 0
	}
	return t.Legs[len(t.Legs)-1].EndTime
}

// AppendLeg adds a leg and refreshes aggregate duration and distance.
func (t *Trip) AppendLeg(l Leg) {
	t.Legs = append(t.Legs, l)
	t.Refresh()
}

// AppendLegContiguous appends a leg of an executed trip. A gap after the
// previous leg becomes a dwell step on it, so legs keep summing to the trip span.
func (t *Trip) AppendLegContiguous(l Leg) {
	if n := len(t.Legs); n > 0 {
		prev := &t.Legs[n-1]
		if gap := l.StartTime - prev.EndTime; gap > 0 {
			prev.Steps = append(prev.Steps, Step{Start: prev.End, End: prev.End, Duration: gap})
			prev.Duration += gap
			prev.EndTime = l.StartTime
		}
	}
	t.AppendLeg(l)
}

// Refresh recomputes duration (first start to last end) and distance from the legs.
// A leg without a distance takes the sum of its steps.
func (t *Trip) Refresh() {
	t.Distance = 0
	for i := range t.Legs {
		l := &t.Legs[i]
		if l.Distance == 0 {
			for _, s := range l.Steps {
				l.Distance += s.Distance
			}
		}
		t.Distance += l.Distance
	}
	t.Duration = t.EndTime() - t.StartTime()
}

// MainModeFromLegs derives the dominant mode: DRT compositions first, then CAR > any PT > BICYCLE > WALK.
func (t *Trip) MainModeFromLegs() Mode {
	var hasDRT, hasCar, hasPT, hasBike bool
	for _, l := range t.Legs {
		switch {
		case l.Mode == ModeDRT:
			hasDRT = true
		case l.Mode == ModeCar:
			hasCar = true
		case l.Mode.IsPT():
			hasPT = true
		case l.Mode == ModeBicycle || l.Mode == ModeRentedBicycle:
			hasBike = true
		}
	}
	switch {
	case hasDRT && hasPT:
		return ModeDRTTransit
	case hasDRT:
		return ModeDRT
	case hasCar:
		return ModeCar
	case hasPT:
		return ModeTransit
	case hasBike:
		return ModeBicycle
	}
	return ModeWalk
}

// Validate checks every leg and the trip level invariants.
func (t *Trip) Validate() error {
	if len(t.Legs) == 0 {
		return ErrEmptyTrip
	}
	var sum float64
	for i := range t.Legs {
		if err := t.Legs[i].Validate(); err != nil {
			return err
		}
		sum += t.Legs[i].Duration
	}
	if math.Abs(t.Duration-(t.EndTime()-t.StartTime())) > legDurationTolerance {
		return fmt.Errorf("trip %s: duration %.1fs does not match leg span", t.MainMode, t.Duration)
	}
	if math.Abs(sum-t.Duration) > legDurationTolerance {
		return fmt.Errorf("trip %s: legs sum to %.1fs, trip duration %.1fs", t.MainMode, sum, t.Duration)
	}
	return nil
}

// DeepCopy returns an independent copy of the trip.
func (t *Trip) DeepCopy() *Trip {
	if t == nil {
		return nil
	}
	out := &Trip{}
	if err := copier.CopyWithOption(out, t, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched kinds, impossible for identical types.
		panic(fmt.Sprintf("copy trip: %v", err))
	}
	return out
}

// NewTrivialTrip builds the zero-length trip used when origin and destination coincide.
func NewTrivialTrip(at Coord, t float64, mode Mode) *Trip {
	leg := Leg{
		Mode:      mode,
		Start:     at,
		End:       at,
		StartTime: t,
		EndTime:   t,
		Steps:     []Step{{Start: at, End: at}},
	}
	return &Trip{MainMode: mode, Legs: []Leg{leg}}
}

// StripZeroSteps drops zero-length steps at both ends of a router response.
func StripZeroSteps(steps []Step) []Step {
	start, end := 0, len(steps)
	for start < end && steps[start].IsZero() {
		start++
	}
	for end > start && steps[end-1].IsZero() {
		end--
	}
	return steps[start:end]
}
