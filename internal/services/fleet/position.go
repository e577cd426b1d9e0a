package fleet

import (
	"drt-simulator/internal/domain"
	"fmt"
	"math"
)

// Position is where and when a vehicle can next be given new work.
type Position struct {
	Coord domain.Coord
	Time  float64
	// Step is the partially driven step of a moving act. The vehicle is committed
	// to finish it, so it is prepended to the next DRIVE, which then starts at StepStart.
	Step      *domain.Step
	StepStart float64
	// Act is a service act already under way; it stays at the head of any new route.
	Act *domain.DrtAct
}

// Position interpolates the vehicle state at now. Rerouting only happens at
// step boundaries, so a vehicle inside a step reports that step's end.
func (v *Vehicle) Position(now float64) (Position, error) {
	if len(v.route) == 0 {
		return Position{Coord: v.coord, Time: now}, nil
	}

	act := v.route[0]
	switch {
	case act.Type.IsService() && act.StartTime <= now+timeEps:
		return Position{Coord: act.EndCoord, Time: max(act.EndTime, now), Act: act}, nil
	case !act.Type.IsMove():
		return Position{Coord: act.StartCoord, Time: now}, nil
	case now <= act.StartTime+timeEps:
		return Position{Coord: act.StartCoord, Time: now}, nil
	}

	steps := act.Steps
	if len(steps) == 0 {
		steps = []domain.Step{{
			Start:    act.StartCoord,
			End:      act.EndCoord,
			Distance: act.StartCoord.DistanceTo(act.EndCoord),
			Duration: act.Duration,
		}}
	}

	t := act.StartTime
	for _, s := range steps {
		prev := t
		t += s.Duration
		if math.Abs(t-now) <= timeEps {
			return Position{Coord: s.End, Time: now}, nil
		}
		if t > now {
			step := s
			return Position{Coord: s.End, Time: t, Step: &step, StepStart: prev}, nil
		}
	}
	return Position{}, fmt.Errorf("%w: vehicle %s act %s ends %.1f, now %.1f", ErrOutOfSteps, v.ID, act.Type, t, now)
}
