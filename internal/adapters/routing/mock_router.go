package routing

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"math"
	"slices"

	"github.com/paulmach/orb"
)

// MockRouter is a deterministic straight-line router for tests and offline runs.
// Road distance is the great-circle distance times Detour, covered at Speed.
type MockRouter struct {
	Speed      float64
	Detour     float64
	StepLength float64
	// Points outside Bounds are unroutable.
	Bounds *orb.Bound
	// Transit, when set, answers every non-walk PlanTransit call.
	Transit func(from, to domain.Coord, at float64, opts ports.PlanOptions) ([]*domain.Trip, error)

	RouteCalls  int
	MatrixCalls int
}

func NewMockRouter() *MockRouter {
	return &MockRouter{Speed: 10, Detour: 1.3, StepLength: 500}
}

func (m *MockRouter) check(from, to domain.Coord) error {
	if m.Bounds != nil && (!m.Bounds.Contains(from.Point()) || !m.Bounds.Contains(to.Point())) {
		return ports.ErrNoPath
	}
	if from.DistanceTo(to) < 1 {
		return ports.ErrTrivialPath
	}
	return nil
}

// Measure returns the road distance and duration the mock assigns to a pair.
func (m *MockRouter) Measure(from, to domain.Coord) ports.DistanceResult {
	d := from.DistanceTo(to) * m.Detour
	return ports.DistanceResult{DistanceMeters: d, DurationSeconds: math.Round(d / m.Speed)}
}

func interpolate(a, b domain.Coord, f float64) domain.Coord {
	return domain.Coord{Lat: a.Lat + (b.Lat-a.Lat)*f, Lon: a.Lon + (b.Lon-a.Lon)*f}
}

// straightLeg splits the segment into equal steps of at most StepLength meters.
func (m *MockRouter) straightLeg(mode domain.Mode, from, to domain.Coord, distance, duration float64) domain.Leg {
	n := 1
	if m.StepLength > 0 {
		n = max(1, int(math.Ceil(distance/m.StepLength)))
	}

	leg := domain.Leg{Mode: mode, Start: from}
	for i := 0; i < n; i++ {
		leg.AppendStep(domain.Step{
			Start:    interpolate(from, to, float64(i)/float64(n)),
			End:      interpolate(from, to, float64(i+1)/float64(n)),
			Distance: distance / float64(n),
			Duration: duration / float64(n),
		})
	}
	leg.Steps[n-1].End = to
	leg.End = to
	leg.Duration = duration
	leg.Distance = distance
	leg.EndTime = leg.StartTime + duration
	return leg
}

func (m *MockRouter) Route(_ context.Context, from, to domain.Coord) (*domain.Trip, error) {
	m.RouteCalls++
	if err := m.check(from, to); err != nil {
		return nil, err
	}
	r := m.Measure(from, to)
	trip := &domain.Trip{MainMode: domain.ModeCar}
	trip.AppendLeg(m.straightLeg(domain.ModeCar, from, to, r.DistanceMeters, r.DurationSeconds))
	return trip, nil
}

func (m *MockRouter) PlanRoad(ctx context.Context, from, to domain.Coord, at float64) (*domain.Trip, error) {
	trip, err := m.Route(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return shiftTrip(trip, at), nil
}

func (m *MockRouter) PlanTransit(_ context.Context, from, to domain.Coord, at float64, opts ports.PlanOptions) ([]*domain.Trip, error) {
	if err := m.check(from, to); err != nil {
		return nil, err
	}

	if len(opts.Modes) == 1 && opts.Modes[0] == domain.ModeWalk {
		speed := opts.WalkSpeed
		if speed <= 0 {
			speed = 1.2
		}
		d := from.DistanceTo(to)
		if opts.MaxWalkDistance > 0 && d > opts.MaxWalkDistance {
			return nil, ports.ErrNoPath
		}
		dur := math.Round(d / speed)
		start := at
		if opts.ArriveBy {
			start = at - dur
		}
		leg := m.straightLeg(domain.ModeWalk, from, to, d, dur)
		leg.StartTime = start
		leg.EndTime = start + leg.Duration
		trip := &domain.Trip{MainMode: domain.ModeWalk}
		trip.AppendLeg(leg)
		return []*domain.Trip{trip}, nil
	}

	if m.Transit != nil && !slices.Contains(opts.Modes, domain.ModeCar) {
		return m.Transit(from, to, at, opts)
	}
	return nil, ports.ErrNoPath
}

func (m *MockRouter) Matrix(_ context.Context, pairs []ports.ODPair) ([]ports.DistanceResult, error) {
	m.MatrixCalls++
	out := make([]ports.DistanceResult, len(pairs))
	for i, p := range pairs {
		if p.From == p.To {
			continue
		}
		out[i] = m.Measure(p.From, p.To)
	}
	return out, nil
}
