package ports

import (
	"context"
	"drt-simulator/internal/domain"
	"errors"
)

// Planner error taxonomy. Adapters are the only place that map external
// status codes to these values.
var (
	// Endpoints coincide or are too close to route.
	ErrTrivialPath = errors.New("trivial path")
	// No route exists between the endpoints.
	ErrNoPath = errors.New("no path")
	// Every alternative was filtered away.
	ErrUnreachable = errors.New("unreachable")
	// Anything the adapter could not classify. Fatal to the simulation.
	ErrGeneralRouting = errors.New("general routing error")
)

// PlanOptions carries per-request planner attributes.
type PlanOptions struct {
	Modes             []domain.Mode
	MaxWalkDistance   float64
	WalkSpeed         float64
	ArriveBy          bool
	MaxPreTransitTime float64
	BannedTrips       []string
	BannedStops       []string
}

// TransitPlanner returns multimodal itineraries. Times are simulation seconds.
type TransitPlanner interface {
	PlanTransit(ctx context.Context, from, to domain.Coord, at float64, opts PlanOptions) ([]*domain.Trip, error)
}

// RoadRouter returns driving trips between two coordinates.
type RoadRouter interface {
	// One CAR leg starting at the given simulation time.
	PlanRoad(ctx context.Context, from, to domain.Coord, at float64) (*domain.Trip, error)
	// Step-level road geometry; the returned trip starts at time zero.
	Route(ctx context.Context, from, to domain.Coord) (*domain.Trip, error)
}

// Router is the full routing surface used by travelers and the DRT service.
type Router interface {
	TransitPlanner
	RoadRouter
}
