package ports

import (
	"context"
	"drt-simulator/internal/domain"
)

// PersonPlan is a traveler's identity and day plan as loaded from input.
type PersonPlan struct {
	ID         int
	Activities []domain.Activity
}

// Port: a boundary for retrieving the simulated population.
type PopulationRepository interface {
	ListPersons(ctx context.Context) ([]PersonPlan, error)
}

// Port: the PT stops served by the DRT zone.
type StopRepository interface {
	ListStops(ctx context.Context) ([]string, error)
}
