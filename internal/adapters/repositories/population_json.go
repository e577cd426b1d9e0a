package repositories

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
)

type activitySeed struct {
	Type      string       `json:"type"`
	StartTime *float64     `json:"start_time_s"`
	EndTime   *float64     `json:"end_time_s"`
	Coord     domain.Coord `json:"coord"`
	Zone      int          `json:"zone"`
}

type personSeed struct {
	ID         int            `json:"id"`
	Activities []activitySeed `json:"activities"`
}

type populationFile struct {
	Persons []personSeed `json:"persons"`
}

// JSON-file implementation of the PopulationRepository port.
// Each person is kept with probability Fraction, drawn from Rand.
type JSONPopulationRepository struct {
	Path     string
	Fraction float64
	Rand     *rand.Rand
}

func NewJSONPopulationRepository(path string, fraction float64, rng *rand.Rand) *JSONPopulationRepository {
	return &JSONPopulationRepository{Path: path, Fraction: fraction, Rand: rng}
}

// Load, validate and sample the population.
func (r *JSONPopulationRepository) ListPersons(_ context.Context) ([]ports.PersonPlan, error) {
	bytes, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("load population: read %q: %w", r.Path, err)
	}

	var data populationFile
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("load population: parse json: %w", err)
	}

	seen := make(map[int]struct{}, len(data.Persons))
	out := make([]ports.PersonPlan, 0, len(data.Persons))
	for i, p := range data.Persons {
		if p.ID <= 0 {
			return nil, fmt.Errorf("load population: invalid id at index %d: %d", i+1, p.ID)
		}
		if _, ok := seen[p.ID]; ok {
			return nil, fmt.Errorf("load population: duplicate id %d", p.ID)
		}
		seen[p.ID] = struct{}{}

		if len(p.Activities) < 2 {
			return nil, fmt.Errorf("load population: person %d: at least two activities required", p.ID)
		}

		plan := ports.PersonPlan{ID: p.ID, Activities: make([]domain.Activity, 0, len(p.Activities))}
		for _, a := range p.Activities {
			act := domain.Activity{
				Type:      a.Type,
				Coord:     a.Coord,
				ZoneID:    a.Zone,
				StartTime: a.StartTime,
				EndTime:   a.EndTime,
			}
			if err := act.Validate(); err != nil {
				return nil, fmt.Errorf("load population: person %d: %w", p.ID, err)
			}
			plan.Activities = append(plan.Activities, act)
		}

		keep := r.Fraction >= 1
		if r.Rand != nil {
			keep = r.Rand.Float64() < r.Fraction
		}
		if keep {
			out = append(out, plan)
		}
	}

	return out, nil
}
