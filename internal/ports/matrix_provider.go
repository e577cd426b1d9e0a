package ports

import (
	"context"
	"drt-simulator/internal/domain"
)

// Distance and travel duration between two locations.
type DistanceResult struct {
	DistanceMeters  float64
	DurationSeconds float64
}

// ODPair is one origin->destination query of a matrix request.
type ODPair struct {
	From domain.Coord
	To   domain.Coord
}

// Contract for batched time-distance computation.
type MatrixProvider interface {
	// Results are returned in the order of pairs.
	Matrix(ctx context.Context, pairs []ODPair) ([]DistanceResult, error)
}
