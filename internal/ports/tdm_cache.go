package ports

import (
	"context"
	"drt-simulator/internal/domain"
)

// TDMEntry is one cached destination reachable from an origin.
type TDMEntry struct {
	To       domain.Coord
	Duration float64
	Distance float64
}

// TDMCache persists origin->destination durations and distances.
// Inserts are buffered until Commit; re-inserting a known pair is a no-op.
type TDMCache interface {
	LookupFrom(ctx context.Context, origin domain.Coord) ([]TDMEntry, error)
	Insert(ctx context.Context, from, to domain.Coord, duration, distance float64) error
	Commit(ctx context.Context) error
	Drop(ctx context.Context) error
}
