package routing

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"

	"github.com/rs/zerolog/log"
)

// Router joins a transit planner and a road router into ports.Router.
type Router struct {
	ports.TransitPlanner
	ports.RoadRouter
}

func NewRouter(transit ports.TransitPlanner, road ports.RoadRouter) *Router {
	return &Router{TransitPlanner: transit, RoadRouter: road}
}

// RouteMemo stores road geometry between runs.
type RouteMemo interface {
	Get(ctx context.Context, from, to domain.Coord) (*domain.Trip, bool)
	Set(ctx context.Context, from, to domain.Coord, trip *domain.Trip) error
}

// MemoRouter answers Route from a memo before falling back to the wrapped router.
type MemoRouter struct {
	Next ports.RoadRouter
	Memo RouteMemo
}

func NewMemoRouter(next ports.RoadRouter, memo RouteMemo) *MemoRouter {
	return &MemoRouter{Next: next, Memo: memo}
}

func (m *MemoRouter) Route(ctx context.Context, from, to domain.Coord) (*domain.Trip, error) {
	if trip, ok := m.Memo.Get(ctx, from, to); ok {
		return trip, nil
	}

	trip, err := m.Next.Route(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if err := m.Memo.Set(ctx, from, to, trip); err != nil {
		log.Warn().Err(err).Msg("route memo write failed")
	}
	return trip, nil
}

func (m *MemoRouter) PlanRoad(ctx context.Context, from, to domain.Coord, at float64) (*domain.Trip, error) {
	trip, err := m.Route(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return shiftTrip(trip, at), nil
}
