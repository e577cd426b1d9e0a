package ports

import (
	"context"
	"drt-simulator/internal/domain"
)

// VRP act kinds as reported by the solver.
const (
	VRPPickup   = "pickupShipment"
	VRPDelivery = "deliverShipment"
	VRPService  = "delivery"
)

// VRPVehicle is a vehicle as seen by the solver: its committed position-time and depot.
type VRPVehicle struct {
	ID        string
	TypeID    string
	Start     domain.Coord
	StartTime float64
	End       domain.Coord
	EndTime   float64
}

// VRPStop is one location visit of a job.
type VRPStop struct {
	Coord    domain.Coord
	Duration float64
	TW       domain.TimeWindow
}

// VRPJob is a shipment (Pickup set) or a delivery-only service (Pickup nil).
type VRPJob struct {
	Person   int
	Pickup   *VRPStop
	Delivery VRPStop
	Dims     domain.Dimensions
	// Zero means unbounded.
	MaxInVehicleTime float64
}

func (j VRPJob) IsShipment() bool { return j.Pickup != nil }

// VRPActRef references one job visit inside an initial route.
type VRPActRef struct {
	Type   string
	Person int
}

// InitialRoute pins already-committed jobs to a vehicle in their current order.
type InitialRoute struct {
	VehicleID string
	Acts      []VRPActRef
}

// MatrixCell is a directed time-distance entry between two location indices.
type MatrixCell struct {
	From     int
	To       int
	Duration float64
	Distance float64
}

// Problem is a complete solver input.
type Problem struct {
	Vehicles      []VRPVehicle
	Types         []domain.VehicleType
	Shipments     []VRPJob
	Services      []VRPJob
	InitialRoutes []InitialRoute
	// Locations[i] is the coordinate with index i.
	Locations []domain.Coord
	Matrix    []MatrixCell
}

// LocationIndex builds the coordinate->index lookup for the problem.
func (p *Problem) LocationIndex() map[domain.Coord]int {
	idx := make(map[domain.Coord]int, len(p.Locations))
	for i, c := range p.Locations {
		idx[c] = i
	}
	return idx
}

// VRPAct is one visit in a solved route.
type VRPAct struct {
	Type    string
	Person  int
	ArrTime float64
	EndTime float64
}

type SolutionRoute struct {
	VehicleID string
	Start     float64
	End       float64
	Acts      []VRPAct
}

// Solution is the solver output.
type Solution struct {
	Cost       float64
	Routes     []SolutionRoute
	Unassigned []int
}

// RouteOf returns the route serving the given person.
func (s *Solution) RouteOf(person int) (SolutionRoute, bool) {
	for _, r := range s.Routes {
		for _, a := range r.Acts {
			if a.Person == person {
				return r, true
			}
		}
	}
	return SolutionRoute{}, false
}

// IsUnassigned reports whether the solver left the person out.
func (s *Solution) IsUnassigned(person int) bool {
	for _, p := range s.Unassigned {
		if p == person {
			return true
		}
	}
	return false
}

// Solver solves one VRP instance. Implementations must be deterministic.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}
