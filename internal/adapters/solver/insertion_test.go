package solver

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"testing"
)

// line places n points 1 km apart; every hop takes 100 s.
func line(n int) ([]domain.Coord, []ports.MatrixCell) {
	coords := make([]domain.Coord, n)
	for i := range coords {
		coords[i] = domain.Coord{Lat: 52, Lon: 21 + float64(i)*0.01}
	}
	var cells []ports.MatrixCell
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			hops := float64(max(i-j, j-i))
			cells = append(cells, ports.MatrixCell{From: i, To: j, Duration: 100 * hops, Distance: 1000 * hops})
		}
	}
	return coords, cells
}

func shipment(person int, from, to domain.Coord, tw domain.TimeWindow) ports.VRPJob {
	return ports.VRPJob{
		Person:   person,
		Pickup:   &ports.VRPStop{Coord: from, Duration: 10, TW: tw},
		Delivery: ports.VRPStop{Coord: to, Duration: 10, TW: domain.TimeWindow{Left: tw.Left, Right: tw.Right + 3600}},
		Dims:     domain.Dimensions{Seats: 1},
	}
}

func baseProblem(seats int) (*ports.Problem, []domain.Coord) {
	coords, cells := line(5)
	return &ports.Problem{
		Vehicles: []ports.VRPVehicle{{ID: "v0", TypeID: "t", Start: coords[0], StartTime: 0, End: coords[0], EndTime: 10000}},
		Types:    []domain.VehicleType{{ID: "t", Capacity: domain.Dimensions{Seats: seats}, CostPerMeter: 1}},
		Locations: coords,
		Matrix:    cells,
	}, coords
}

func TestInsertionSolverServesSingleRequest(t *testing.T) {
	p, c := baseProblem(1)
	p.Shipments = []ports.VRPJob{shipment(1, c[1], c[3], domain.TimeWindow{Left: 500, Right: 900})}

	sol, err := (&InsertionSolver{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.Unassigned) != 0 || len(sol.Routes) != 1 {
		t.Fatalf("solution = %+v", sol)
	}
	acts := sol.Routes[0].Acts
	if acts[0].Type != ports.VRPPickup || acts[1].Type != ports.VRPDelivery {
		t.Fatalf("acts = %+v", acts)
	}
	// Arrives at 100, waits for the window to open at 500.
	if acts[0].ArrTime != 100 || acts[0].EndTime != 510 {
		t.Fatalf("pickup = %+v", acts[0])
	}
	if acts[1].ArrTime != 710 || sol.Routes[0].End != 1020 {
		t.Fatalf("delivery = %+v, route end %v", acts[1], sol.Routes[0].End)
	}
}

func TestInsertionSolverRespectsCapacityAndWindows(t *testing.T) {
	p, c := baseProblem(1)
	tw := domain.TimeWindow{Left: 0, Right: 150}
	p.Shipments = []ports.VRPJob{
		shipment(1, c[1], c[4], tw),
		// Same window, but the only seat is taken until after it closes.
		shipment(2, c[1], c[4], tw),
	}

	sol, err := (&InsertionSolver{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.Unassigned) != 1 || sol.Unassigned[0] != 2 {
		t.Fatalf("unassigned = %v, want [2]", sol.Unassigned)
	}
	if !sol.IsUnassigned(2) {
		t.Fatal("IsUnassigned(2) = false")
	}
	if r, ok := sol.RouteOf(1); !ok || r.VehicleID != "v0" {
		t.Fatalf("RouteOf(1) = %+v, %v", r, ok)
	}
}

func TestInsertionSolverKeepsInitialRoute(t *testing.T) {
	p, c := baseProblem(4)
	onBoard := ports.VRPJob{
		Person:   5,
		Delivery: ports.VRPStop{Coord: c[4], Duration: 10, TW: domain.TimeWindow{Left: 0, Right: 5000}},
		Dims:     domain.Dimensions{Seats: 1},
	}
	p.Services = []ports.VRPJob{onBoard}
	p.Shipments = []ports.VRPJob{shipment(1, c[2], c[3], domain.TimeWindow{Left: 0, Right: 5000})}
	p.InitialRoutes = []ports.InitialRoute{{VehicleID: "v0", Acts: []ports.VRPActRef{{Type: ports.VRPService, Person: 5}}}}

	sol, err := (&InsertionSolver{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	acts := sol.Routes[0].Acts
	if len(acts) != 3 || acts[2].Person != 5 || acts[2].Type != ports.VRPService {
		t.Fatalf("acts = %+v, want pinned service last", acts)
	}
}

func TestInsertionSolverMaxInVehicleTime(t *testing.T) {
	p, c := baseProblem(2)
	long := shipment(1, c[0], c[4], domain.TimeWindow{Left: 0, Right: 5000})
	long.MaxInVehicleTime = 300
	p.Shipments = []ports.VRPJob{long}

	sol, err := (&InsertionSolver{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !sol.IsUnassigned(1) {
		t.Fatalf("400 s ride should exceed a 300 s limit: %+v", sol)
	}
}
