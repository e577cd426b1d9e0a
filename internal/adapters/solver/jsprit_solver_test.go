package solver

import (
	"bytes"
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var (
	depot = domain.Coord{Lat: 52.00, Lon: 21.00}
	pickA = domain.Coord{Lat: 52.01, Lon: 21.00}
	dropA = domain.Coord{Lat: 52.02, Lon: 21.01}
	dropB = domain.Coord{Lat: 52.03, Lon: 21.02}
)

func sampleProblem() *ports.Problem {
	return &ports.Problem{
		Vehicles: []ports.VRPVehicle{{
			ID: "v0", TypeID: "minibus", Start: pickA, StartTime: 32000, End: depot, EndTime: 64800,
		}},
		Types: []domain.VehicleType{{ID: "minibus", Capacity: domain.Dimensions{Seats: 4, Wheelchairs: 1}, CostPerMeter: 1}},
		Shipments: []ports.VRPJob{{
			Person:           1,
			Pickup:           &ports.VRPStop{Coord: pickA, Duration: 30, TW: domain.TimeWindow{Left: 32400, Right: 33000}},
			Delivery:         ports.VRPStop{Coord: dropA, Duration: 30, TW: domain.TimeWindow{Left: 32400, Right: 34200}},
			Dims:             domain.Dimensions{Seats: 1},
			MaxInVehicleTime: 1200,
		}},
		Services: []ports.VRPJob{{
			Person:   2,
			Delivery: ports.VRPStop{Coord: dropB, Duration: 30, TW: domain.TimeWindow{Left: 32000, Right: 34000}},
			Dims:     domain.Dimensions{Seats: 1},
		}},
		InitialRoutes: []ports.InitialRoute{{VehicleID: "v0", Acts: []ports.VRPActRef{{Type: ports.VRPService, Person: 2}}}},
		Locations:     []domain.Coord{depot, pickA, dropA, dropB},
		Matrix: []ports.MatrixCell{
			{From: 1, To: 2, Duration: 120, Distance: 1500},
			{From: 2, To: 3, Duration: 100, Distance: 1300},
		},
	}
}

func sampleSolution() *ports.Solution {
	return &ports.Solution{
		Cost: 4200.5,
		Routes: []ports.SolutionRoute{{
			VehicleID: "v0",
			Start:     32000,
			End:       33500,
			Acts: []ports.VRPAct{
				{Type: ports.VRPPickup, Person: 1, ArrTime: 32400, EndTime: 32430},
				{Type: ports.VRPDelivery, Person: 1, ArrTime: 32550, EndTime: 32580},
				{Type: ports.VRPService, Person: 2, ArrTime: 32680, EndTime: 32710},
			},
		}},
		Unassigned: []int{7},
	}
}

func TestWriteProblem(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteProblem(&buf, sampleProblem()); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc := buf.String()

	for _, want := range []string{
		`<fleetSize>FINITE</fleetSize>`,
		`<shipment id="1">`,
		`<service id="2" type="delivery">`,
		`<maxTimeInVehicle>1200</maxTimeInVehicle>`,
		`<dimension index="0">4</dimension>`,
		`<act type="delivery">`,
		`<serviceId>2</serviceId>`,
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("problem xml lacks %s:\n%s", want, doc)
		}
	}
}

func TestWriteProblemRejectsUnindexedCoordinate(t *testing.T) {
	p := sampleProblem()
	p.Locations = p.Locations[:2]
	if err := WriteProblem(&bytes.Buffer{}, p); err == nil {
		t.Fatal("expected error for coordinate without index")
	}
}

func TestSolutionRoundTrip(t *testing.T) {
	want := sampleSolution()

	var buf bytes.Buffer
	if err := WriteSolution(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSolution(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip:\n got %+v\nwant %+v", got, want)
	}
}

func TestReadSolutionPicksCheapest(t *testing.T) {
	doc := `<?xml version="1.0"?>
<problem xmlns="http://www.w3schools.com">
  <solutions>
    <solution><cost>90</cost><routes/><unassignedJobs><job id="3"/></unassignedJobs></solution>
    <solution><cost>10</cost>
      <routes><route><vehicleId>v1</vehicleId><start>0</start>
        <act type="service"><serviceId>4</serviceId><arrTime>5</arrTime><endTime>9</endTime></act>
      <end>20</end></route></routes>
    </solution>
  </solutions>
</problem>`
	sol, err := ReadSolution(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sol.Cost != 10 || len(sol.Unassigned) != 0 {
		t.Fatalf("solution = %+v", sol)
	}
	act := sol.Routes[0].Acts[0]
	if act.Type != ports.VRPService || act.Person != 4 {
		t.Fatalf("act = %+v", act)
	}
}

func TestMatrixCSVRoundTrip(t *testing.T) {
	cells := sampleProblem().Matrix
	var buf bytes.Buffer
	if err := WriteMatrix(&buf, cells); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "from,to,time,distance") {
		t.Fatalf("header = %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
	got, err := ReadMatrix(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cells) {
		t.Fatalf("matrix = %+v", got)
	}
}

func TestJspritSolverRunsCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	fixture := filepath.Join(t.TempDir(), "fixture.xml")
	f, err := os.Create(fixture)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteSolution(f, sampleSolution()); err != nil {
		t.Fatal(err)
	}
	f.Close()

	dir := t.TempDir()
	s, err := NewJspritSolver([]string{"sh", "-c", `cp "$0" "$3"`, fixture}, dir, 42)
	if err != nil {
		t.Fatal(err)
	}

	sol, err := s.Solve(context.Background(), sampleProblem())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !reflect.DeepEqual(sol, sampleSolution()) {
		t.Fatalf("solution = %+v", sol)
	}
	for _, name := range []string{problemFile, matrixFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
}

func TestJspritSolverRetriesThenFails(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	counter := filepath.Join(t.TempDir(), "runs")
	s, err := NewJspritSolver([]string{"sh", "-c", `echo x >> "$0"; exit 3`, counter}, "", 42)
	if err != nil {
		t.Fatal(err)
	}
	s.Backoff = time.Millisecond

	if _, err := s.Solve(context.Background(), sampleProblem()); err == nil {
		t.Fatal("expected solver failure")
	}
	runs, _ := os.ReadFile(counter)
	if n := strings.Count(string(runs), "x"); n != maxSolverAttempts {
		t.Fatalf("runs = %d, want %d", n, maxSolverAttempts)
	}
}
