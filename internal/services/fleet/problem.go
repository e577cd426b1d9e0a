package fleet

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"fmt"
	"maps"
	"slices"
)

// problemBuild is a solver input together with the fleet state it was built from.
type problemBuild struct {
	problem   *ports.Problem
	positions map[string]Position
	requests  map[int]Request
	// committed holds the persons already pinned to each vehicle.
	committed map[string][]int
	owner     map[int]string
}

// checkKeeps verifies the solved route of one vehicle kept its commitments
// and picked up nothing that belongs elsewhere.
func (pb *problemBuild) checkKeeps(sr ports.SolutionRoute, newcomer int) error {
	seen := make(map[int]bool, len(sr.Acts))
	for _, a := range sr.Acts {
		seen[a.Person] = true
		if a.Person == newcomer {
			continue
		}
		if pb.owner[a.Person] != sr.VehicleID {
			return fmt.Errorf("%w: vehicle %s serves person %d of vehicle %q",
				ErrInconsistentSolution, sr.VehicleID, a.Person, pb.owner[a.Person])
		}
	}
	for _, p := range pb.committed[sr.VehicleID] {
		if !seen[p] {
			return fmt.Errorf("%w: vehicle %s dropped person %d", ErrInconsistentSolution, sr.VehicleID, p)
		}
	}
	return nil
}

type locationIndex struct {
	coords []domain.Coord
	index  map[domain.Coord]int
}

func (l *locationIndex) add(c domain.Coord) {
	if l.index == nil {
		l.index = make(map[domain.Coord]int)
	}
	if _, ok := l.index[c]; ok {
		return
	}
	l.index[c] = len(l.coords)
	l.coords = append(l.coords, c)
}

// buildProblem snapshots every vehicle at now and assembles the VRP with req
// as the only new shipment.
func (d *Dispatcher) buildProblem(ctx context.Context, req Request) (*problemBuild, error) {
	now := d.env.Now()
	pb := &problemBuild{
		problem:   &ports.Problem{},
		positions: make(map[string]Position, len(d.vehicles)),
		requests:  map[int]Request{req.Person: req},
		committed: make(map[string][]int),
		owner:     make(map[int]string),
	}
	var locs locationIndex

	// Persons whose pickup is done or under way ride as services; persons
	// being dropped off right now leave the problem.
	onBoard := make(map[int]float64)
	leaving := make(map[int]bool)
	plannedDrop := make(map[int]float64)

	typeSeen := make(map[string]bool)
	for _, v := range d.vehicles {
		pos, err := v.Position(now)
		if err != nil {
			return nil, err
		}
		pb.positions[v.ID] = pos

		if pos.Act != nil {
			switch pos.Act.Type {
			case domain.ActPickUp:
				onBoard[pos.Act.Person] = pos.Act.StartTime
			case domain.ActDropOff, domain.ActDelivery:
				leaving[pos.Act.Person] = true
			}
		}
		for _, b := range v.passengers {
			onBoard[b.Request.Person] = b.PickupTime
		}
		for _, a := range v.route {
			if a.Type == domain.ActDropOff || a.Type == domain.ActDelivery {
				plannedDrop[a.Person] = a.StartTime
			}
		}

		pb.problem.Vehicles = append(pb.problem.Vehicles, ports.VRPVehicle{
			ID:        v.ID,
			TypeID:    v.Type.ID,
			Start:     pos.Coord,
			StartTime: pos.Time,
			End:       v.Home,
			EndTime:   max(d.horizon, pos.Time),
		})
		if !typeSeen[v.Type.ID] {
			typeSeen[v.Type.ID] = true
			pb.problem.Types = append(pb.problem.Types, v.Type)
		}
		locs.add(pos.Coord)
		locs.add(v.Home)
	}

	for _, v := range d.vehicles {
		pos := pb.positions[v.ID]
		var refs []ports.VRPActRef
		for _, a := range v.route {
			if a == pos.Act || !a.Type.IsService() || leaving[a.Person] {
				continue
			}
			ref := ports.VRPActRef{Person: a.Person}
			switch {
			case a.Type == domain.ActPickUp:
				ref.Type = ports.VRPPickup
			case a.Type == domain.ActDropOff && !isOnBoard(onBoard, a.Person):
				ref.Type = ports.VRPDelivery
			default:
				ref.Type = ports.VRPService
			}
			refs = append(refs, ref)
			if !slices.Contains(pb.committed[v.ID], a.Person) {
				pb.committed[v.ID] = append(pb.committed[v.ID], a.Person)
				pb.owner[a.Person] = v.ID
			}
		}
		if len(refs) > 0 {
			pb.problem.InitialRoutes = append(pb.problem.InitialRoutes, ports.InitialRoute{VehicleID: v.ID, Acts: refs})
		}
	}

	for _, person := range slices.Sorted(maps.Keys(d.bookings)) {
		b := d.bookings[person]
		if b.Status == BookingDelivered || leaving[person] {
			continue
		}
		r := b.Request
		pb.requests[person] = r

		if pickedUp, ok := onBoard[person]; ok {
			right := r.DeliveryTW.Right
			if r.MaxInVehicleTime > 0 {
				right = min(right, pickedUp+r.MaxInVehicleTime)
			}
			// Never tighter than what the committed route already promises.
			right = max(right, plannedDrop[person])
			pb.problem.Services = append(pb.problem.Services, ports.VRPJob{
				Person:   person,
				Delivery: ports.VRPStop{Coord: r.Delivery, Duration: r.LeavingTime, TW: domain.TimeWindow{Left: r.DeliveryTW.Left, Right: right}},
				Dims:     r.Dims,
			})
			locs.add(r.Delivery)
			continue
		}
		pb.problem.Shipments = append(pb.problem.Shipments, shipmentJob(r))
		locs.add(r.Pickup)
		locs.add(r.Delivery)
	}

	pb.problem.Shipments = append(pb.problem.Shipments, shipmentJob(req))
	locs.add(req.Pickup)
	locs.add(req.Delivery)

	cells, err := d.matrixCells(ctx, locs.coords)
	if err != nil {
		return nil, err
	}
	pb.problem.Locations = locs.coords
	pb.problem.Matrix = cells
	return pb, nil
}

func isOnBoard(onBoard map[int]float64, person int) bool {
	_, ok := onBoard[person]
	return ok
}

func shipmentJob(r Request) ports.VRPJob {
	return ports.VRPJob{
		Person:           r.Person,
		Pickup:           &ports.VRPStop{Coord: r.Pickup, Duration: r.BoardingTime, TW: r.PickupTW},
		Delivery:         ports.VRPStop{Coord: r.Delivery, Duration: r.LeavingTime, TW: r.DeliveryTW},
		Dims:             r.Dims,
		MaxInVehicleTime: r.MaxInVehicleTime,
	}
}

// matrixCells builds the directed time-distance cells for every ordered pair
// of locations, serving what it can from the TDM cache.
func (d *Dispatcher) matrixCells(ctx context.Context, locs []domain.Coord) ([]ports.MatrixCell, error) {
	cells := make([]ports.MatrixCell, 0, len(locs)*max(0, len(locs)-1))
	var (
		misses []ports.ODPair
		missAt []int
	)
	for i, from := range locs {
		entries, err := d.cache.LookupFrom(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("tdm lookup: %w", err)
		}
		known := make(map[domain.Coord]ports.TDMEntry, len(entries))
		for _, e := range entries {
			known[e.To] = e
		}

		for j, to := range locs {
			if i == j {
				continue
			}
			cell := ports.MatrixCell{From: i, To: j}
			if e, ok := known[to]; ok {
				cell.Duration, cell.Distance = e.Duration, e.Distance
			} else {
				misses = append(misses, ports.ODPair{From: from, To: to})
				missAt = append(missAt, len(cells))
			}
			cells = append(cells, cell)
		}
	}
	if len(misses) == 0 {
		return cells, nil
	}

	res, err := d.matrix.Matrix(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("tdm fetch %d pairs: %w", len(misses), err)
	}
	if len(res) != len(misses) {
		return nil, fmt.Errorf("tdm fetch: got %d results for %d pairs", len(res), len(misses))
	}
	for k, r := range res {
		c := &cells[missAt[k]]
		c.Duration, c.Distance = r.DurationSeconds, r.DistanceMeters
		if err := d.cache.Insert(ctx, misses[k].From, misses[k].To, c.Duration, c.Distance); err != nil {
			return nil, fmt.Errorf("tdm insert: %w", err)
		}
	}
	d.log.Debug().Int("locations", len(locs)).Int("fetched", len(misses)).Msg("tdm assembled")
	return cells, nil
}
