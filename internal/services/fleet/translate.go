package fleet

import (
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"fmt"
)

// translate turns a solved route into the acts a vehicle executes, starting
// from the position the route was solved for.
//
// Each visit becomes DRIVE, an optional WAIT and the service act. A route
// with visits always ends with a RETURN to home. A partially driven step in pos is prepended to
// the first DRIVE.
func translate(r ports.SolutionRoute, pos Position, home domain.Coord, reqs map[int]Request) (domain.Route, error) {
	var out domain.Route
	coord, t := pos.Coord, pos.Time
	if pos.Act != nil {
		out = append(out, pos.Act)
	}
	splice := pos.Step

	move := func(typ domain.ActType, to domain.Coord, arr float64) {
		arr = max(arr, t)
		if splice != nil {
			a := domain.NewMoveAct(typ, splice.Start, to, pos.StepStart, arr-pos.StepStart)
			a.Steps = []domain.Step{*splice}
			out = append(out, a)
			splice = nil
			return
		}
		if coord == to {
			if arr-t > timeEps {
				out = append(out, domain.NewStationaryAct(domain.ActWait, domain.NoPerson, coord, t, arr-t))
			}
			return
		}
		out = append(out, domain.NewMoveAct(typ, coord, to, t, arr-t))
	}

	for _, a := range r.Acts {
		req, ok := reqs[a.Person]
		if !ok {
			return nil, fmt.Errorf("translate: route %s visits unknown person %d", r.VehicleID, a.Person)
		}

		var (
			typ     domain.ActType
			at      domain.Coord
			service float64
		)
		switch a.Type {
		case ports.VRPPickup:
			typ, at, service = domain.ActPickUp, req.Pickup, req.BoardingTime
		case ports.VRPDelivery:
			typ, at, service = domain.ActDropOff, req.Delivery, req.LeavingTime
		case ports.VRPService:
			typ, at, service = domain.ActDelivery, req.Delivery, req.LeavingTime
		default:
			return nil, fmt.Errorf("translate: route %s has act type %q", r.VehicleID, a.Type)
		}

		move(domain.ActDrive, at, a.ArrTime)
		arr := max(a.ArrTime, t)
		start := max(a.EndTime-service, arr)
		if wait := start - arr; wait > timeEps {
			out = append(out, domain.NewStationaryAct(domain.ActWait, domain.NoPerson, at, arr, wait))
		} else {
			start = arr
		}
		out = append(out, domain.NewStationaryAct(typ, a.Person, at, start, service))
		coord, t = at, start+service
	}

	if coord == home && splice == nil && len(r.Acts) > 0 {
		// Dropped off at the depot: the route still closes with a zero-length RETURN.
		ret := domain.NewMoveAct(domain.ActReturn, home, home, t, 0)
		ret.Distance = 0
		return append(out, ret), nil
	}
	move(domain.ActReturn, home, r.End)
	return out, nil
}

// serviceTimes returns the planned start of the person's pickup and the end of their drop-off.
func serviceTimes(route domain.Route, person int) (pickup, dropoff float64, ok bool) {
	var seenPick, seenDrop bool
	for _, a := range route {
		if a.Person != person {
			continue
		}
		switch a.Type {
		case domain.ActPickUp:
			pickup, seenPick = a.StartTime, true
		case domain.ActDropOff, domain.ActDelivery:
			dropoff, seenDrop = a.EndTime, true
		}
	}
	return pickup, dropoff, seenPick && seenDrop
}
