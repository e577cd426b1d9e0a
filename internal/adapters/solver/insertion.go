package solver

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"fmt"
	"math"
	"slices"
)

// InsertionSolver is the in-process fallback when no external solver is
// configured. It keeps every initial route in its given order and inserts
// each remaining shipment at the cheapest feasible pickup/delivery positions.
// Jobs with no feasible insertion are reported unassigned.
type InsertionSolver struct {
	Calls int
	// LastProblem is the most recent input, kept for assertions.
	LastProblem *ports.Problem
}

type visit struct {
	typ    string
	person int
	stop   ports.VRPStop
	dims   domain.Dimensions
	maxIVT float64
}

type timing struct {
	arr, end float64
}

type evaluation struct {
	ok      bool
	cost    float64
	times   []timing
	endTime float64
	// arrival and in-vehicle time per visit key
	arrs map[int]float64
	ivts map[int]float64
}

type problemView struct {
	p      *ports.Problem
	index  map[domain.Coord]int
	cells  map[[2]int]ports.MatrixCell
	types  map[string]domain.VehicleType
	jobs   map[int]ports.VRPJob
	pinned map[int]bool
}

func (pv *problemView) leg(a, b domain.Coord) (float64, float64, error) {
	if a == b {
		return 0, 0, nil
	}
	c, ok := pv.cells[[2]int{pv.index[a], pv.index[b]}]
	if !ok {
		return 0, 0, fmt.Errorf("matrix has no entry %v->%v", a, b)
	}
	return c.Duration, c.Distance, nil
}

func (s *InsertionSolver) Solve(_ context.Context, p *ports.Problem) (*ports.Solution, error) {
	s.Calls++
	s.LastProblem = p

	pv := &problemView{
		p:      p,
		index:  p.LocationIndex(),
		cells:  make(map[[2]int]ports.MatrixCell, len(p.Matrix)),
		types:  map[string]domain.VehicleType{},
		jobs:   map[int]ports.VRPJob{},
		pinned: map[int]bool{},
	}
	for _, c := range p.Matrix {
		pv.cells[[2]int{c.From, c.To}] = c
	}
	for _, t := range p.Types {
		pv.types[t.ID] = t
	}
	for _, j := range append(slices.Clone(p.Shipments), p.Services...) {
		pv.jobs[j.Person] = j
	}

	routes := make([][]visit, len(p.Vehicles))
	baselines := make([]evaluation, len(p.Vehicles))
	for vi, v := range p.Vehicles {
		for _, ir := range p.InitialRoutes {
			if ir.VehicleID != v.ID {
				continue
			}
			for _, ref := range ir.Acts {
				vis, err := pv.visitOf(ref.Type, ref.Person)
				if err != nil {
					return nil, err
				}
				routes[vi] = append(routes[vi], vis)
				pv.pinned[ref.Person] = true
			}
		}
		base, err := pv.evaluate(vi, routes[vi], nil)
		if err != nil {
			return nil, err
		}
		baselines[vi] = base
	}

	var unassigned []int
	var open []ports.VRPJob
	for _, j := range p.Shipments {
		if !pv.pinned[j.Person] {
			open = append(open, j)
		}
	}
	for _, j := range p.Services {
		if !pv.pinned[j.Person] {
			unassigned = append(unassigned, j.Person)
		}
	}
	slices.SortFunc(open, func(a, b ports.VRPJob) int { return a.Person - b.Person })

	for _, job := range open {
		pick, _ := pv.visitOf(ports.VRPPickup, job.Person)
		drop, _ := pv.visitOf(ports.VRPDelivery, job.Person)

		bestVehicle, bestCost := -1, math.Inf(1)
		var bestRoute []visit
		var bestEval evaluation
		for vi := range p.Vehicles {
			cur := routes[vi]
			for i := 0; i <= len(cur); i++ {
				for j := i; j <= len(cur); j++ {
					cand := make([]visit, 0, len(cur)+2)
					cand = append(cand, cur[:i]...)
					cand = append(cand, pick)
					cand = append(cand, cur[i:j]...)
					cand = append(cand, drop)
					cand = append(cand, cur[j:]...)

					ev, err := pv.evaluate(vi, cand, &baselines[vi])
					if err != nil {
						return nil, err
					}
					if !ev.ok {
						continue
					}
					added := ev.cost - baselines[vi].cost
					if added < bestCost-1e-9 {
						bestVehicle, bestCost, bestRoute, bestEval = vi, added, cand, ev
					}
				}
			}
		}

		if bestVehicle < 0 {
			unassigned = append(unassigned, job.Person)
			continue
		}
		routes[bestVehicle] = bestRoute
		baselines[bestVehicle] = bestEval
	}

	sol := &ports.Solution{Unassigned: unassigned}
	for vi, v := range p.Vehicles {
		if len(routes[vi]) == 0 {
			continue
		}
		ev := baselines[vi]
		r := ports.SolutionRoute{VehicleID: v.ID, Start: v.StartTime, End: ev.endTime}
		for k, vis := range routes[vi] {
			r.Acts = append(r.Acts, ports.VRPAct{
				Type:    vis.typ,
				Person:  vis.person,
				ArrTime: ev.times[k].arr,
				EndTime: ev.times[k].end,
			})
		}
		sol.Routes = append(sol.Routes, r)
		sol.Cost += ev.cost
	}
	return sol, nil
}

func (pv *problemView) visitOf(typ string, person int) (visit, error) {
	j, ok := pv.jobs[person]
	if !ok {
		return visit{}, fmt.Errorf("initial route references unknown job %d", person)
	}
	v := visit{typ: typ, person: person, dims: j.Dims, maxIVT: j.MaxInVehicleTime}
	switch typ {
	case ports.VRPPickup:
		if j.Pickup == nil {
			return visit{}, fmt.Errorf("job %d has no pickup", person)
		}
		v.stop = *j.Pickup
	case ports.VRPDelivery, ports.VRPService:
		v.stop = j.Delivery
	default:
		return visit{}, fmt.Errorf("unknown act type %q", typ)
	}
	return v, nil
}

// evaluate schedules the visits of vehicle vi. With a baseline, a visit may
// keep a lateness it already had, but nothing may get worse.
func (pv *problemView) evaluate(vi int, visits []visit, base *evaluation) (evaluation, error) {
	v := pv.p.Vehicles[vi]
	vt := pv.types[v.TypeID]

	var load domain.Dimensions
	for _, vis := range visits {
		if vis.typ == ports.VRPService {
			load = load.Add(vis.dims)
		}
	}

	ev := evaluation{
		ok:    true,
		times: make([]timing, len(visits)),
		arrs:  make(map[int]float64, len(visits)),
		ivts:  map[int]float64{},
	}

	pos, t := v.Start, v.StartTime
	var dist float64
	pickedAt := map[int]float64{}
	for k, vis := range visits {
		dur, d, err := pv.leg(pos, vis.stop.Coord)
		if err != nil {
			return evaluation{}, err
		}
		arr := t + dur
		dist += d
		key := visitKey(vis)

		limit := vis.stop.TW.Right
		if base != nil {
			if b, ok := base.arrs[key]; ok {
				limit = max(limit, b)
			}
		}
		if arr > limit+1e-6 {
			ev.ok = false
		}

		start := max(arr, vis.stop.TW.Left)
		end := start + vis.stop.Duration
		ev.times[k] = timing{arr: arr, end: end}
		ev.arrs[key] = arr

		switch vis.typ {
		case ports.VRPPickup:
			load = load.Add(vis.dims)
			pickedAt[vis.person] = end
		case ports.VRPDelivery, ports.VRPService:
			if p, ok := pickedAt[vis.person]; ok && vis.maxIVT > 0 {
				ivt := arr - p
				ev.ivts[key] = ivt
				limit := vis.maxIVT
				if base != nil {
					if b, ok := base.ivts[key]; ok {
						limit = max(limit, b)
					}
				}
				if ivt > limit+1e-6 {
					ev.ok = false
				}
			}
			load = load.Sub(vis.dims)
		}
		if !vt.Capacity.Fits(load) || load.Negative() {
			ev.ok = false
		}

		pos, t = vis.stop.Coord, end
	}

	dur, d, err := pv.leg(pos, v.End)
	if err != nil {
		return evaluation{}, err
	}
	ev.endTime = t + dur
	dist += d
	if ev.endTime > v.EndTime+1e-6 && (base == nil || ev.endTime > base.endTime+1e-6) {
		ev.ok = false
	}

	ev.cost = dist*vt.CostPerMeter + (ev.endTime-v.StartTime)*vt.CostPerSecond + vt.FixedCost
	if vt.CostPerMeter == 0 && vt.CostPerSecond == 0 {
		ev.cost = ev.endTime - v.StartTime
	}
	return ev, nil
}

func refKey(typ string, person int) int {
	if typ == ports.VRPPickup {
		return 2 * person
	}
	return 2*person + 1
}

func visitKey(v visit) int { return refKey(v.typ, v.person) }
