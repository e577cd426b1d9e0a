package solver

import (
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"strconv"
)

const jspritNamespace = "http://www.w3schools.com"

type xmlCoord struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
}

type xmlLocation struct {
	ID    string    `xml:"id"`
	Index int       `xml:"index"`
	Coord *xmlCoord `xml:"coord,omitempty"`
}

type xmlSchedule struct {
	Start float64 `xml:"start"`
	End   float64 `xml:"end"`
}

type xmlVehicle struct {
	ID            string      `xml:"id"`
	TypeID        string      `xml:"typeId"`
	StartLocation xmlLocation `xml:"startLocation"`
	EndLocation   xmlLocation `xml:"endLocation"`
	TimeSchedule  xmlSchedule `xml:"timeSchedule"`
	ReturnToDepot bool        `xml:"returnToDepot"`
}

type xmlDimension struct {
	Index int `xml:"index,attr"`
	Value int `xml:",chardata"`
}

type xmlCosts struct {
	Fixed    float64 `xml:"fixed"`
	Distance float64 `xml:"distance"`
	Time     float64 `xml:"time"`
}

type xmlVehicleType struct {
	ID       string         `xml:"id"`
	Capacity []xmlDimension `xml:"capacity-dimensions>dimension"`
	Costs    xmlCosts       `xml:"costs"`
}

type xmlTimeWindow struct {
	Start float64 `xml:"start"`
	End   float64 `xml:"end"`
}

type xmlStop struct {
	Location    xmlLocation     `xml:"location"`
	Duration    float64         `xml:"duration"`
	TimeWindows []xmlTimeWindow `xml:"timeWindows>timeWindow"`
}

type xmlService struct {
	ID       string          `xml:"id,attr"`
	Type     string          `xml:"type,attr"`
	Location xmlLocation     `xml:"location"`
	Capacity []xmlDimension  `xml:"capacity-dimensions>dimension"`
	Duration float64         `xml:"duration"`
	TWs      []xmlTimeWindow `xml:"timeWindows>timeWindow"`
}

type xmlShipment struct {
	ID               string         `xml:"id,attr"`
	Pickup           xmlStop        `xml:"pickup"`
	Delivery         xmlStop        `xml:"delivery"`
	Capacity         []xmlDimension `xml:"capacity-dimensions>dimension"`
	MaxTimeInVehicle float64        `xml:"maxTimeInVehicle,omitempty"`
}

type xmlAct struct {
	Type       string   `xml:"type,attr"`
	ShipmentID string   `xml:"shipmentId,omitempty"`
	ServiceID  string   `xml:"serviceId,omitempty"`
	ArrTime    *float64 `xml:"arrTime,omitempty"`
	EndTime    *float64 `xml:"endTime,omitempty"`
}

type xmlRoute struct {
	DriverID  string   `xml:"driverId"`
	VehicleID string   `xml:"vehicleId"`
	Start     float64  `xml:"start"`
	Acts      []xmlAct `xml:"act"`
	End       float64  `xml:"end"`
}

type xmlJob struct {
	ID string `xml:"id,attr"`
}

type xmlSolution struct {
	Cost       float64    `xml:"cost"`
	Routes     []xmlRoute `xml:"routes>route"`
	Unassigned []xmlJob   `xml:"unassignedJobs>job"`
}

type xmlProblem struct {
	XMLName       xml.Name         `xml:"problem"`
	Xmlns         string           `xml:"xmlns,attr,omitempty"`
	FleetSize     string           `xml:"problemType>fleetSize"`
	Vehicles      []xmlVehicle     `xml:"vehicles>vehicle"`
	VehicleTypes  []xmlVehicleType `xml:"vehicleTypes>type"`
	Services      []xmlService     `xml:"services>service,omitempty"`
	Shipments     []xmlShipment    `xml:"shipments>shipment,omitempty"`
	InitialRoutes []xmlRoute       `xml:"initialRoutes>route,omitempty"`
	Solutions     []xmlSolution    `xml:"solutions>solution,omitempty"`
}

func dimensions(d domain.Dimensions) []xmlDimension {
	out := make([]xmlDimension, 0, 2)
	for i, v := range d.List() {
		out = append(out, xmlDimension{Index: i, Value: v})
	}
	return out
}

func personID(p int) string { return strconv.Itoa(p) }

// WriteProblem encodes p in the jsprit problem format. Location ids are
// the dense indices of p.Locations.
func WriteProblem(w io.Writer, p *ports.Problem) error {
	index := p.LocationIndex()
	loc := func(c domain.Coord) (xmlLocation, error) {
		i, ok := index[c]
		if !ok {
			return xmlLocation{}, fmt.Errorf("write problem: coordinate %v has no index", c)
		}
		return xmlLocation{ID: strconv.Itoa(i), Index: i, Coord: &xmlCoord{X: c.Lon, Y: c.Lat}}, nil
	}
	stop := func(s ports.VRPStop) (xmlStop, error) {
		l, err := loc(s.Coord)
		if err != nil {
			return xmlStop{}, err
		}
		return xmlStop{
			Location:    l,
			Duration:    s.Duration,
			TimeWindows: []xmlTimeWindow{{Start: s.TW.Left, End: s.TW.Right}},
		}, nil
	}

	doc := xmlProblem{Xmlns: jspritNamespace, FleetSize: "FINITE"}

	for _, v := range p.Vehicles {
		start, err := loc(v.Start)
		if err != nil {
			return err
		}
		end, err := loc(v.End)
		if err != nil {
			return err
		}
		doc.Vehicles = append(doc.Vehicles, xmlVehicle{
			ID:            v.ID,
			TypeID:        v.TypeID,
			StartLocation: start,
			EndLocation:   end,
			TimeSchedule:  xmlSchedule{Start: v.StartTime, End: v.EndTime},
			ReturnToDepot: true,
		})
	}

	for _, t := range p.Types {
		doc.VehicleTypes = append(doc.VehicleTypes, xmlVehicleType{
			ID:       t.ID,
			Capacity: dimensions(t.Capacity),
			Costs:    xmlCosts{Fixed: t.FixedCost, Distance: t.CostPerMeter, Time: t.CostPerSecond},
		})
	}

	for _, j := range p.Services {
		d, err := stop(j.Delivery)
		if err != nil {
			return err
		}
		doc.Services = append(doc.Services, xmlService{
			ID:       personID(j.Person),
			Type:     ports.VRPService,
			Location: d.Location,
			Capacity: dimensions(j.Dims),
			Duration: d.Duration,
			TWs:      d.TimeWindows,
		})
	}

	for _, j := range p.Shipments {
		if j.Pickup == nil {
			return fmt.Errorf("write problem: shipment %d has no pickup", j.Person)
		}
		pu, err := stop(*j.Pickup)
		if err != nil {
			return err
		}
		de, err := stop(j.Delivery)
		if err != nil {
			return err
		}
		doc.Shipments = append(doc.Shipments, xmlShipment{
			ID:               personID(j.Person),
			Pickup:           pu,
			Delivery:         de,
			Capacity:         dimensions(j.Dims),
			MaxTimeInVehicle: j.MaxInVehicleTime,
		})
	}

	for _, r := range p.InitialRoutes {
		xr := xmlRoute{DriverID: "noDriver", VehicleID: r.VehicleID}
		for _, a := range r.Acts {
			xr.Acts = append(xr.Acts, refAct(a.Type, a.Person))
		}
		doc.InitialRoutes = append(doc.InitialRoutes, xr)
	}

	return encode(w, doc)
}

func refAct(typ string, person int) xmlAct {
	a := xmlAct{Type: typ}
	if typ == ports.VRPService {
		a.ServiceID = personID(person)
	} else {
		a.ShipmentID = personID(person)
	}
	return a
}

func encode(w io.Writer, doc xmlProblem) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode problem xml: %w", err)
	}
	return enc.Close()
}

// WriteSolution encodes s as the solutions section of a jsprit document.
func WriteSolution(w io.Writer, s *ports.Solution) error {
	xs := xmlSolution{Cost: s.Cost}
	for _, r := range s.Routes {
		xr := xmlRoute{DriverID: "noDriver", VehicleID: r.VehicleID, Start: r.Start, End: r.End}
		for _, a := range r.Acts {
			act := refAct(a.Type, a.Person)
			arr, end := a.ArrTime, a.EndTime
			act.ArrTime, act.EndTime = &arr, &end
			xr.Acts = append(xr.Acts, act)
		}
		xs.Routes = append(xs.Routes, xr)
	}
	for _, p := range s.Unassigned {
		xs.Unassigned = append(xs.Unassigned, xmlJob{ID: personID(p)})
	}
	return encode(w, xmlProblem{Xmlns: jspritNamespace, FleetSize: "FINITE", Solutions: []xmlSolution{xs}})
}

// ReadSolution decodes the cheapest solution of a jsprit output document.
func ReadSolution(r io.Reader) (*ports.Solution, error) {
	var doc xmlProblem
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode solution xml: %w", err)
	}
	if len(doc.Solutions) == 0 {
		return nil, fmt.Errorf("decode solution xml: no solution")
	}

	best := slices.MinFunc(doc.Solutions, func(a, b xmlSolution) int {
		switch {
		case a.Cost < b.Cost:
			return -1
		case a.Cost > b.Cost:
			return 1
		}
		return 0
	})

	out := &ports.Solution{Cost: best.Cost}
	for _, xr := range best.Routes {
		route := ports.SolutionRoute{VehicleID: xr.VehicleID, Start: xr.Start, End: xr.End}
		for i, xa := range xr.Acts {
			act, err := parseAct(xa)
			if err != nil {
				return nil, fmt.Errorf("route %s act %d: %w", xr.VehicleID, i, err)
			}
			route.Acts = append(route.Acts, act)
		}
		out.Routes = append(out.Routes, route)
	}
	for _, j := range best.Unassigned {
		p, err := strconv.Atoi(j.ID)
		if err != nil {
			return nil, fmt.Errorf("unassigned job %q: %w", j.ID, err)
		}
		out.Unassigned = append(out.Unassigned, p)
	}
	return out, nil
}

func parseAct(xa xmlAct) (ports.VRPAct, error) {
	typ := xa.Type
	id := xa.ShipmentID
	switch typ {
	case ports.VRPPickup, ports.VRPDelivery:
	case ports.VRPService, "service":
		typ = ports.VRPService
		id = xa.ServiceID
	default:
		return ports.VRPAct{}, fmt.Errorf("unknown act type %q", xa.Type)
	}

	p, err := strconv.Atoi(id)
	if err != nil {
		return ports.VRPAct{}, fmt.Errorf("job id %q: %w", id, err)
	}
	if xa.ArrTime == nil || xa.EndTime == nil {
		return ports.VRPAct{}, fmt.Errorf("act %s of %d has no times", typ, p)
	}
	return ports.VRPAct{Type: typ, Person: p, ArrTime: *xa.ArrTime, EndTime: *xa.EndTime}, nil
}
