package routing

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/platform/obs"
	"drt-simulator/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type osrmManeuver struct {
	Location []float64 `json:"location"`
	Type     string    `json:"type"`
}

type osrmStep struct {
	Distance float64           `json:"distance"`
	Duration float64           `json:"duration"`
	Geometry *geojson.Geometry `json:"geometry"`
	Maneuver osrmManeuver      `json:"maneuver"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmRoute struct {
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Legs     []osrmLeg `json:"legs"`
}

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

// OSRMRouter implements ports.RoadRouter against an OSRM HTTP endpoint.
type OSRMRouter struct {
	client
	baseURL string
	profile string
}

func NewOSRMRouter(baseURL string) (*OSRMRouter, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("osrm router: base url is empty")
	}
	return &OSRMRouter{
		client:  newClient(10 * time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: "driving",
	}, nil
}

func lonLat(c domain.Coord) string {
	return fmt.Sprintf("%v,%v", c.Lon, c.Lat)
}

func toCoord(p orb.Point) domain.Coord { return domain.Coord{Lat: p.Lat(), Lon: p.Lon()} }

// Route returns one CAR leg from->to with step geometry, starting at time zero.
func (o *OSRMRouter) Route(ctx context.Context, from, to domain.Coord) (_ *domain.Trip, err error) {
	defer obs.Time(ctx, "osrm.Route")(&err)

	if from == to {
		return nil, ports.ErrTrivialPath
	}

	endpoint := fmt.Sprintf("%s/route/v1/%s/%s;%s?annotations=true&geometries=geojson&steps=true&overview=false",
		o.baseURL, o.profile, lonLat(from), lonLat(to))

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return newRequest(ctx, http.MethodGet, endpoint, "", nil)
	}, func(code int) bool { return code == http.StatusBadRequest })
	if err != nil {
		return nil, fmt.Errorf("osrm request failed: %w", err)
	}
	defer resp.Body.Close()

	var rr osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("%w: decode osrm response: %v", ports.ErrGeneralRouting, err)
	}

	switch rr.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return nil, fmt.Errorf("%w: %s", ports.ErrNoPath, rr.Message)
	default:
		return nil, fmt.Errorf("%w: osrm %s: %s", ports.ErrGeneralRouting, rr.Code, rr.Message)
	}
	if len(rr.Routes) == 0 {
		return nil, ports.ErrNoPath
	}

	route := rr.Routes[0]
	if route.Distance == 0 {
		return nil, ports.ErrTrivialPath
	}

	var steps []domain.Step
	for _, l := range route.Legs {
		for _, s := range l.Steps {
			steps = append(steps, convertStep(s))
		}
	}
	steps = domain.StripZeroSteps(steps)
	if len(steps) == 0 {
		steps = []domain.Step{{Start: from, End: to, Distance: route.Distance, Duration: route.Duration}}
	}

	leg := domain.Leg{
		Mode:  domain.ModeCar,
		Start: steps[0].Start,
		End:   steps[len(steps)-1].End,
	}
	for _, s := range steps {
		leg.Duration += s.Duration
		leg.Distance += s.Distance
	}
	leg.Steps = steps
	leg.EndTime = leg.Duration

	trip := &domain.Trip{MainMode: domain.ModeCar}
	trip.AppendLeg(leg)
	return trip, nil
}

func convertStep(s osrmStep) domain.Step {
	var start, end domain.Coord
	if len(s.Maneuver.Location) == 2 {
		start = domain.Coord{Lat: s.Maneuver.Location[1], Lon: s.Maneuver.Location[0]}
	}
	end = start
	if s.Geometry != nil {
		if ls, ok := s.Geometry.Geometry().(orb.LineString); ok && len(ls) > 0 {
			start = toCoord(ls[0])
			end = toCoord(ls[len(ls)-1])
		}
	}
	return domain.Step{Start: start, End: end, Distance: s.Distance, Duration: s.Duration}
}

// PlanRoad returns the driving trip departing at the given simulation time.
func (o *OSRMRouter) PlanRoad(ctx context.Context, from, to domain.Coord, at float64) (*domain.Trip, error) {
	trip, err := o.Route(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return shiftTrip(trip, at), nil
}

// shiftTrip moves every leg of a zero-based trip to start at t.
func shiftTrip(trip *domain.Trip, t float64) *domain.Trip {
	out := trip.DeepCopy()
	for i := range out.Legs {
		out.Legs[i].StartTime += t
		out.Legs[i].EndTime += t
	}
	out.Refresh()
	return out
}
