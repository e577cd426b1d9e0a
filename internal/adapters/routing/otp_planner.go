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
	"net/url"
	"strconv"
	"strings"
	"time"
)

// otpModes maps simulator modes to the planner's mode parameter.
var otpModes = map[domain.Mode]string{
	domain.ModeCar:                  "CAR",
	domain.ModeWalk:                 "WALK",
	domain.ModeTransit:              "TRANSIT,WALK",
	domain.ModeBus:                  "BUS,WALK",
	domain.ModeRail:                 "RAIL,WALK",
	domain.ModeBicycle:              "BICYCLE",
	domain.ModeBicycleTransit:       "BICYCLE,TRANSIT",
	domain.ModeParkRide:             "CAR_PARK,TRANSIT,WALK",
	domain.ModeKissRide:             "CAR_PICKUP,TRANSIT,WALK",
	domain.ModeRideKiss:             "CAR_DROPOFF,TRANSIT,WALK",
	domain.ModeBikeRide:             "BICYCLE_PARK,TRANSIT,WALK",
	domain.ModeRentedBicycle:        "BICYCLE_RENT,WALK",
	domain.ModeTransitRentedBicycle: "BICYCLE_RENT,TRANSIT,WALK",
}

type otpPlace struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	StopID string  `json:"stopId"`
}

type otpStep struct {
	Distance float64 `json:"distance"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

type otpLeg struct {
	Mode      string    `json:"mode"`
	StartTime int64     `json:"startTime"`
	EndTime   int64     `json:"endTime"`
	Distance  float64   `json:"distance"`
	From      otpPlace  `json:"from"`
	To        otpPlace  `json:"to"`
	Steps     []otpStep `json:"steps"`
}

type otpItinerary struct {
	Legs []otpLeg `json:"legs"`
}

type otpError struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

type otpResponse struct {
	Plan *struct {
		Itineraries []otpItinerary `json:"itineraries"`
	} `json:"plan"`
	Error *otpError `json:"error"`
}

// OTPPlanner implements ports.TransitPlanner against an OpenTripPlanner REST endpoint.
// Simulation times are seconds since midnight of the simulated date; the
// planner speaks epoch milliseconds.
type OTPPlanner struct {
	client
	baseURL string
	epoch   int64
	loc     *time.Location
}

func NewOTPPlanner(baseURL string, epoch int64, loc *time.Location) (*OTPPlanner, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("otp planner: base url is empty")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &OTPPlanner{
		client:  newClient(30 * time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
		epoch:   epoch,
		loc:     loc,
	}, nil
}

// classifyOTPError maps the planner error id onto the local taxonomy.
func classifyOTPError(e *otpError) error {
	msg := e.Message
	if msg == "" {
		msg = e.Msg
	}
	switch e.ID {
	case 409:
		return fmt.Errorf("%w: %s", ports.ErrTrivialPath, msg)
	case 400, 404, 406, 470:
		return fmt.Errorf("%w: %s", ports.ErrNoPath, msg)
	}
	return fmt.Errorf("%w: otp error %d: %s", ports.ErrGeneralRouting, e.ID, msg)
}

func (o *OTPPlanner) query(from, to domain.Coord, at float64, opts ports.PlanOptions) (url.Values, error) {
	modes := make([]string, 0, len(opts.Modes))
	for _, m := range opts.Modes {
		s, ok := otpModes[m]
		if !ok {
			return nil, fmt.Errorf("%w: mode %s has no planner equivalent", ports.ErrGeneralRouting, m)
		}
		modes = append(modes, s)
	}

	when := time.Unix(o.epoch+int64(at), 0).In(o.loc)

	q := url.Values{}
	q.Set("fromPlace", from.String())
	q.Set("toPlace", to.String())
	q.Set("date", when.Format("01-02-2006"))
	q.Set("time", when.Format("15:04:05"))
	q.Set("mode", strings.Join(modes, ","))
	q.Set("arriveBy", strconv.FormatBool(opts.ArriveBy))
	if opts.MaxWalkDistance > 0 {
		q.Set("maxWalkDistance", strconv.FormatFloat(opts.MaxWalkDistance, 'f', -1, 64))
	}
	if opts.WalkSpeed > 0 {
		q.Set("walkSpeed", strconv.FormatFloat(opts.WalkSpeed, 'f', -1, 64))
	}
	if opts.MaxPreTransitTime > 0 {
		q.Set("maxPreTransitTime", strconv.Itoa(int(opts.MaxPreTransitTime)))
	}
	if len(opts.BannedTrips) > 0 {
		q.Set("bannedTrips", strings.Join(opts.BannedTrips, ","))
	}
	if len(opts.BannedStops) > 0 {
		q.Set("bannedStops", strings.Join(opts.BannedStops, ","))
	}
	return q, nil
}

// PlanTransit queries the planner and converts every itinerary into a Trip.
func (o *OTPPlanner) PlanTransit(
	ctx context.Context,
	from, to domain.Coord,
	at float64,
	opts ports.PlanOptions,
) (_ []*domain.Trip, err error) {
	defer obs.Time(ctx, "otp.PlanTransit")(&err)

	if from == to {
		return nil, ports.ErrTrivialPath
	}

	q, err := o.query(from, to, at, opts)
	if err != nil {
		return nil, err
	}
	endpoint := o.baseURL + "/plan?" + q.Encode()

	// Planner errors arrive as JSON bodies; only 5xx are transport failures.
	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return newRequest(ctx, http.MethodGet, endpoint, "", nil)
	}, func(code int) bool { return code < 500 })
	if err != nil {
		return nil, fmt.Errorf("otp request failed: %w", err)
	}
	defer resp.Body.Close()

	var pr otpResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decode otp response: %v", ports.ErrGeneralRouting, err)
	}
	if pr.Error != nil {
		return nil, classifyOTPError(pr.Error)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: otp status %d", ports.ErrGeneralRouting, resp.StatusCode)
	}
	if pr.Plan == nil || len(pr.Plan.Itineraries) == 0 {
		return nil, ports.ErrNoPath
	}

	requested := domain.ModeTransit
	if len(opts.Modes) > 0 {
		requested = opts.Modes[0]
	}

	trips := make([]*domain.Trip, 0, len(pr.Plan.Itineraries))
	for _, it := range pr.Plan.Itineraries {
		trip := o.toTrip(it)
		if len(trip.Legs) == 0 {
			continue
		}
		trip.MainMode = compositeMode(requested, trip)
		trips = append(trips, trip)
	}
	if len(trips) == 0 {
		return nil, ports.ErrNoPath
	}
	return trips, nil
}

func (o *OTPPlanner) simTime(ms int64) float64 {
	return float64(ms)/1000 - float64(o.epoch)
}

func (o *OTPPlanner) toTrip(it otpItinerary) *domain.Trip {
	trip := &domain.Trip{}
	for _, l := range it.Legs {
		leg := domain.Leg{
			Mode:      legMode(l.Mode),
			Start:     domain.Coord{Lat: l.From.Lat, Lon: l.From.Lon},
			End:       domain.Coord{Lat: l.To.Lat, Lon: l.To.Lon},
			FromStop:  stopID(l.From.StopID),
			ToStop:    stopID(l.To.StopID),
			StartTime: o.simTime(l.StartTime),
			EndTime:   o.simTime(l.EndTime),
			Distance:  l.Distance,
		}
		leg.Duration = leg.EndTime - leg.StartTime
		leg.Steps = legSteps(leg, l.Steps)
		trip.Legs = append(trip.Legs, leg)
	}
	trip.Refresh()
	return trip
}

// legSteps spreads the leg duration over the planner's steps by distance share.
// Legs without steps become one step spanning the leg.
func legSteps(leg domain.Leg, raw []otpStep) []domain.Step {
	var total float64
	for _, s := range raw {
		total += s.Distance
	}
	if len(raw) == 0 || total <= 0 {
		return []domain.Step{{Start: leg.Start, End: leg.End, Distance: leg.Distance, Duration: leg.Duration}}
	}

	steps := make([]domain.Step, 0, len(raw))
	var assigned float64
	for i, s := range raw {
		start := domain.Coord{Lat: s.Lat, Lon: s.Lon}
		if i == 0 {
			start = leg.Start
		}
		end := leg.End
		if i+1 < len(raw) {
			end = domain.Coord{Lat: raw[i+1].Lat, Lon: raw[i+1].Lon}
		}
		dur := leg.Duration * s.Distance / total
		if i == len(raw)-1 {
			dur = leg.Duration - assigned
		}
		assigned += dur
		steps = append(steps, domain.Step{Start: start, End: end, Distance: s.Distance, Duration: dur})
	}
	return steps
}

func legMode(m string) domain.Mode {
	switch m {
	case "WALK":
		return domain.ModeWalk
	case "CAR":
		return domain.ModeCar
	case "BICYCLE":
		return domain.ModeBicycle
	case "BUS":
		return domain.ModeBus
	case "RAIL", "SUBWAY", "TRAM", "MONORAIL", "FUNICULAR":
		return domain.ModeRail
	}
	return domain.ModeTransit
}

// stopID strips the feed prefix of "feed:id" stop references.
func stopID(s string) string {
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// compositeMode names a multimodal itinerary after the requested combination
// when it actually combines a car or bicycle access leg with PT.
func compositeMode(requested domain.Mode, trip *domain.Trip) domain.Mode {
	var hasCar, hasBike, hasPT bool
	for _, l := range trip.Legs {
		switch {
		case l.Mode == domain.ModeCar:
			hasCar = true
		case l.Mode == domain.ModeBicycle:
			hasBike = true
		case l.Mode.IsPT():
			hasPT = true
		}
	}

	switch requested {
	case domain.ModeParkRide, domain.ModeKissRide, domain.ModeRideKiss:
		if hasCar && hasPT {
			return requested
		}
	case domain.ModeBikeRide, domain.ModeBicycleTransit, domain.ModeTransitRentedBicycle:
		if hasBike && hasPT {
			return requested
		}
	case domain.ModeRentedBicycle:
		if hasBike {
			return requested
		}
	}
	return trip.MainModeFromLegs()
}
