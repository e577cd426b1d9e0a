package domain

import "slices"

// Dimensions is the space a traveler occupies and a vehicle offers.
type Dimensions struct {
	Seats       int `json:"seats" yaml:"seats"`
	Wheelchairs int `json:"wheelchairs" yaml:"wheelchairs"`
}

func (d Dimensions) Add(o Dimensions) Dimensions {
	return Dimensions{Seats: d.Seats + o.Seats, Wheelchairs: d.Wheelchairs + o.Wheelchairs}
}

func (d Dimensions) Sub(o Dimensions) Dimensions {
	return Dimensions{Seats: d.Seats - o.Seats, Wheelchairs: d.Wheelchairs - o.Wheelchairs}
}

// Fits reports whether o fits into d in every dimension.
func (d Dimensions) Fits(o Dimensions) bool {
	return o.Seats <= d.Seats && o.Wheelchairs <= d.Wheelchairs
}

// Negative reports an underflow in any dimension.
func (d Dimensions) Negative() bool {
	return d.Seats < 0 || d.Wheelchairs < 0
}

// List returns the dimensions in solver order (seats, wheelchairs).
func (d Dimensions) List() []int { return []int{d.Seats, d.Wheelchairs} }

// Attributes are the per-traveler parameters used by planners and the DRT service.
type Attributes struct {
	WalkSpeed          float64    `json:"walk_speed"`
	MaxWalkingDistance float64    `json:"max_walking_distance"`
	BoardingTime       float64    `json:"boarding_s"`
	LeavingTime        float64    `json:"leaving_s"`
	Dims               Dimensions `json:"dimensions"`
	DrivingLicense     bool       `json:"driving_license"`
	Age                int        `json:"age"`
	MaxIVTMultiplier   float64    `json:"max_ivt_multiplier"`
	MaxIVTConstant     float64    `json:"max_ivt_constant"`
	Modes              []Mode     `json:"modes"`
}

func (a Attributes) HasMode(m Mode) bool { return slices.Contains(a.Modes, m) }

// TravelType classifies a trip by DRT zone membership of its ends.
type TravelType string

const (
	TravelWithin TravelType = "WITHIN"
	TravelIn     TravelType = "IN"
	TravelOut    TravelType = "OUT"
	// Neither end lies in the DRT zone; DRT alternatives are never generated.
	TravelExternal TravelType = "EXTERNAL"
)

// ClassifyTravel derives the travel type from origin/destination zones.
func ClassifyTravel(originZone, destZone int, drtZones []int) TravelType {
	o := slices.Contains(drtZones, originZone)
	d := slices.Contains(drtZones, destZone)
	switch {
	case o && d:
		return TravelWithin
	case d:
		return TravelIn
	case o:
		return TravelOut
	}
	return TravelExternal
}

// TimeWindow is an interval [Left, Right] in simulation seconds.
type TimeWindow struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

func (w TimeWindow) Contains(t float64) bool { return t >= w.Left && t <= w.Right }

// Clip bounds the window to [lo, hi].
func (w TimeWindow) Clip(lo, hi float64) TimeWindow {
	return TimeWindow{Left: max(w.Left, lo), Right: min(w.Right, hi)}
}
