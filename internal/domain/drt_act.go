package domain

import (
	"fmt"
	"math"
)

// ActType is the kind of entry in a vehicle schedule.
type ActType string

const (
	ActPickUp   ActType = "PICK_UP"
	ActDropOff  ActType = "DROP_OFF"
	ActDelivery ActType = "DELIVERY"
	ActDrive    ActType = "DRIVE"
	ActWait     ActType = "WAIT"
	ActReturn   ActType = "RETURN"
	ActIdle     ActType = "IDLE"
)

// IsMove reports acts that change the vehicle position.
func (t ActType) IsMove() bool { return t == ActDrive || t == ActReturn }

// IsService reports acts that board or unload a traveler.
func (t ActType) IsService() bool {
	return t == ActPickUp || t == ActDropOff || t == ActDelivery
}

// NoPerson marks acts that serve nobody.
const NoPerson = 0

// DrtAct is one entry of a vehicle's committed route.
type DrtAct struct {
	Type       ActType `json:"type"`
	Person     int     `json:"person,omitempty"`
	StartCoord Coord   `json:"start_coord"`
	EndCoord   Coord   `json:"end_coord"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Duration   float64 `json:"duration"`
	// Distance is NaN until the route geometry is materialized.
	Distance float64 `json:"distance"`
	Steps    []Step  `json:"steps,omitempty"`
}

// NewStationaryAct builds a non-moving act at one coordinate.
func NewStationaryAct(t ActType, person int, at Coord, start, duration float64) *DrtAct {
	return &DrtAct{
		Type:       t,
		Person:     person,
		StartCoord: at,
		EndCoord:   at,
		StartTime:  start,
		EndTime:    start + duration,
		Duration:   duration,
	}
}

// NewMoveAct builds a DRIVE or RETURN act whose geometry is not yet known.
func NewMoveAct(t ActType, from, to Coord, start, duration float64) *DrtAct {
	return &DrtAct{
		Type:       t,
		StartCoord: from,
		EndCoord:   to,
		StartTime:  start,
		EndTime:    start + duration,
		Duration:   duration,
		Distance:   math.NaN(),
	}
}

// Materialized reports whether step geometry and distance are known.
func (a *DrtAct) Materialized() bool {
	return !math.IsNaN(a.Distance)
}

// Validate checks the stationary-act invariant and time consistency.
func (a *DrtAct) Validate() error {
	if !a.Type.IsMove() {
		if a.StartCoord != a.EndCoord {
			return fmt.Errorf("act %s: stationary act changes position", a.Type)
		}
		if a.Distance != 0 {
			return fmt.Errorf("act %s: stationary act has distance %.1f", a.Type, a.Distance)
		}
	}
	if a.Duration < 0 {
		return fmt.Errorf("act %s: negative duration", a.Type)
	}
	if math.Abs(a.EndTime-a.StartTime-a.Duration) > legDurationTolerance {
		return fmt.Errorf("act %s: end-start %.1f differs from duration %.1f", a.Type, a.EndTime-a.StartTime, a.Duration)
	}
	return nil
}

// Route is a vehicle's ordered list of acts; Route[0] is executing.
type Route []*DrtAct

