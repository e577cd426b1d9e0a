package domain

// VehicleType describes capacity and cost weights for a class of DRT vehicles.
type VehicleType struct {
	ID            string     `json:"id" yaml:"id"`
	Capacity      Dimensions `json:"capacity" yaml:"capacity"`
	CostPerMeter  float64    `json:"cost_per_meter" yaml:"cost_per_meter"`
	CostPerSecond float64    `json:"cost_per_second" yaml:"cost_per_second"`
	FixedCost     float64    `json:"fixed_cost" yaml:"fixed_cost"`
}

// VehicleStatus is the coarse state recorded in status samples.
type VehicleStatus string

const (
	StatusIdle    VehicleStatus = "IDLE"
	StatusDriving VehicleStatus = "DRIVING"
	StatusWaiting VehicleStatus = "WAITING"
	StatusService VehicleStatus = "SERVICE"
)

// StatusOf maps an act type to a vehicle status.
func StatusOf(t ActType) VehicleStatus {
	switch {
	case t.IsMove():
		return StatusDriving
	case t == ActWait:
		return StatusWaiting
	case t.IsService():
		return StatusService
	}
	return StatusIdle
}

// OccupancySample records the load of a vehicle at an instant.
type OccupancySample struct {
	Time        float64       `csv:"time" json:"time"`
	Status      VehicleStatus `csv:"status" json:"status"`
	Passengers  int           `csv:"passengers" json:"passengers"`
	Seats       int           `csv:"seats_used" json:"seats_used"`
	Wheelchairs int           `csv:"wheelchairs_used" json:"wheelchairs_used"`
	Kilometers  float64       `csv:"kilometers" json:"kilometers"`
}
