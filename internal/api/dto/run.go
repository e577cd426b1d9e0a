package dto

type SummaryResponse struct {
	StartSeconds   float64        `json:"start_s"`
	HorizonSeconds float64        `json:"horizon_s"`
	ExecutedTrips  int            `json:"executed_trips"`
	Counters       map[string]int `json:"counters"`
	Exits          map[string]int `json:"exits"`
}

type VehicleResponse struct {
	VehicleID       string  `json:"vehicle_id"`
	Type            string  `json:"type"`
	Kilometers      float64 `json:"kilometers"`
	RideTimeSeconds float64 `json:"ride_time_s"`
	Served          int     `json:"served"`
}

type ListVehiclesResponse struct {
	Vehicles []VehicleResponse `json:"vehicles"`
}

type OccupancySampleResponse struct {
	Time        float64 `json:"time_s"`
	Status      string  `json:"status"`
	Passengers  int     `json:"passengers"`
	Seats       int     `json:"seats_used"`
	Wheelchairs int     `json:"wheelchairs_used"`
	Kilometers  float64 `json:"kilometers"`
}

type OccupancyShareResponse struct {
	Passengers int     `json:"passengers"`
	Seconds    float64 `json:"seconds"`
	Kilometers float64 `json:"kilometers"`
}

type OccupancyResponse struct {
	VehicleID string                    `json:"vehicle_id"`
	Samples   []OccupancySampleResponse `json:"samples"`
	Shares    []OccupancyShareResponse  `json:"shares"`
}
