package report

import (
	"cmp"
	"drt-simulator/internal/domain"
	"slices"
)

// OccupancyShare is the time and distance a vehicle spent at one load.
type OccupancyShare struct {
	Vehicle    string  `csv:"vehicle" json:"vehicle"`
	Passengers int     `csv:"passengers" json:"passengers"`
	Seconds    float64 `csv:"seconds" json:"seconds"`
	Kilometers float64 `csv:"kilometers" json:"kilometers"`
}

// OccupancyShares integrates the samples up to the horizon. Each sample
// holds until the next one.
func OccupancyShares(vehicle string, samples []domain.OccupancySample, horizon float64) []OccupancyShare {
	byLoad := make(map[int]*OccupancyShare)
	for i, s := range samples {
		end, km := horizon, s.Kilometers
		if i+1 < len(samples) {
			end, km = samples[i+1].Time, samples[i+1].Kilometers
		}
		sh, ok := byLoad[s.Passengers]
		if !ok {
			sh = &OccupancyShare{Vehicle: vehicle, Passengers: s.Passengers}
			byLoad[s.Passengers] = sh
		}
		sh.Seconds += max(0, end-s.Time)
		sh.Kilometers += max(0, km-s.Kilometers)
	}

	out := make([]OccupancyShare, 0, len(byLoad))
	for _, sh := range byLoad {
		out = append(out, *sh)
	}
	slices.SortFunc(out, func(a, b OccupancyShare) int { return cmp.Compare(a.Passengers, b.Passengers) })
	return out
}
