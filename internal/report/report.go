// Package report writes the outputs of a finished run and reads them back
// for the report server.
package report

import (
	"drt-simulator/internal/services/fleet"
	"drt-simulator/internal/simulation"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
)

// Output file names inside the run directory.
const (
	SummaryFile  = "summary.json"
	TripsFile    = "trips.json"
	VehiclesFile = "vehicles.csv"
	SharesFile   = "occupancy_shares.csv"
	VisualFile   = "drt_trips.geojson"
	EventsFile   = "travelers.log"
	LogFile      = "drtsim.log"
)

func OccupancyFile(vehicle string) string { return "occupancy_" + vehicle + ".csv" }

type VehicleSummary struct {
	ID         string  `json:"id" csv:"vehicle"`
	Type       string  `json:"type" csv:"type"`
	Kilometers float64 `json:"kilometers" csv:"kilometers"`
	RideTime   float64 `json:"ride_time_s" csv:"ride_time_s"`
	Served     int     `json:"served" csv:"served"`
}

type Summary struct {
	Start    float64          `json:"start_s"`
	Horizon  float64          `json:"horizon_s"`
	Trips    int              `json:"executed_trips"`
	Counters map[string]int   `json:"counters"`
	Exits    map[string]int   `json:"exits"`
	Vehicles []VehicleSummary `json:"vehicles"`
}

func Summarize(res *simulation.Result) Summary {
	s := Summary{
		Start:    res.Start,
		Horizon:  res.Horizon,
		Trips:    len(res.Trips),
		Counters: res.Counters,
		Exits:    make(map[string]int, len(res.Exits)),
	}
	for tr, n := range res.Exits {
		s.Exits[string(tr)] = n
	}

	served := make(map[string]int)
	for _, b := range res.Bookings {
		if b.Status == fleet.BookingDelivered {
			served[b.Vehicle]++
		}
	}
	for _, v := range res.Vehicles {
		s.Vehicles = append(s.Vehicles, VehicleSummary{
			ID:         v.ID,
			Type:       v.Type.ID,
			Kilometers: v.Kilometers,
			RideTime:   v.RideTime,
			Served:     served[v.ID],
		})
	}
	slices.SortFunc(s.Vehicles, func(a, b VehicleSummary) int {
		return strings.Compare(a.ID, b.ID)
	})
	return s
}

// Write stores every run output in dir and returns the paths written.
func Write(dir string, res *simulation.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	var written []string
	keep := func(name string, err error) error {
		if err != nil {
			return fmt.Errorf("report: %s: %w", name, err)
		}
		written = append(written, filepath.Join(dir, name))
		return nil
	}

	sum := Summarize(res)
	if err := keep(SummaryFile, writeJSON(filepath.Join(dir, SummaryFile), sum)); err != nil {
		return written, err
	}
	if err := keep(TripsFile, writeJSON(filepath.Join(dir, TripsFile), res.Trips)); err != nil {
		return written, err
	}
	if err := keep(VehiclesFile, writeCSV(filepath.Join(dir, VehiclesFile), &sum.Vehicles)); err != nil {
		return written, err
	}

	var shares []OccupancyShare
	for _, v := range res.Vehicles {
		samples := v.Samples
		name := OccupancyFile(v.ID)
		if err := keep(name, writeCSV(filepath.Join(dir, name), &samples)); err != nil {
			return written, err
		}
		shares = append(shares, OccupancyShares(v.ID, samples, res.Horizon)...)
	}
	if err := keep(SharesFile, writeCSV(filepath.Join(dir, SharesFile), &shares)); err != nil {
		return written, err
	}

	fc := Visual(res)
	data, err := fc.MarshalJSON()
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, VisualFile), data, 0o644)
	}
	if err := keep(VisualFile, err); err != nil {
		return written, err
	}

	log.Info().Str("dir", dir).Int("files", len(written)).Msg("report written")
	return written, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
