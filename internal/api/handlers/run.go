package handlers

import (
	"drt-simulator/internal/api/dto"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/report"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// ReportReader loads the outputs of a finished run.
type ReportReader interface {
	Summary() (*report.Summary, error)
	Occupancy(vehicle string) ([]domain.OccupancySample, error)
}

// RunHandler exposes read-only views of a run's report.
type RunHandler struct {
	Reports ReportReader
}

func (h *RunHandler) summary(w http.ResponseWriter, r *http.Request) (*report.Summary, bool) {
	sum, err := h.Reports.Summary()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, r, http.StatusNotFound, "no finished run")
		return nil, false
	case err != nil:
		log.Error().Err(err).Msg("load summary failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return sum, true
}

func (h *RunHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	sum, ok := h.summary(w, r)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, dto.SummaryResponse{
		StartSeconds:   sum.Start,
		HorizonSeconds: sum.Horizon,
		ExecutedTrips:  sum.Trips,
		Counters:       sum.Counters,
		Exits:          sum.Exits,
	})
}

func (h *RunHandler) Vehicles(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	sum, ok := h.summary(w, r)
	if !ok {
		return
	}

	res := dto.ListVehiclesResponse{Vehicles: make([]dto.VehicleResponse, 0, len(sum.Vehicles))}
	for _, v := range sum.Vehicles {
		res.Vehicles = append(res.Vehicles, dto.VehicleResponse{
			VehicleID:       v.ID,
			Type:            v.Type,
			Kilometers:      v.Kilometers,
			RideTimeSeconds: v.RideTime,
			Served:          v.Served,
		})
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Occupancy returns the status samples of one vehicle and the time and
// distance it spent at each load.
func (h *RunHandler) Occupancy(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" || strings.ContainsAny(id, `/\.`) {
		writeError(w, r, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	sum, ok := h.summary(w, r)
	if !ok {
		return
	}

	samples, err := h.Reports.Occupancy(id)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, r, http.StatusNotFound, "unknown vehicle")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("vehicle", id).Msg("load occupancy failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	res := dto.OccupancyResponse{
		VehicleID: id,
		Samples:   make([]dto.OccupancySampleResponse, 0, len(samples)),
	}
	for _, s := range samples {
		res.Samples = append(res.Samples, dto.OccupancySampleResponse{
			Time:        s.Time,
			Status:      string(s.Status),
			Passengers:  s.Passengers,
			Seats:       s.Seats,
			Wheelchairs: s.Wheelchairs,
			Kilometers:  s.Kilometers,
		})
	}
	for _, sh := range report.OccupancyShares(id, samples, sum.Horizon) {
		res.Shares = append(res.Shares, dto.OccupancyShareResponse{
			Passengers: sh.Passengers,
			Seconds:    sh.Seconds,
			Kilometers: sh.Kilometers,
		})
	}
	writeJSON(w, r, http.StatusOK, res)
}
