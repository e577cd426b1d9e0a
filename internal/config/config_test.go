package config

import (
	"drt-simulator/internal/domain"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `
sim.start_s: 21600
sim.duration_s: 43200
sim.population_file: pop.json
date: 2024-03-04
date.timezone: Europe/Warsaw
drt.zones: [1, 2]
drt.number_vehicles: 3
drt.depot: {lat: 52.1, lon: 21.0}
drt.vehicle_types:
  - {id: van, seats: 4, wheelchairs: 1, cost_per_meter: 0.002}
person.default_attr.modes: [walk, drt]
choice.vot: {walk: -0.002}
service.osrm_url: http://localhost:5000
`

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Horizon() != 64800 || cfg.NumberVehicles != 3 || len(cfg.DRTZones) != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Depot != (domain.Coord{Lat: 52.1, Lon: 21.0}) {
		t.Fatalf("depot = %+v", cfg.Depot)
	}
	if len(cfg.VehicleTypes) != 1 || cfg.VehicleTypes[0].Domain().Capacity != (domain.Dimensions{Seats: 4, Wheelchairs: 1}) {
		t.Fatalf("vehicle types = %+v", cfg.VehicleTypes)
	}
	// Untouched keys keep their defaults.
	if cfg.MaxPreTransitTime != 1800 || cfg.CacheDriver != "sqlite" {
		t.Fatalf("defaults lost: %+v", cfg)
	}

	a := cfg.Attributes()
	if !a.HasMode(domain.ModeDRT) || a.HasMode(domain.ModeCar) || a.WalkSpeed != 1.2 {
		t.Fatalf("attributes = %+v", a)
	}
	if cfg.ModeVOT()[domain.ModeWalk] != -0.002 {
		t.Fatalf("vot = %v", cfg.ModeVOT())
	}

	// Midnight in Warsaw is 23:00 UTC the previous day in winter.
	if cfg.UnixEpoch != 1709506800 {
		t.Fatalf("epoch = %d", cfg.UnixEpoch)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"fraction":      "sim.population_fraction: 1.5",
		"duration":      "sim.duration_s: 0",
		"driver":        "cache.driver: mysql",
		"date":          "date: 15/01/2024",
		"zero capacity": "drt.vehicle_types: [{id: x, seats: 0}]",
		"email":         "notify.to: [not-an-address]",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(body)); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestEnvOverridesEndpoints(t *testing.T) {
	t.Setenv("DRTSIM_OSRM_URL", "http://osrm:5000")
	t.Setenv("DRTSIM_CACHE_DSN", "postgres://drt@db/drt")

	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OSRMURL != "http://osrm:5000" || cfg.CacheDSN != "postgres://drt@db/drt" {
		t.Fatalf("overrides not applied: %s %s", cfg.OSRMURL, cfg.CacheDSN)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DRTSIM_SOLVER_CMD=/opt/jsprit/run.sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DRTSIM_SOLVER_CMD", "")
	os.Unsetenv("DRTSIM_SOLVER_CMD")
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(cfg.SolverCmd, "run.sh") {
		t.Fatalf("solver cmd = %q", cfg.SolverCmd)
	}
}
