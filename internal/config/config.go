// Package config loads the flat key-value simulation configuration.
package config

import (
	"drt-simulator/internal/domain"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type VehicleType struct {
	ID            string  `yaml:"id" validate:"required"`
	Seats         int     `yaml:"seats" validate:"gte=1"`
	Wheelchairs   int     `yaml:"wheelchairs" validate:"gte=0"`
	CostPerMeter  float64 `yaml:"cost_per_meter" validate:"gte=0"`
	CostPerSecond float64 `yaml:"cost_per_second" validate:"gte=0"`
	FixedCost     float64 `yaml:"fixed_cost" validate:"gte=0"`
}

func (v VehicleType) Domain() domain.VehicleType {
	return domain.VehicleType{
		ID:            v.ID,
		Capacity:      domain.Dimensions{Seats: v.Seats, Wheelchairs: v.Wheelchairs},
		CostPerMeter:  v.CostPerMeter,
		CostPerSecond: v.CostPerSecond,
		FixedCost:     v.FixedCost,
	}
}

// Config mirrors the dotted keys of the YAML file one to one.
type Config struct {
	SimStart           float64 `yaml:"sim.start_s" validate:"gte=0,lt=86400"`
	SimDuration        float64 `yaml:"sim.duration_s" validate:"gt=0"`
	Seed               uint64  `yaml:"sim.seed"`
	PopulationFraction float64 `yaml:"sim.population_fraction" validate:"gt=0,lte=1"`
	PopulationFile     string  `yaml:"sim.population_file" validate:"required"`

	Date      string `yaml:"date" validate:"required,datetime=2006-01-02"`
	UnixEpoch int64  `yaml:"date.unix_epoch" validate:"gte=0"`
	Timezone  string `yaml:"date.timezone" validate:"required"`

	DRTZones          []int         `yaml:"drt.zones"`
	NumberVehicles    int           `yaml:"drt.number_vehicles" validate:"gte=0"`
	Depot             domain.Coord  `yaml:"drt.depot"`
	VehicleTypes      []VehicleType `yaml:"drt.vehicle_types" validate:"min=1,dive"`
	MaxPreTransitTime float64       `yaml:"drt.maxPreTransitTime" validate:"gt=0"`
	PreTransitStep    float64       `yaml:"drt.pre_transit_step_s" validate:"gt=0"`
	MinPreTransitTime float64       `yaml:"drt.min_pre_transit_time" validate:"gte=0"`
	MinDistance       float64       `yaml:"drt.min_distance" validate:"gte=0"`
	PlanningInAdvance float64       `yaml:"drt.planning_in_advance_s" validate:"gte=0"`
	MaxCandidates     int           `yaml:"drt.max_candidates" validate:"gt=0"`
	StopsFile         string        `yaml:"drt.stops_file"`
	ExtraStopsFile    string        `yaml:"drt.extra_stops_file"`

	TripWindowConstant        float64 `yaml:"pt.trip_time_window_constant" validate:"gte=0"`
	TripWindowMultiplier      float64 `yaml:"pt.trip_time_window_multiplier" validate:"gte=0"`
	DRTWindowConstantIn       float64 `yaml:"pt.drt_time_window_constant_in" validate:"gte=0"`
	DRTWindowMultiplierIn     float64 `yaml:"pt.drt_time_window_multiplier_in" validate:"gte=0"`
	DRTWindowConstantOut      float64 `yaml:"pt.drt_time_window_constant_out" validate:"gte=0"`
	DRTWindowMultiplierOut    float64 `yaml:"pt.drt_time_window_multiplier_out" validate:"gte=0"`
	DRTWindowConstantWithin   float64 `yaml:"pt.drt_time_window_constant_within" validate:"gte=0"`
	DRTWindowMultiplierWithin float64 `yaml:"pt.drt_time_window_multiplier_within" validate:"gte=0"`

	WalkSpeed          float64  `yaml:"person.default_attr.walk_speed" validate:"gt=0"`
	MaxWalkingDistance float64  `yaml:"person.default_attr.max_walking_distance" validate:"gte=0"`
	BoardingTime       float64  `yaml:"person.default_attr.boarding_s" validate:"gte=0"`
	LeavingTime        float64  `yaml:"person.default_attr.leaving_s" validate:"gte=0"`
	Seats              int      `yaml:"person.default_attr.seats" validate:"gte=0"`
	Wheelchairs        int      `yaml:"person.default_attr.wheelchairs" validate:"gte=0"`
	DrivingLicense     bool     `yaml:"person.default_attr.driving_license"`
	Age                int      `yaml:"person.default_attr.age" validate:"gte=0"`
	MaxIVTMultiplier   float64  `yaml:"person.default_attr.max_ivt_multiplier" validate:"gte=1"`
	MaxIVTConstant     float64  `yaml:"person.default_attr.max_ivt_constant" validate:"gte=0"`
	Modes              []string `yaml:"person.default_attr.modes" validate:"min=1"`

	VOT        map[string]float64 `yaml:"choice.vot"`
	DRTPenalty float64            `yaml:"choice.drt_penalty"`

	OTPURL       string `yaml:"service.otp_url" validate:"omitempty,url"`
	OSRMURL      string `yaml:"service.osrm_url" validate:"omitempty,url"`
	MatrixURL    string `yaml:"service.matrix_url" validate:"omitempty,url"`
	SolverCmd    string `yaml:"service.solver_cmd"`
	SolverDir    string `yaml:"service.solver_dir"`
	RedisAddress string `yaml:"service.redis_address"`

	CacheDriver string `yaml:"cache.driver" validate:"oneof=sqlite pgx"`
	CacheDSN    string `yaml:"cache.dsn" validate:"required"`

	OutputDir string `yaml:"output.dir" validate:"required"`

	SMTPAddr     string   `yaml:"notify.smtp_addr" validate:"omitempty,hostname_port"`
	SMTPUser     string   `yaml:"notify.smtp_user"`
	SMTPPassword string   `yaml:"-"`
	NotifyFrom   string   `yaml:"notify.from" validate:"omitempty,email"`
	NotifyTo     []string `yaml:"notify.to" validate:"omitempty,dive,email"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		SimStart:           21600,
		SimDuration:        43200,
		Seed:               42,
		PopulationFraction: 1,
		PopulationFile:     "data/population.json",

		Date:     "2024-01-15",
		Timezone: "UTC",

		NumberVehicles:    1,
		VehicleTypes:      []VehicleType{{ID: "minibus", Seats: 8, CostPerMeter: 0.001, CostPerSecond: 0.01}},
		MaxPreTransitTime: 1800,
		PreTransitStep:    300,
		MinPreTransitTime: 300,
		MinDistance:       500,
		MaxCandidates:     10,

		TripWindowConstant:        900,
		TripWindowMultiplier:      0.5,
		DRTWindowConstantIn:       600,
		DRTWindowMultiplierIn:     0.3,
		DRTWindowConstantOut:      600,
		DRTWindowMultiplierOut:    0.3,
		DRTWindowConstantWithin:   600,
		DRTWindowMultiplierWithin: 0.3,

		WalkSpeed:          1.2,
		MaxWalkingDistance: 2000,
		BoardingTime:       30,
		LeavingTime:        30,
		Seats:              1,
		DrivingLicense:     true,
		Age:                40,
		MaxIVTMultiplier:   1.5,
		MaxIVTConstant:     600,
		Modes:              []string{"CAR", "TRANSIT", "WALK", "DRT", "DRT_TRANSIT"},

		DRTPenalty: -1,

		CacheDriver: "sqlite",
		CacheDSN:    "data/tdm.db",
		OutputDir:   "output",
	}
}

// Environment overrides for endpoints and the cache DSN.
var envOverrides = map[string]func(c *Config, v string){
	"DRTSIM_OTP_URL":       func(c *Config, v string) { c.OTPURL = v },
	"DRTSIM_OSRM_URL":      func(c *Config, v string) { c.OSRMURL = v },
	"DRTSIM_MATRIX_URL":    func(c *Config, v string) { c.MatrixURL = v },
	"DRTSIM_SOLVER_CMD":    func(c *Config, v string) { c.SolverCmd = v },
	"DRTSIM_REDIS_ADDRESS": func(c *Config, v string) { c.RedisAddress = v },
	"DRTSIM_CACHE_DSN":     func(c *Config, v string) { c.CacheDSN = v },
	"DRTSIM_SMTP_PASSWORD": func(c *Config, v string) { c.SMTPPassword = v },
}

// LoadDotEnv reads a .env file into the process environment when one exists.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads the YAML file over the defaults, applies environment
// overrides, derives the date epoch and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// Lists replace the defaults rather than merging into them.
	cfg.VehicleTypes, cfg.Modes = nil, nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	def := Default()
	if cfg.VehicleTypes == nil {
		cfg.VehicleTypes = def.VehicleTypes
	}
	if cfg.Modes == nil {
		cfg.Modes = def.Modes
	}

	for key, apply := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			apply(&cfg, v)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.UnixEpoch == 0 {
		epoch, err := midnight(cfg.Date, cfg.Timezone)
		if err != nil {
			return nil, err
		}
		cfg.UnixEpoch = epoch
	}
	return &cfg, nil
}

func midnight(date, tz string) (int64, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0, fmt.Errorf("config: timezone %q: %w", tz, err)
	}
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return 0, fmt.Errorf("config: date %q: %w", date, err)
	}
	return d.Unix(), nil
}

// Horizon is the last simulated second.
func (c *Config) Horizon() float64 { return c.SimStart + c.SimDuration }

// Location is the zone used for wall-clock planner queries.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Attributes are the defaults applied to every traveler.
func (c *Config) Attributes() domain.Attributes {
	modes := make([]domain.Mode, len(c.Modes))
	for i, m := range c.Modes {
		modes[i] = domain.Mode(strings.ToUpper(m))
	}
	return domain.Attributes{
		WalkSpeed:          c.WalkSpeed,
		MaxWalkingDistance: c.MaxWalkingDistance,
		BoardingTime:       c.BoardingTime,
		LeavingTime:        c.LeavingTime,
		Dims:               domain.Dimensions{Seats: c.Seats, Wheelchairs: c.Wheelchairs},
		DrivingLicense:     c.DrivingLicense,
		Age:                c.Age,
		MaxIVTMultiplier:   c.MaxIVTMultiplier,
		MaxIVTConstant:     c.MaxIVTConstant,
		Modes:              modes,
	}
}

// ModeVOT converts the configured value-of-time table to modes.
func (c *Config) ModeVOT() map[domain.Mode]float64 {
	out := make(map[domain.Mode]float64, len(c.VOT))
	for m, v := range c.VOT {
		out[domain.Mode(strings.ToUpper(m))] = v
	}
	return out
}
