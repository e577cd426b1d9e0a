package main

import (
	"context"
	"drt-simulator/internal/adapters/repositories"
	"drt-simulator/internal/adapters/routing"
	"drt-simulator/internal/config"
	"drt-simulator/internal/notify"
	"drt-simulator/internal/platform/obs"
	"drt-simulator/internal/ports"
	"drt-simulator/internal/report"
	"drt-simulator/internal/simulation"
	"fmt"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const bundleName = "logs.tar.xz"

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "simulate one day and write the report",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml", Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "env", Value: ".env", Usage: "optional dotenv file"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "override output.dir"},
		},
		Action: func(c *cli.Context) error {
			if err := config.LoadDotEnv(c.String("env")); err != nil {
				return err
			}
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if out := c.String("output"); out != "" {
				cfg.OutputDir = out
			}
			return runDay(c.Context, cfg)
		},
	}
}

// runDay simulates, reports and notifies. Failures still ship the logs.
func runDay(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logPath := filepath.Join(cfg.OutputDir, report.LogFile)
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer logFile.Close()
	obs.SetupLogger(logFile)

	eventsPath := filepath.Join(cfg.OutputDir, report.EventsFile)
	eventsFile, err := os.Create(eventsPath)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer eventsFile.Close()

	runID := time.Now().UTC().Format("20060102T150405")
	ctx = obs.WithRunID(ctx, runID)
	log.Info().Str("run_id", runID).Str("output", cfg.OutputDir).Uint64("seed", cfg.Seed).Msg("run started")

	res, runErr := simulate(ctx, cfg, obs.NewEventLogger(eventsFile))

	var attachments []string
	if bundle, err := report.Bundle(cfg.OutputDir, bundleName, []string{logPath, eventsPath}); err != nil {
		log.Error().Err(err).Msg("log bundle failed")
	} else {
		attachments = append(attachments, bundle)
	}

	notifier := notify.New(cfg)
	if runErr != nil {
		log.Error().Err(runErr).Str("run_id", runID).Bool("server_error", routing.IsServerError(runErr)).Msg("run failed")
		if err := notifier.Notify(ctx, failureSubject(runID, runErr), runErr.Error(), attachments); err != nil {
			log.Error().Err(err).Msg("notify failed")
		}
		return cli.Exit(runErr, 1)
	}

	if err := notifier.Notify(ctx, "drtsim run "+runID+" finished", countersBody(res.Counters), attachments); err != nil {
		log.Warn().Err(err).Msg("notify failed")
	}
	log.Info().Str("run_id", runID).Int("trips", len(res.Trips)).Msg("run finished")
	return nil
}

func simulate(ctx context.Context, cfg *config.Config, events zerolog.Logger) (*simulation.Result, error) {
	svc, release, err := simulation.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer release()

	population := func(rng *rand.Rand) ports.PopulationRepository {
		return repositories.NewJSONPopulationRepository(cfg.PopulationFile, cfg.PopulationFraction, rng)
	}
	var stops ports.StopRepository
	if cfg.StopsFile != "" {
		stops = repositories.NewCSVStopRepository(cfg.StopsFile, cfg.ExtraStopsFile)
	}

	s, err := simulation.New(ctx, cfg, svc, population, stops, events)
	if err != nil {
		return nil, err
	}
	res, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := report.Write(cfg.OutputDir, res); err != nil {
		return nil, err
	}
	return res, nil
}

// failureSubject marks runs stopped by an HTTP 5xx from an external service.
func failureSubject(runID string, err error) string {
	if routing.IsServerError(err) {
		return "drtsim run " + runID + " failed: external service error"
	}
	return "drtsim run " + runID + " failed"
}

func countersBody(counters map[string]int) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(counters)) {
		fmt.Fprintf(&b, "%s: %d\n", k, counters[k])
	}
	return b.String()
}
