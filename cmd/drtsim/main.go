package main

import (
	"drt-simulator/internal/platform/obs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	obs.SetupLogger()

	app := &cli.App{
		Name:        "drtsim",
		Usage:       "simulate a demand-responsive transport fleet alongside public transit",
		Description: "run executes one simulated day and writes its report; serve exposes a finished report over HTTP",

		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}
