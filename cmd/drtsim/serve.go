package main

import (
	"context"
	"drt-simulator/internal/api"
	"drt-simulator/internal/report"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve a finished run's report over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: "output", Usage: "run output directory"},
			&cli.StringFlag{Name: "port", Value: "8080", EnvVars: []string{"PORT"}},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              ":" + c.String("port"),
				Handler:           api.NewRouter(report.Dir(c.String("dir"))),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdown); err != nil {
					log.Error().Err(err).Msg("shutdown failed")
				}
			}()

			log.Info().Str("addr", srv.Addr).Str("dir", c.String("dir")).Msg("server listening")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
