package main

import (
	"database/sql"
	"drt-simulator/internal/adapters/cache"
	"drt-simulator/internal/adapters/repositories"
	"drt-simulator/internal/config"
	"drt-simulator/internal/platform/db"
	"drt-simulator/internal/platform/obs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// dbtool manages the time-distance cache outside of a run.
func main() {
	obs.SetupLogger()

	var cfg *config.Config
	app := &cli.App{
		Name:  "dbtool",
		Usage: "manage the time-distance cache",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml"},
			&cli.StringFlag{Name: "env", Value: ".env"},
		},
		Before: func(c *cli.Context) (err error) {
			if err = config.LoadDotEnv(c.String("env")); err != nil {
				return err
			}
			cfg, err = config.Load(c.String("config"))
			return err
		},
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create the cache schema",
				Action: func(c *cli.Context) error {
					return withDB(cfg, func(conn *sql.DB) error {
						if err := repositories.InitSchema(conn, cfg.CacheDriver); err != nil {
							return err
						}
						log.Info().Str("driver", cfg.CacheDriver).Msg("schema ready")
						return nil
					})
				},
			},
			{
				Name:  "drop",
				Usage: "drop the cache table",
				Action: func(c *cli.Context) error {
					return withDB(cfg, func(conn *sql.DB) error {
						if err := repositories.DropSchema(conn); err != nil {
							return err
						}
						log.Info().Msg("schema dropped")
						return nil
					})
				},
			},
			{
				Name:  "stats",
				Usage: "print the number of cached pairs",
				Action: func(c *cli.Context) error {
					return withDB(cfg, func(conn *sql.DB) error {
						if err := repositories.InitSchema(conn, cfg.CacheDriver); err != nil {
							return err
						}
						var (
							n   int
							err error
						)
						if cfg.CacheDriver == db.DriverPostgres {
							n, err = cache.NewSQLTDMCache(conn).Count(c.Context)
						} else {
							n, err = cache.NewSqliteTDMCache(conn).Count(c.Context)
						}
						if err != nil {
							return err
						}
						log.Info().Int("pairs", n).Str("dsn", cfg.CacheDSN).Msg("tdm cache")
						return nil
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func withDB(cfg *config.Config, fn func(*sql.DB) error) error {
	conn, err := db.Open(cfg.CacheDriver, cfg.CacheDSN)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}
