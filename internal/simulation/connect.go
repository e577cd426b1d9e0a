package simulation

import (
	"context"
	"database/sql"
	"drt-simulator/internal/adapters/cache"
	"drt-simulator/internal/adapters/repositories"
	"drt-simulator/internal/adapters/routing"
	"drt-simulator/internal/adapters/solver"
	"drt-simulator/internal/config"
	"drt-simulator/internal/platform/db"
	"drt-simulator/internal/ports"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const routeMemoTTL = 7 * 24 * time.Hour

// Connect opens the TDM cache and builds the adapters named by the
// configuration. Missing endpoints fall back to the offline straight-line
// router, and a missing solver command to the in-process insertion solver.
// The returned func releases the connections.
func Connect(ctx context.Context, cfg *config.Config) (Services, func(), error) {
	conn, err := db.Open(cfg.CacheDriver, cfg.CacheDSN)
	if err != nil {
		return Services{}, nil, fmt.Errorf("connect: %w", err)
	}
	closers := []func() error{conn.Close}
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("close failed")
			}
		}
	}

	if err := repositories.InitSchema(conn, cfg.CacheDriver); err != nil {
		release()
		return Services{}, nil, fmt.Errorf("connect: %w", err)
	}

	svc := Services{Cache: tdmCache(conn, cfg.CacheDriver)}
	offline := routing.NewMockRouter()

	var road ports.RoadRouter = offline
	if cfg.OSRMURL != "" {
		if road, err = routing.NewOSRMRouter(cfg.OSRMURL); err != nil {
			release()
			return Services{}, nil, fmt.Errorf("connect: %w", err)
		}
	} else {
		log.Warn().Msg("service.osrm_url not set; using straight-line road router")
	}

	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			release()
			return Services{}, nil, fmt.Errorf("connect: redis %s: %w", cfg.RedisAddress, err)
		}
		closers = append(closers, client.Close)
		road = routing.NewMemoRouter(road, cache.NewRouteCache(client, routeMemoTTL))
	}

	var transit ports.TransitPlanner = offline
	if cfg.OTPURL != "" {
		if transit, err = routing.NewOTPPlanner(cfg.OTPURL, cfg.UnixEpoch, cfg.Location()); err != nil {
			release()
			return Services{}, nil, fmt.Errorf("connect: %w", err)
		}
	} else {
		log.Warn().Msg("service.otp_url not set; only walking itineraries are planned")
	}
	svc.Router = routing.NewRouter(transit, road)

	svc.Matrix = offline
	if cfg.MatrixURL != "" {
		if svc.Matrix, err = routing.NewMatrixClient(cfg.MatrixURL); err != nil {
			release()
			return Services{}, nil, fmt.Errorf("connect: %w", err)
		}
	} else if cfg.OSRMURL != "" {
		log.Warn().Msg("service.matrix_url not set; solver distances come from the straight-line router")
	}

	svc.Solver = &solver.InsertionSolver{}
	if cmd := strings.Fields(cfg.SolverCmd); len(cmd) > 0 {
		if svc.Solver, err = solver.NewJspritSolver(cmd, cfg.SolverDir, cfg.Seed); err != nil {
			release()
			return Services{}, nil, fmt.Errorf("connect: %w", err)
		}
	} else {
		log.Warn().Msg("service.solver_cmd not set; using the insertion solver")
	}

	return svc, release, nil
}

func tdmCache(conn *sql.DB, driver string) ports.TDMCache {
	if driver == db.DriverPostgres {
		return cache.NewSQLTDMCache(conn)
	}
	return cache.NewSqliteTDMCache(conn)
}
