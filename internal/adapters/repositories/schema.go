package repositories

import (
	"database/sql"
	"drt-simulator/internal/platform/db"
	"errors"
	"fmt"
)

// Initialize the time-distance cache schema for the given driver.
func InitSchema(conn *sql.DB, driver string) error {
	if conn == nil {
		return errors.New("init schema: DB is nil")
	}

	realType := "REAL"
	if driver == db.DriverPostgres {
		realType = "DOUBLE PRECISION"
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createTDMCacheQuery := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS tdm_cache (
		from_lat %[1]s NOT NULL,
		from_lon %[1]s NOT NULL,
		to_lat %[1]s NOT NULL,
		to_lon %[1]s NOT NULL,
		duration %[1]s NOT NULL,
		distance %[1]s NOT NULL,
		PRIMARY KEY (from_lat, from_lon, to_lat, to_lon)
	);
	`, realType)

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_tdm_cache_to
	ON tdm_cache(to_lat, to_lon);
	`

	statements := []string{
		createTDMCacheQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// Remove the cache table entirely.
func DropSchema(conn *sql.DB) error {
	if conn == nil {
		return errors.New("drop schema: DB is nil")
	}
	if _, err := conn.Exec(`DROP TABLE IF EXISTS tdm_cache;`); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}
