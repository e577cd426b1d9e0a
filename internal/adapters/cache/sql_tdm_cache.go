package cache

import (
	"context"
	"database/sql"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/platform/obs"
	"drt-simulator/internal/ports"
	"errors"
	"fmt"
)

// SQLTDMCache is a PostgreSQL-backed time-distance matrix cache.
type SQLTDMCache struct {
	DB      *sql.DB
	pending pendingInserts
}

func NewSQLTDMCache(db *sql.DB) *SQLTDMCache {
	return &SQLTDMCache{DB: db}
}

// Fetch every cached destination for one origin, including uncommitted inserts.
func (s *SQLTDMCache) LookupFrom(ctx context.Context, origin domain.Coord) (_ []ports.TDMEntry, err error) {
	defer obs.Time(ctx, "tdm.cache.LookupFrom")(&err)

	if s.DB == nil {
		return nil, errors.New("tdm cache: db is nil")
	}

	q := `
	SELECT to_lat, to_lon, duration, distance
	FROM tdm_cache
	WHERE from_lat = $1
		AND from_lon = $2;
	`

	rows, err := s.DB.QueryContext(ctx, q, origin.Lat, origin.Lon)
	if err != nil {
		return nil, fmt.Errorf("lookup tdm cache: query tdm_cache table: %w", err)
	}
	defer rows.Close()

	out, seen, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return append(out, s.pending.from(origin, seen)...), nil
}

func (s *SQLTDMCache) Insert(_ context.Context, from, to domain.Coord, duration, distance float64) error {
	if duration < 0 || distance < 0 {
		return fmt.Errorf("insert tdm cache: negative entry %v->%v", from, to)
	}
	s.pending.add(from, to, duration, distance)
	return nil
}

// Write buffered pairs in a single transaction; existing keys are kept.
func (s *SQLTDMCache) Commit(ctx context.Context) (err error) {
	defer obs.Time(ctx, "tdm.cache.Commit")(&err)

	if s.DB == nil {
		return errors.New("tdm cache: db is nil")
	}
	if len(s.pending.rows) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit tdm cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO tdm_cache (from_lat, from_lon, to_lat, to_lon, duration, distance)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (from_lat, from_lon, to_lat, to_lon) DO NOTHING;
	`)
	if err != nil {
		return fmt.Errorf("commit tdm cache: db prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range s.pending.rows {
		if _, err := stmt.ExecContext(ctx, r.key.from.Lat, r.key.from.Lon, r.key.to.Lat, r.key.to.Lon, r.duration, r.distance); err != nil {
			return fmt.Errorf("commit tdm cache %v->%v: %w", r.key.from, r.key.to, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tdm cache: %w", err)
	}

	s.pending.reset()
	return nil
}

func (s *SQLTDMCache) Drop(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("tdm cache: db is nil")
	}
	s.pending.reset()
	if _, err := s.DB.ExecContext(ctx, `TRUNCATE tdm_cache;`); err != nil {
		return fmt.Errorf("drop tdm cache: %w", err)
	}
	return nil
}

func (s *SQLTDMCache) Count(ctx context.Context) (int, error) {
	return countRows(ctx, s.DB)
}
