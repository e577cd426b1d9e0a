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

// SQLite backed time-distance matrix cache.
// Inserts are buffered and written in one transaction on Commit.
type SqliteTDMCache struct {
	DB      *sql.DB
	pending pendingInserts
}

func NewSqliteTDMCache(db *sql.DB) *SqliteTDMCache {
	return &SqliteTDMCache{DB: db}
}

// Fetch every cached destination for one origin, including uncommitted inserts.
func (s *SqliteTDMCache) LookupFrom(ctx context.Context, origin domain.Coord) (_ []ports.TDMEntry, err error) {
	defer obs.Time(ctx, "tdm.cache.LookupFrom")(&err)

	if s.DB == nil {
		return nil, errors.New("tdm cache: db is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT to_lat, to_lon, duration, distance
	FROM tdm_cache
	WHERE from_lat = ? AND from_lon = ?;
	`, origin.Lat, origin.Lon)
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

// Buffer one pair; known pairs are ignored on commit.
func (s *SqliteTDMCache) Insert(_ context.Context, from, to domain.Coord, duration, distance float64) error {
	if duration < 0 || distance < 0 {
		return fmt.Errorf("insert tdm cache: negative entry %v->%v", from, to)
	}
	s.pending.add(from, to, duration, distance)
	return nil
}

// Write buffered pairs in a single transaction.
func (s *SqliteTDMCache) Commit(ctx context.Context) (err error) {
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
	INSERT OR IGNORE INTO tdm_cache (
		from_lat,
		from_lon,
		to_lat,
		to_lon,
		duration,
		distance
	)
	VALUES (?, ?, ?, ?, ?, ?)
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

// Remove every cached pair.
func (s *SqliteTDMCache) Drop(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("tdm cache: db is nil")
	}
	s.pending.reset()
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM tdm_cache;`); err != nil {
		return fmt.Errorf("drop tdm cache: %w", err)
	}
	return nil
}

// Count returns the number of committed pairs.
func (s *SqliteTDMCache) Count(ctx context.Context) (int, error) {
	return countRows(ctx, s.DB)
}

func scanEntries(rows *sql.Rows) ([]ports.TDMEntry, map[domain.Coord]struct{}, error) {
	var out []ports.TDMEntry
	seen := map[domain.Coord]struct{}{}
	for rows.Next() {
		var e ports.TDMEntry
		if err := rows.Scan(&e.To.Lat, &e.To.Lon, &e.Duration, &e.Distance); err != nil {
			return nil, nil, fmt.Errorf("lookup tdm cache: scan rows: %w", err)
		}
		seen[e.To] = struct{}{}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("lookup tdm cache: row iteration: %w", err)
	}
	return out, seen, nil
}

func countRows(ctx context.Context, db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("tdm cache: db is nil")
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tdm_cache;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tdm cache: %w", err)
	}
	return n, nil
}
