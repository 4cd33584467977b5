package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"tidbyt.dev/bustime/model"
)

type PSQLStorage struct {
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`DROP TABLE IF EXISTS stop;`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS stop (
    seq BIGSERIAL,
    device_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    direction SMALLINT NOT NULL,
    stop_name TEXT NOT NULL,
    route_ids TEXT[] NOT NULL,
    last_updated TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (device_id, stop_id, direction)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating stop table: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListStops(ctx context.Context, deviceID string) ([]model.Stop, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT
    device_id,
    stop_id,
    direction,
    stop_name,
    route_ids,
    last_updated
FROM stop
WHERE device_id = $1
ORDER BY seq ASC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing stops: %w", err)
	}
	defer rows.Close()

	stops := []model.Stop{}
	for rows.Next() {
		var stop model.Stop
		var routeIDs pq.StringArray
		err := rows.Scan(
			&stop.DeviceID,
			&stop.StopID,
			&stop.Direction,
			&stop.StopName,
			&routeIDs,
			&stop.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stop.RouteIDs = append([]string{}, routeIDs...)
		stop.LastUpdated = stop.LastUpdated.UTC()
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stops: %w", err)
	}

	return stops, nil
}

func (s *PSQLStorage) WriteStop(ctx context.Context, stop model.Stop) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO stop (device_id, stop_id, direction, stop_name, route_ids, last_updated)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (device_id, stop_id, direction) DO UPDATE SET
    stop_name = EXCLUDED.stop_name,
    route_ids = EXCLUDED.route_ids,
    last_updated = EXCLUDED.last_updated`,
		stop.DeviceID,
		stop.StopID,
		stop.Direction,
		stop.StopName,
		pq.Array(nonNil(stop.RouteIDs)),
		stop.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing stop: %w", err)
	}
	return nil
}

func (s *PSQLStorage) UpdateStop(ctx context.Context, stop model.Stop) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE stop SET stop_name = $1, route_ids = $2, last_updated = $3
WHERE device_id = $4 AND stop_id = $5 AND direction = $6`,
		stop.StopName,
		pq.Array(nonNil(stop.RouteIDs)),
		stop.LastUpdated.UTC(),
		stop.DeviceID,
		stop.StopID,
		stop.Direction,
	)
	if err != nil {
		return fmt.Errorf("updating stop: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrStopNotFound
	}
	return nil
}

func (s *PSQLStorage) DeleteStop(ctx context.Context, deviceID string, stopID string, direction model.Direction) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM stop WHERE device_id = $1 AND stop_id = $2 AND direction = $3`,
		deviceID,
		stopID,
		direction,
	)
	if err != nil {
		return fmt.Errorf("deleting stop: %w", err)
	}
	return nil
}

// pq encodes a nil slice as NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
