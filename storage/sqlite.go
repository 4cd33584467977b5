package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/bustime/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/bustime.db"
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: gets its own database.
	if !onDisk {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS stop (
    device_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    direction INTEGER NOT NULL,
    stop_name TEXT NOT NULL,
    route_ids TEXT NOT NULL,
    last_updated TIMESTAMP NOT NULL,
PRIMARY KEY (device_id, stop_id, direction)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating stop table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		db: db,
	}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func joinRouteIDs(routeIDs []string) string {
	return strings.Join(routeIDs, ",")
}

func splitRouteIDs(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func (s *SQLiteStorage) ListStops(ctx context.Context, deviceID string) ([]model.Stop, error) {
	// Upserts keep the rowid, so it reflects insertion order.
	rows, err := s.db.QueryContext(ctx, `
SELECT
    device_id,
    stop_id,
    direction,
    stop_name,
    route_ids,
    last_updated
FROM stop
WHERE device_id = ?
ORDER BY rowid ASC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing stops: %w", err)
	}
	defer rows.Close()

	stops := []model.Stop{}
	for rows.Next() {
		var stop model.Stop
		var routeIDs string
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
		stop.RouteIDs = splitRouteIDs(routeIDs)
		stop.LastUpdated = stop.LastUpdated.UTC()
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stops: %w", err)
	}

	return stops, nil
}

func (s *SQLiteStorage) WriteStop(ctx context.Context, stop model.Stop) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO stop (device_id, stop_id, direction, stop_name, route_ids, last_updated)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (device_id, stop_id, direction) DO UPDATE SET
    stop_name = excluded.stop_name,
    route_ids = excluded.route_ids,
    last_updated = excluded.last_updated`,
		stop.DeviceID,
		stop.StopID,
		stop.Direction,
		stop.StopName,
		joinRouteIDs(stop.RouteIDs),
		stop.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing stop: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateStop(ctx context.Context, stop model.Stop) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE stop SET stop_name = ?, route_ids = ?, last_updated = ?
WHERE device_id = ? AND stop_id = ? AND direction = ?`,
		stop.StopName,
		joinRouteIDs(stop.RouteIDs),
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

func (s *SQLiteStorage) DeleteStop(ctx context.Context, deviceID string, stopID string, direction model.Direction) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM stop WHERE device_id = ? AND stop_id = ? AND direction = ?`,
		deviceID,
		stopID,
		direction,
	)
	if err != nil {
		return fmt.Errorf("deleting stop: %w", err)
	}
	return nil
}
