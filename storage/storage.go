package storage

import (
	"context"
	"errors"

	"tidbyt.dev/bustime/model"
)

var ErrStopNotFound = errors.New("stop not found")

// Persists the stops saved by each device. Stops are keyed by
// (DeviceID, StopID, Direction). There is no concurrency control
// beyond last write wins.
type Storage interface {
	// Retrieves all stops saved by a device, in the order they
	// were first written.
	ListStops(ctx context.Context, deviceID string) ([]model.Stop, error)

	// Writes a stop. If a stop with the same key exists, it is
	// replaced.
	WriteStop(ctx context.Context, stop model.Stop) error

	// Updates an existing stop. Returns ErrStopNotFound if there
	// is none.
	UpdateStop(ctx context.Context, stop model.Stop) error

	// Deletes a stop. Deleting a missing stop is not an error.
	DeleteStop(ctx context.Context, deviceID string, stopID string, direction model.Direction) error

	Close() error
}
