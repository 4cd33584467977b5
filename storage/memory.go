package storage

import (
	"context"
	"sync"

	"tidbyt.dev/bustime/model"
)

// In memory implementation of Storage below

type memoryStopKey struct {
	StopID    string
	Direction model.Direction
}

type MemoryStorage struct {
	mutex   sync.Mutex
	devices map[string][]model.Stop
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		devices: map[string][]model.Stop{},
	}
}

func (s *MemoryStorage) find(deviceID string, key memoryStopKey) int {
	for i, stop := range s.devices[deviceID] {
		if (memoryStopKey{stop.StopID, stop.Direction}) == key {
			return i
		}
	}
	return -1
}

func (s *MemoryStorage) ListStops(ctx context.Context, deviceID string) ([]model.Stop, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stops := []model.Stop{}
	for _, stop := range s.devices[deviceID] {
		stops = append(stops, stop.Clone())
	}
	return stops, nil
}

func (s *MemoryStorage) WriteStop(ctx context.Context, stop model.Stop) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.find(stop.DeviceID, memoryStopKey{stop.StopID, stop.Direction})
	if i == -1 {
		s.devices[stop.DeviceID] = append(s.devices[stop.DeviceID], stop.Clone())
		return nil
	}
	s.devices[stop.DeviceID][i] = stop.Clone()
	return nil
}

func (s *MemoryStorage) UpdateStop(ctx context.Context, stop model.Stop) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.find(stop.DeviceID, memoryStopKey{stop.StopID, stop.Direction})
	if i == -1 {
		return ErrStopNotFound
	}
	s.devices[stop.DeviceID][i] = stop.Clone()
	return nil
}

func (s *MemoryStorage) DeleteStop(ctx context.Context, deviceID string, stopID string, direction model.Direction) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.find(deviceID, memoryStopKey{stopID, direction})
	if i == -1 {
		return nil
	}
	stops := s.devices[deviceID]
	s.devices[deviceID] = append(stops[:i:i], stops[i+1:]...)
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
