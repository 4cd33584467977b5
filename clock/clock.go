// Package clock abstracts the current time so turn handling and
// schedule lookups can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Use RealClock in production and MockClock in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Thread-safe, controllable clock for tests.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Moves the clock by d. Negative durations move it backward.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// The current moment as seen in the transit agency's time zone.
type Attributes struct {
	// Local time.
	Time time.Time

	// YYYY-MM-DD
	Date string

	// HH:MM, 24 hour clock
	TimeOfDay string

	// e.g. "3:04 PM"
	Spoken string
}

func Local(c Clock, loc *time.Location) Attributes {
	return At(c.Now(), loc)
}

// Attributes of an arbitrary moment.
func At(t time.Time, loc *time.Location) Attributes {
	now := t.In(loc)
	return Attributes{
		Time:      now,
		Date:      now.Format("2006-01-02"),
		TimeOfDay: now.Format("15:04"),
		Spoken:    now.Format("3:04 PM"),
	}
}
