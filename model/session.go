package model

import (
	"fmt"
)

type StateKind int

const (
	StateNone StateKind = iota
	StateAwaitingStopID
	StateAwaitingStopDirection
	StateAwaitingStopName
	StateAwaitingNameConfirmation
	StateAwaitingRouteID
)

var stateNames = map[StateKind]string{
	StateNone:                     "none",
	StateAwaitingStopID:           "awaiting_stop_id",
	StateAwaitingStopDirection:    "awaiting_stop_direction",
	StateAwaitingStopName:         "awaiting_stop_name",
	StateAwaitingNameConfirmation: "awaiting_name_confirmation",
	StateAwaitingRouteID:          "awaiting_route_id",
}

func (k StateKind) String() string {
	if name, ok := stateNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

func (k StateKind) MarshalText() ([]byte, error) {
	name, ok := stateNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown state kind %d", int(k))
	}
	return []byte(name), nil
}

func (k *StateKind) UnmarshalText(text []byte) error {
	for kind, name := range stateNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown state kind %q", string(text))
}

// The prompt issued when a dialogue state was entered. Re-issued
// verbatim when input can't be interpreted in that state.
type Prompt struct {
	Speech   string `json:"speech"`
	Display  string `json:"display"`
	Reprompt string `json:"reprompt"`
}

func (p Prompt) Response() Response {
	return Response{
		Speech:   p.Speech,
		Display:  p.Display,
		Reprompt: p.Reprompt,
	}
}

type DialogueState struct {
	Kind   StateKind `json:"kind"`
	Prompt Prompt    `json:"prompt"`
}

func (s DialogueState) Active() bool {
	return s.Kind != StateNone
}

// Enters a state, recording the prompt issued on entry.
func Enter(kind StateKind, prompt Prompt) DialogueState {
	return DialogueState{Kind: kind, Prompt: prompt}
}

// Per-device conversational state.
//
// Index points at the stop in conversational focus, and is -1 iff
// Stops is empty. A stop being built by the add-stop workflow lives
// in Pending until it is committed.
type Session struct {
	Stops            []Stop        `json:"stops"`
	Index            int           `json:"index"`
	Pending          *Stop         `json:"pending,omitempty"`
	State            DialogueState `json:"state"`
	InvalidOperation bool          `json:"invalidOperation"`
}

// Seeds a session from stored stops. The most recently updated stop
// is in focus.
func NewSession(stops []Stop) Session {
	s := Session{
		Stops: make([]Stop, 0, len(stops)),
		Index: -1,
	}
	for _, stop := range stops {
		s.Stops = append(s.Stops, stop.Clone())
	}
	s.Index = MostRecent(s.Stops)
	return s
}

// Index of the stop with the latest LastUpdated, or -1 if empty. Ties
// go to the earliest stop.
func MostRecent(stops []Stop) int {
	idx := -1
	for i, stop := range stops {
		if idx == -1 || stop.LastUpdated.After(stops[idx].LastUpdated) {
			idx = i
		}
	}
	return idx
}

// The stop in focus, or nil.
func (s *Session) Recent() *Stop {
	if s.Index < 0 || s.Index >= len(s.Stops) {
		return nil
	}
	return &s.Stops[s.Index]
}

// Index of the stop with the given name, or -1.
func (s *Session) FindByName(name string) int {
	for i, stop := range s.Stops {
		if stop.StopName == name {
			return i
		}
	}
	return -1
}

// Index of the stop with the given stop ID and direction, or -1.
func (s *Session) Find(stopID string, direction Direction) int {
	for i, stop := range s.Stops {
		if stop.StopID == stopID && stop.Direction == direction {
			return i
		}
	}
	return -1
}

// Removes the stop at i and refocuses on the most recently updated
// remaining stop.
func (s *Session) Remove(i int) {
	s.Stops = append(s.Stops[:i:i], s.Stops[i+1:]...)
	s.Index = MostRecent(s.Stops)
}

// Deep copy.
func (s Session) Clone() Session {
	c := s
	c.Stops = make([]Stop, 0, len(s.Stops))
	for _, stop := range s.Stops {
		c.Stops = append(c.Stops, stop.Clone())
	}
	if s.Pending != nil {
		p := s.Pending.Clone()
		c.Pending = &p
	}
	return c
}

// Checks that Index is consistent with Stops.
func (s *Session) Validate() error {
	if len(s.Stops) == 0 {
		if s.Index != -1 {
			return fmt.Errorf("index %d with no stops", s.Index)
		}
		return nil
	}
	if s.Index < 0 || s.Index >= len(s.Stops) {
		return fmt.Errorf("index %d out of range [0, %d)", s.Index, len(s.Stops))
	}
	return nil
}
