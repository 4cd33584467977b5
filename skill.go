package bustime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tidbyt.dev/bustime/clock"
	"tidbyt.dev/bustime/metrics"
	"tidbyt.dev/bustime/model"
	"tidbyt.dev/bustime/storage"
)

type Intent string

const (
	IntentLaunch       Intent = "Launch"
	IntentGetSummary   Intent = "GetSummary"
	IntentGetRoute     Intent = "GetRoute"
	IntentAddStop      Intent = "AddStop"
	IntentListStop     Intent = "ListStop"
	IntentAddRoute     Intent = "AddRoute"
	IntentDeleteStop   Intent = "DeleteStop"
	IntentDeleteRoute  Intent = "DeleteRoute"
	IntentNumber       Intent = "Number"
	IntentName         Intent = "Name"
	IntentDirection    Intent = "Direction"
	IntentYes          Intent = "Yes"
	IntentNo           Intent = "No"
	IntentHelp         Intent = "Help"
	IntentCancel       Intent = "Cancel"
	IntentStop         Intent = "Stop"
	IntentFallback     Intent = "Fallback"
	IntentSessionEnded Intent = "SessionEnded"
)

const (
	SlotStop      = "Stop"
	SlotRoute     = "Route"
	SlotNumber    = "Number"
	SlotName      = "Name"
	SlotDirection = "Direction"
)

// A single conversational turn. Session is nil when the platform
// holds no session for the device. A nil session, or one with no
// stops and no dialogue in progress, is seeded from storage.
type Request struct {
	DeviceID string
	Intent   Intent
	Slots    map[string]string
	Session  *model.Session
}

func (r Request) slot(name string) string {
	return strings.TrimSpace(r.Slots[name])
}

// Input that the current dialogue state can't make sense of.
type UnrecognizedError struct {
	Intent Intent
	State  model.StateKind
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("unable to handle %s in state %s", e.Intent, e.State)
}

type handler func(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error)

// The dialogue state machine. Manages saved stops and answers
// prediction requests.
type Skill struct {
	Storage    storage.Storage
	Provider   Provider
	Aggregator *Aggregator
	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	handlers map[Intent]handler
}

func NewSkill(s storage.Storage, p Provider, location *time.Location) *Skill {
	skill := &Skill{
		Storage:    s,
		Provider:   p,
		Aggregator: NewAggregator(p, location),
		Clock:      clock.RealClock{},
		Logger:     slog.Default(),
	}

	skill.handlers = map[Intent]handler{
		IntentLaunch:       skill.getSummary,
		IntentGetSummary:   skill.getSummary,
		IntentGetRoute:     skill.getRoute,
		IntentAddStop:      skill.addStop,
		IntentListStop:     skill.listStops,
		IntentAddRoute:     skill.addRoute,
		IntentDeleteStop:   skill.deleteStop,
		IntentDeleteRoute:  skill.deleteRoute,
		IntentNumber:       skill.numberInput,
		IntentName:         skill.nameInput,
		IntentDirection:    skill.directionInput,
		IntentYes:          skill.yesInput,
		IntentNo:           skill.noInput,
		IntentHelp:         skill.help,
		IntentCancel:       skill.goodbye,
		IntentStop:         skill.goodbye,
		IntentFallback:     skill.fallback,
		IntentSessionEnded: skill.sessionEnded,
	}

	return skill
}

// Handles a single turn, returning the response and the session to
// carry into the next turn. Every turn yields a response.
func (s *Skill) HandleTurn(ctx context.Context, req Request) (model.Response, model.Session) {
	logger := s.Logger.With("device", req.DeviceID, "intent", req.Intent)

	var session model.Session
	if req.Session != nil && !needsBootstrap(req.Session) {
		session = req.Session.Clone()
	} else {
		stops, err := s.Storage.ListStops(ctx, req.DeviceID)
		if err != nil {
			logger.Error("loading session", "error", err)
			s.Metrics.ObserveTurn(string(req.Intent), "error")
			return errorResponse(), model.NewSession(nil)
		}
		for i := range stops {
			stops[i].DeviceID = req.DeviceID
		}
		session = model.NewSession(stops)
	}
	session.InvalidOperation = false

	h, ok := s.handlers[req.Intent]
	if !ok {
		h = func(context.Context, Request, model.Session) (model.Response, model.Session, error) {
			return model.Response{}, session, &UnrecognizedError{Intent: req.Intent, State: session.State.Kind}
		}
	}

	resp, next, err := h(ctx, req, session.Clone())

	var unrecognized *UnrecognizedError
	switch {
	case errors.As(err, &unrecognized):
		logger.Warn("unrecognized input", "state", session.State.Kind, "error", err)
		s.Metrics.ObserveTurn(string(req.Intent), "unrecognized")
		return reissue(session), session

	case err != nil:
		logger.Error("handling turn", "state", session.State.Kind, "error", err)
		s.Metrics.ObserveTurn(string(req.Intent), "error")
		return errorResponse(), session
	}

	switch next.State.Kind {
	case model.StateAwaitingStopDirection, model.StateAwaitingStopName, model.StateAwaitingNameConfirmation:
	default:
		next.Pending = nil
	}

	if err := next.Validate(); err != nil {
		logger.Error("inconsistent session", "error", err)
	}

	outcome := "ok"
	if next.InvalidOperation {
		outcome = "invalid"
	}
	s.Metrics.ObserveTurn(string(req.Intent), outcome)
	logger.Debug("turn handled", "state", next.State.Kind, "stops", len(next.Stops))

	return resp, next
}

// A session with no stops and nothing in flight is reloaded, since
// stops may have been saved elsewhere since it was issued.
func needsBootstrap(session *model.Session) bool {
	return len(session.Stops) == 0 && !session.State.Active()
}

func errorResponse() model.Response {
	return model.Response{
		Speech:     ErrorMessage,
		Display:    ErrorMessage,
		EndSession: true,
	}
}

// Re-issues the prompt of the current state, or the canonical
// re-prompt when there is none.
func reissue(session model.Session) model.Response {
	if session.State.Active() {
		return session.State.Prompt.Response()
	}
	return model.Response{
		Speech:   RepromptGetSummary,
		Display:  RepromptGetSummary,
		Reprompt: RepromptGetSummary,
	}
}

// Enters a state and returns the prompt issued on entry.
func enter(session *model.Session, kind model.StateKind, prompt model.Prompt) model.Response {
	session.State = model.Enter(kind, prompt)
	return prompt.Response()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Writes a stop that is expected to exist, recreating it if it
// vanished from storage.
func (s *Skill) persist(ctx context.Context, stop model.Stop) error {
	err := s.Storage.UpdateStop(ctx, stop)
	if errors.Is(err, storage.ErrStopNotFound) {
		err = s.Storage.WriteStop(ctx, stop)
	}
	if err != nil {
		return fmt.Errorf("persisting stop %s: %w", stop.Key(), err)
	}
	return nil
}

func noStops(session *model.Session) model.Response {
	return enter(session, model.StateAwaitingStopID, model.Prompt{
		Speech:   "We could not find any data related to your device. " + FollowUpStopPrompt,
		Display:  "No stops related to this device.",
		Reprompt: RepromptAddStop,
	})
}

func invalidNickname(session *model.Session, nickname string) model.Response {
	session.InvalidOperation = true
	session.State = model.DialogueState{}
	return model.Response{
		Speech:   fmt.Sprintf("Stop name %s is invalid. %s", nickname, TryAgainPrompt),
		Display:  fmt.Sprintf("Stop name %s is invalid.", nickname),
		Reprompt: RepromptGetSummary,
	}
}

// Brings the stop matching the nickname slot into focus. Returns
// false, along with a response, if it can't.
func focus(req Request, session *model.Session) (model.Response, bool) {
	if len(session.Stops) == 0 {
		return noStops(session), false
	}

	nickname := strings.ToLower(req.slot(SlotStop))
	switch idx := ResolveStop(nickname, session.Recent(), session.Stops); idx {
	case ResolveInvalid:
		return invalidNickname(session, nickname), false
	case ResolveUnchanged:
	default:
		session.Index = idx
	}
	return model.Response{}, true
}

func (s *Skill) getSummary(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	if resp, ok := focus(req, &session); !ok {
		return resp, session, nil
	}
	return s.predict(ctx, &session, session.Recent().RouteIDs, RepromptGetSummary)
}

func (s *Skill) getRoute(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	if resp, ok := focus(req, &session); !ok {
		return resp, session, nil
	}

	routeID := req.slot(SlotRoute)
	if !isNumeric(routeID) {
		session.State = model.DialogueState{}
		return model.Response{
			Speech:   RepromptGetRoute,
			Display:  RepromptGetRoute,
			Reprompt: RepromptGetRoute,
		}, session, nil
	}
	return s.predict(ctx, &session, []string{routeID}, RepromptGetRoute)
}

func (s *Skill) predict(ctx context.Context, session *model.Session, routeIDs []string, reprompt string) (model.Response, model.Session, error) {
	recent := session.Recent()
	if len(recent.RouteIDs) == 0 {
		resp := enter(session, model.StateAwaitingRouteID, model.Prompt{
			Speech:   "We could not find any routes related to this stop. " + FollowUpRoutePrompt,
			Display:  "No routes related to this stop.",
			Reprompt: RepromptAddRoute,
		})
		return resp, *session, nil
	}

	now := s.Clock.Now()
	recent.LastUpdated = now.UTC()
	if err := s.persist(ctx, *recent); err != nil {
		return model.Response{}, *session, err
	}

	summary, err := s.Aggregator.Predictions(ctx, recent.StopID, recent.Direction, routeIDs, now)
	if err != nil {
		return model.Response{}, *session, fmt.Errorf("aggregating predictions: %w", err)
	}

	session.State = model.DialogueState{}
	return model.Response{
		Speech:   summary.Speech + " " + FollowUpPrompt,
		Display:  summary.Display,
		Reprompt: reprompt,
	}, *session, nil
}

// Validates a stop ID against the registry and starts building a
// new stop from it.
func (s *Skill) beginStop(ctx context.Context, deviceID string, stopID string, session model.Session) (model.Response, model.Session, error) {
	info, err := s.Provider.Stop(ctx, stopID)
	if errors.Is(err, ErrStopNotFound) {
		session.Pending = nil
		resp := enter(&session, model.StateAwaitingStopID, model.Prompt{
			Speech:   fmt.Sprintf("Stop %s is invalid. %s", Digits(stopID), TryAgainPrompt),
			Display:  fmt.Sprintf("Stop %s invalid.", stopID),
			Reprompt: RepromptRepeat,
		})
		return resp, session, nil
	}
	if err != nil {
		return model.Response{}, session, fmt.Errorf("validating stop %s: %w", stopID, err)
	}

	session.Pending = &model.Stop{
		DeviceID: deviceID,
		StopID:   info.ID,
		RouteIDs: []string{},
	}
	resp := enter(&session, model.StateAwaitingStopDirection, model.Prompt{
		Speech: fmt.Sprintf("Adding stop %s, %s, into saved stops. %s",
			Digits(info.ID), Address(info.Name), FollowUpDirectionPrompt),
		Display:  fmt.Sprintf("Stop (%s) %s added.", info.ID, info.Name),
		Reprompt: RepromptRepeat,
	})
	return resp, session, nil
}

func (s *Skill) addStop(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	stopID := req.slot(SlotNumber)
	if stopID == "" {
		session.Pending = nil
		resp := enter(&session, model.StateAwaitingStopID, model.Prompt{
			Speech:   FollowUpStopPrompt,
			Display:  FollowUpStopPrompt,
			Reprompt: RepromptAddStop,
		})
		return resp, session, nil
	}
	return s.beginStop(ctx, req.DeviceID, stopID, session)
}

func (s *Skill) listStops(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	session.State = model.DialogueState{}

	if len(session.Stops) == 0 {
		return model.Response{
			Speech:   "There are no stops related to your device. " + FollowUpStopPrompt,
			Display:  "No stops found.",
			Reprompt: RepromptAddStop,
		}, session, nil
	}

	names := []string{}
	lines := []string{}
	for _, stop := range session.Stops {
		names = append(names, stop.StopName)
		routes := "no routes"
		if len(stop.RouteIDs) > 0 {
			routes = "routes " + Join(stop.RouteIDs)
		}
		lines = append(lines, fmt.Sprintf("%s: stop %s %s, %s", stop.StopName, stop.StopID, stop.Direction, routes))
	}

	speech := fmt.Sprintf("Your saved stop is %s.", names[0])
	if len(names) > 1 {
		speech = fmt.Sprintf("Your saved stops are %s.", Join(names))
	}

	return model.Response{
		Speech:   speech + " " + FollowUpPromptShort,
		Display:  strings.Join(lines, "\n"),
		Reprompt: RepromptGetSummary,
	}, session, nil
}

// Adds a route to the stop in focus and persists it.
func (s *Skill) saveRoute(ctx context.Context, routeID string, session model.Session) (model.Response, model.Session, error) {
	recent := session.Recent()
	recent.RouteIDs = model.AddRoute(recent.RouteIDs, routeID)
	recent.LastUpdated = s.Clock.Now().UTC()
	if err := s.persist(ctx, *recent); err != nil {
		return model.Response{}, session, err
	}

	session.State = model.DialogueState{}
	return model.Response{
		Speech:   fmt.Sprintf("Adding route %s into saved routes. %s", Digits(routeID), FollowUpPrompt),
		Display:  fmt.Sprintf("Route %s added.", routeID),
		Reprompt: RepromptRepeat,
	}, session, nil
}

func (s *Skill) addRoute(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	if resp, ok := focus(req, &session); !ok {
		return resp, session, nil
	}

	routeID := req.slot(SlotRoute)
	if !isNumeric(routeID) {
		resp := enter(&session, model.StateAwaitingRouteID, model.Prompt{
			Speech:   fmt.Sprintf("Route %s is invalid. %s %s", routeID, TryAgainPrompt, FollowUpRoutePrompt),
			Display:  fmt.Sprintf("Route %s invalid.", routeID),
			Reprompt: RepromptAddRoute,
		})
		return resp, session, nil
	}

	return s.saveRoute(ctx, routeID, session)
}

func (s *Skill) deleteStop(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	session.State = model.DialogueState{}

	recent := session.Recent()
	if recent == nil {
		return model.Response{
			Speech:   "There are no stops related to your device. " + TryAgainPrompt,
			Display:  "No stops found.",
			Reprompt: RepromptRepeat,
		}, session, nil
	}
	deleted := *recent

	err := s.Storage.DeleteStop(ctx, req.DeviceID, deleted.StopID, deleted.Direction)
	if err != nil {
		return model.Response{}, session, fmt.Errorf("deleting stop %s: %w", deleted.Key(), err)
	}
	session.Remove(session.Index)

	if next := session.Recent(); next != nil {
		next.LastUpdated = s.Clock.Now().UTC()
		if err := s.persist(ctx, *next); err != nil {
			return model.Response{}, session, err
		}
	}

	return model.Response{
		Speech:   fmt.Sprintf("Deleting stop %s from saved stops. %s", deleted.StopName, FollowUpPromptShort),
		Display:  fmt.Sprintf("Stop (%s) %s deleted.", deleted.StopID, deleted.StopName),
		Reprompt: RepromptAddRoute,
	}, session, nil
}

func (s *Skill) deleteRoute(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	session.State = model.DialogueState{}

	recent := session.Recent()
	if recent == nil {
		return model.Response{
			Speech:   "There are no stops related to your device. " + TryAgainPrompt,
			Display:  "No stops found.",
			Reprompt: RepromptRepeat,
		}, session, nil
	}

	routeID := req.slot(SlotRoute)
	if routeID == "" {
		return model.Response{
			Speech:   RepromptRepeat,
			Display:  RepromptRepeat,
			Reprompt: RepromptRepeat,
		}, session, nil
	}

	recent.RouteIDs = model.RemoveRoute(recent.RouteIDs, routeID)
	recent.LastUpdated = s.Clock.Now().UTC()
	if err := s.persist(ctx, *recent); err != nil {
		return model.Response{}, session, err
	}

	return model.Response{
		Speech:   fmt.Sprintf("Deleting route %s from stop %s. %s", Digits(routeID), recent.StopName, FollowUpPromptShort),
		Display:  fmt.Sprintf("Route %s deleted.", routeID),
		Reprompt: RepromptAddRoute,
	}, session, nil
}

func unrecognized(req Request, session model.Session) (model.Response, model.Session, error) {
	return model.Response{}, session, &UnrecognizedError{Intent: req.Intent, State: session.State.Kind}
}

func (s *Skill) numberInput(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	number := req.slot(SlotNumber)
	if number == "" {
		return unrecognized(req, session)
	}

	switch session.State.Kind {
	case model.StateAwaitingStopID:
		return s.beginStop(ctx, req.DeviceID, number, session)

	case model.StateAwaitingRouteID:
		if !isNumeric(number) || session.Recent() == nil {
			return unrecognized(req, session)
		}
		return s.saveRoute(ctx, number, session)
	}

	return unrecognized(req, session)
}

func (s *Skill) directionInput(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	if session.State.Kind != model.StateAwaitingStopDirection || session.Pending == nil {
		return unrecognized(req, session)
	}

	pending := session.Pending
	direction := model.ParseDirection(req.slot(SlotDirection))

	if session.Find(pending.StopID, direction) >= 0 {
		session.Pending = nil
		resp := enter(&session, model.StateAwaitingStopID, model.Prompt{
			Speech:   fmt.Sprintf("This stop has been added already. %s What stop number would you like to use?", TryAgainPrompt),
			Display:  "This stop has been added already.",
			Reprompt: RepromptRepeat,
		})
		return resp, session, nil
	}

	pending.Direction = direction
	resp := enter(&session, model.StateAwaitingStopName, model.Prompt{
		Speech:   fmt.Sprintf("Adding stop %s %s. %s", Digits(pending.StopID), direction, FollowUpStopNamePrompt),
		Display:  fmt.Sprintf("Stop %s %s.", pending.StopID, direction),
		Reprompt: RepromptRepeat,
	})
	return resp, session, nil
}

func (s *Skill) nameInput(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	name := strings.ToLower(req.slot(SlotName))
	if session.State.Kind != model.StateAwaitingStopName || session.Pending == nil || name == "" {
		return unrecognized(req, session)
	}

	if session.FindByName(name) >= 0 {
		resp := enter(&session, model.StateAwaitingStopName, model.Prompt{
			Speech:   fmt.Sprintf("The name %s has already been used. %s %s", name, TryAgainPrompt, FollowUpStopNamePrompt),
			Display:  fmt.Sprintf("The name %s has already been used.", name),
			Reprompt: RepromptRepeat,
		})
		return resp, session, nil
	}

	session.Pending.StopName = name
	resp := enter(&session, model.StateAwaitingNameConfirmation, model.Prompt{
		Speech:   fmt.Sprintf("Using %s as stop name. %s", name, FollowUpYesNoPrompt),
		Display:  fmt.Sprintf("Using %s as stop name.", name),
		Reprompt: RepromptRepeat,
	})
	return resp, session, nil
}

func goodbye() model.Response {
	return model.Response{
		Speech:     StopMessage,
		Display:    StopMessage,
		EndSession: true,
	}
}

func (s *Skill) yesInput(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	if !session.State.Active() {
		return goodbye(), session, nil
	}
	if session.State.Kind != model.StateAwaitingNameConfirmation || session.Pending == nil {
		return unrecognized(req, session)
	}

	stop := session.Pending.Clone()
	stop.DeviceID = req.DeviceID
	stop.LastUpdated = s.Clock.Now().UTC()

	if err := s.Storage.WriteStop(ctx, stop); err != nil {
		return model.Response{}, session, fmt.Errorf("saving stop %s: %w", stop.Key(), err)
	}

	if idx := session.Find(stop.StopID, stop.Direction); idx >= 0 {
		session.Stops[idx] = stop
		session.Index = idx
	} else {
		session.Stops = append(session.Stops, stop)
		session.Index = len(session.Stops) - 1
	}
	session.Pending = nil

	resp := enter(&session, model.StateAwaitingRouteID, model.Prompt{
		Speech:   "OK. " + FollowUpRoutePrompt,
		Display:  fmt.Sprintf("Stop %s saved.", stop.StopName),
		Reprompt: RepromptAddRoute,
	})
	return resp, session, nil
}

func (s *Skill) noInput(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	if !session.State.Active() {
		return goodbye(), session, nil
	}
	if session.State.Kind != model.StateAwaitingNameConfirmation || session.Pending == nil {
		return unrecognized(req, session)
	}

	session.Pending.StopName = ""
	resp := enter(&session, model.StateAwaitingStopName, model.Prompt{
		Speech:   "OK. " + FollowUpStopNamePrompt,
		Display:  FollowUpStopNamePrompt,
		Reprompt: RepromptRepeat,
	})
	return resp, session, nil
}

func (s *Skill) help(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	return model.Response{
		Speech:   HelpMessage,
		Display:  HelpMessage,
		Reprompt: HelpMessage,
	}, session, nil
}

func (s *Skill) goodbye(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	session.State = model.DialogueState{}
	return goodbye(), session, nil
}

func (s *Skill) fallback(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	session.State = model.DialogueState{}
	return model.Response{
		Speech:   RepromptTryAgain,
		Display:  RepromptTryAgain,
		Reprompt: RepromptTryAgain,
	}, session, nil
}

func (s *Skill) sessionEnded(ctx context.Context, req Request, session model.Session) (model.Response, model.Session, error) {
	session.State = model.DialogueState{}
	return model.Response{EndSession: true}, session, nil
}
