package rules

import "github.com/google/uuid"

// Frequency gates how often a triggered ability may fire.
type Frequency string

const (
	FrequencyAlways      Frequency = "ALWAYS"
	FrequencyOncePerTurn Frequency = "ONCE_PER_TURN"
	FrequencyOncePerGame Frequency = "ONCE_PER_GAME"
)

// TriggeredAbility reacts automatically to a named event by producing an
// action sequence for the rule processor to execute.
type TriggeredAbility struct {
	ID         string
	Source     int64  // instance the ability lives on
	Controller string // player who controls the ability
	EventType  EventType
	Frequency  Frequency
	Condition  func(Event) bool
	Cost       Cost
	Actions    []Action
	Once       bool // unregister after the first firing

	firedTurn int // last turn this ability fired (frequency gate)
	firedEver bool
}

// TriggerManager stores triggered abilities and discovers which ones fire for
// a given event. Discovery order is deterministic: turn player's abilities
// first, then the opponent's, registration order within each group.
type TriggerManager struct {
	triggers map[string]*TriggeredAbility
	order    []string
}

// NewTriggerManager creates an empty trigger manager.
func NewTriggerManager() *TriggerManager {
	return &TriggerManager{triggers: make(map[string]*TriggeredAbility)}
}

// Register adds a triggered ability and returns its id.
func (tm *TriggerManager) Register(trigger TriggeredAbility) string {
	if trigger.ID == "" {
		trigger.ID = uuid.NewString()
	}
	if trigger.Frequency == "" {
		trigger.Frequency = FrequencyAlways
	}
	trigger.firedTurn = -1
	if _, exists := tm.triggers[trigger.ID]; !exists {
		tm.order = append(tm.order, trigger.ID)
	}
	tm.triggers[trigger.ID] = &trigger
	return trigger.ID
}

// Unregister removes a trigger by id.
func (tm *TriggerManager) Unregister(id string) {
	if _, ok := tm.triggers[id]; !ok {
		return
	}
	delete(tm.triggers, id)
	for i, tid := range tm.order {
		if tid == id {
			tm.order = append(tm.order[:i], tm.order[i+1:]...)
			break
		}
	}
}

// UnregisterBySource removes every trigger whose source is the given instance.
// Called when an instance leaves play and its identity is destroyed.
func (tm *TriggerManager) UnregisterBySource(source int64) {
	kept := tm.order[:0]
	for _, id := range tm.order {
		if t := tm.triggers[id]; t != nil && t.Source == source {
			delete(tm.triggers, id)
			continue
		}
		kept = append(kept, id)
	}
	tm.order = kept
}

// Discover returns the triggered abilities that fire for the event, turn
// player first. Frequency gates are checked here; marking happens separately
// via MarkFired once the ability actually resolves.
//
// A panicking condition is recovered and treated as satisfied: eligibility
// evaluation is fail-open so an internal predicate error never silently
// disables a legal trigger.
func (tm *TriggerManager) Discover(event Event, turn int, turnPlayer string) []*TriggeredAbility {
	var turnPlayerMatches, otherMatches []*TriggeredAbility
	for _, id := range tm.order {
		trigger := tm.triggers[id]
		if trigger == nil || trigger.EventType != event.Type {
			continue
		}
		if !tm.passesFrequency(trigger, turn) {
			continue
		}
		if !conditionHolds(trigger.Condition, event) {
			continue
		}
		if trigger.Controller == turnPlayer {
			turnPlayerMatches = append(turnPlayerMatches, trigger)
		} else {
			otherMatches = append(otherMatches, trigger)
		}
	}
	return append(turnPlayerMatches, otherMatches...)
}

// conditionHolds evaluates a trigger condition, failing open on panic.
func conditionHolds(cond func(Event) bool, event Event) (ok bool) {
	if cond == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()
	return cond(event)
}

func (tm *TriggerManager) passesFrequency(trigger *TriggeredAbility, turn int) bool {
	switch trigger.Frequency {
	case FrequencyOncePerTurn:
		return trigger.firedTurn != turn
	case FrequencyOncePerGame:
		return !trigger.firedEver
	default:
		return true
	}
}

// MarkFired records that the ability resolved this turn, and unregisters it
// if it was a one-shot.
func (tm *TriggerManager) MarkFired(id string, turn int) {
	trigger, ok := tm.triggers[id]
	if !ok {
		return
	}
	trigger.firedTurn = turn
	trigger.firedEver = true
	if trigger.Once {
		tm.Unregister(id)
	}
}

// Get returns a registered trigger by id.
func (tm *TriggerManager) Get(id string) (*TriggeredAbility, bool) {
	trigger, ok := tm.triggers[id]
	return trigger, ok
}

// Snapshot captures the manager's registrations and fired marks. An operation
// that aborts mid-resolution (a pending player decision, a failed action)
// restores the snapshot so registrations and frequency marks made during the
// aborted run do not leak into the retry.
func (tm *TriggerManager) Snapshot() *TriggerManager {
	cp := &TriggerManager{
		triggers: make(map[string]*TriggeredAbility, len(tm.triggers)),
		order:    append([]string(nil), tm.order...),
	}
	for id, trigger := range tm.triggers {
		c := *trigger
		cp.triggers[id] = &c
	}
	return cp
}

// Restore replaces the manager's contents with a previously taken snapshot.
func (tm *TriggerManager) Restore(snap *TriggerManager) {
	tm.triggers = make(map[string]*TriggeredAbility, len(snap.triggers))
	for id, trigger := range snap.triggers {
		c := *trigger
		tm.triggers[id] = &c
	}
	tm.order = append([]string(nil), snap.order...)
}
