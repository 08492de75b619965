package effects

import (
	"github.com/harborline/armada-server-go/internal/game/rules"
)

// ReplacementEffect is a registered "would-happen" interceptor. It watches
// for a single event type against a target selector and, when chosen,
// substitutes its own action list for the intercepted event. A given effect
// instance may be consulted many times but applies at most once per event
// occurrence, and at most MaxTriggers times in total.
type ReplacementEffect struct {
	ID           string
	Event        rules.EventType
	Target       rules.Selector
	Duration     rules.Duration
	Cost         rules.Cost
	Actions      []rules.Action
	MaxTriggers  int
	TriggerCount int
	Owner        string // player who registered the effect
	Source       int64  // instance the effect originated from (0 = none)
	Seq          int    // registration order, final precedence tiebreak
}

// NewReplacementEffect builds an effect from its declarative spec. The id is
// left empty; the registry assigns one at registration.
func NewReplacementEffect(spec rules.ReplacementSpec, owner string, source int64) ReplacementEffect {
	maxTriggers := spec.MaxTriggers
	if maxTriggers <= 0 {
		maxTriggers = 1
	}
	return ReplacementEffect{
		Event:       spec.Event,
		Target:      spec.Target,
		Duration:    spec.Duration,
		Cost:        spec.Cost,
		Actions:     spec.Actions,
		MaxTriggers: maxTriggers,
		Owner:       owner,
		Source:      source,
	}
}

// Exhausted reports whether the effect has used up its applications.
func (e ReplacementEffect) Exhausted() bool {
	return e.TriggerCount >= e.MaxTriggers
}

// AppliesTo reports whether the effect can intercept the given event
// occurrence: event type match, target-selector match, not exhausted, and
// not already applied to this occurrence.
func (e ReplacementEffect) AppliesTo(event rules.Event, targetOwner string) bool {
	if e.Event != event.Type || e.Exhausted() {
		return false
	}
	if event.WasAppliedTo(e.ID) {
		return false
	}
	return e.Target.Matches(event.Target, targetOwner)
}
