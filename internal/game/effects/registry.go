package effects

import (
	"fmt"

	"github.com/harborline/armada-server-go/internal/game/rules"
)

// Registry holds all active replacement effects. Like the ledger it is part
// of GameState's value and is only mutated on a clone.
type Registry struct {
	Effects []ReplacementEffect
	NextSeq int
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Clone returns a deep copy for copy-on-write state mutation.
func (r *Registry) Clone() *Registry {
	cl := &Registry{NextSeq: r.NextSeq, Effects: make([]ReplacementEffect, len(r.Effects))}
	copy(cl.Effects, r.Effects)
	for i := range cl.Effects {
		cl.Effects[i].Actions = append([]rules.Action(nil), r.Effects[i].Actions...)
	}
	return cl
}

// Register installs an effect and returns its id. Ids derive from the
// registry's own sequence counter, which travels with the game state, so the
// same registration order always yields the same ids. Decisions recorded in
// the replay log refer to effects by these ids and must resolve identically
// on replay.
func (r *Registry) Register(effect ReplacementEffect) string {
	r.NextSeq++
	effect.Seq = r.NextSeq
	if effect.ID == "" {
		effect.ID = fmt.Sprintf("repl-%d", effect.Seq)
	}
	r.Effects = append(r.Effects, effect)
	return effect.ID
}

// Get returns a registered effect by id.
func (r *Registry) Get(id string) (ReplacementEffect, bool) {
	for _, e := range r.Effects {
		if e.ID == id {
			return e, true
		}
	}
	return ReplacementEffect{}, false
}

// Check returns the effects applicable to the event, in precedence order:
// the effects owned by the player who generated the event first, then the
// turn player's, then the non-turn player's, stable registration order
// within each group.
func (r *Registry) Check(event rules.Event, targetOwner, turnPlayer string) []ReplacementEffect {
	var generator, turn, other []ReplacementEffect
	for _, e := range r.Effects {
		if !e.AppliesTo(event, targetOwner) {
			continue
		}
		switch e.Owner {
		case event.Generator:
			generator = append(generator, e)
		case turnPlayer:
			turn = append(turn, e)
		default:
			other = append(other, e)
		}
	}
	ordered := append(generator, turn...)
	return append(ordered, other...)
}

// MarkApplied increments the effect's trigger count and removes it once
// MaxTriggers is reached. It returns the post-increment effect and whether
// it was found.
func (r *Registry) MarkApplied(id string) (ReplacementEffect, bool) {
	for i := range r.Effects {
		if r.Effects[i].ID != id {
			continue
		}
		r.Effects[i].TriggerCount++
		applied := r.Effects[i]
		if applied.Exhausted() {
			r.Effects = append(r.Effects[:i], r.Effects[i+1:]...)
		}
		return applied, true
	}
	return ReplacementEffect{}, false
}

// Remove deletes an effect by id.
func (r *Registry) Remove(id string) {
	for i := range r.Effects {
		if r.Effects[i].ID == id {
			r.Effects = append(r.Effects[:i], r.Effects[i+1:]...)
			return
		}
	}
}

// RemoveBySource strips effects originating from the instance.
func (r *Registry) RemoveBySource(instance int64) int {
	return r.filter(func(e ReplacementEffect) bool { return e.Source != instance })
}

// Expire removes effects whose duration is scoped to the boundary. Like the
// ledger, until-refresh effects only expire at their owner's refresh step.
func (r *Registry) Expire(boundary rules.EventType, player string) int {
	return r.filter(func(e ReplacementEffect) bool {
		if !e.Duration.ExpiresAt(boundary) {
			return true
		}
		if e.Duration == rules.DurationUntilRefresh && e.Owner != "" && e.Owner != player {
			return true
		}
		return false
	})
}

func (r *Registry) filter(keep func(ReplacementEffect) bool) int {
	kept := r.Effects[:0]
	removed := 0
	for _, e := range r.Effects {
		if keep(e) {
			kept = append(kept, e)
		} else {
			removed++
		}
	}
	r.Effects = kept
	return removed
}

// Len returns the number of active effects.
func (r *Registry) Len() int {
	return len(r.Effects)
}
