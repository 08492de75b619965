package effects

import (
	"github.com/google/uuid"

	"github.com/harborline/armada-server-go/internal/game/rules"
)

// ResourceTokenBonus is the fixed power granted per attached resource token.
// The bonus only counts during the attached card's owner's turn.
const ResourceTokenBonus = 1000

// Modifier is one continuous stat adjustment. Modifiers are plain values;
// the ledger owns ordering via the Seq field, which implements the
// "last set-base wins" rule.
type Modifier struct {
	ID            string
	Stat          rules.Stat
	Mode          rules.ModifierMode
	Amount        int
	Targets       []int64
	Duration      rules.Duration
	Source        int64
	Owner         string // controller; until-refresh effects hold until this player's refresh
	CreatedTurn   int
	Seq           int
	CountSelector *rules.Selector // live count input for ModePerCount
}

func (m Modifier) targets(instance int64) bool {
	for _, id := range m.Targets {
		if id == instance {
			return true
		}
	}
	return false
}

// StatQuery supplies the live inputs a stat computation needs from the game
// state, without the ledger depending on the state representation.
type StatQuery struct {
	// OwnerTurn is true while it is the queried card's owner's turn.
	OwnerTurn bool
	// TokenCount is the number of resource tokens attached to the card.
	TokenCount int
	// Count resolves a selector to a live board count (per-count modifiers).
	Count func(rules.Selector) int
	// SourcePrinted resolves an instance id to its printed power, reporting
	// false when the instance has left play.
	SourcePrinted func(int64) (int, bool)
}

// Ledger holds all active continuous effects. It is part of GameState's
// value: mutations happen only on a cloned ledger.
type Ledger struct {
	Mods    []Modifier
	NextSeq int
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Clone returns a deep copy for copy-on-write state mutation.
func (l *Ledger) Clone() *Ledger {
	cl := &Ledger{NextSeq: l.NextSeq, Mods: make([]Modifier, len(l.Mods))}
	copy(cl.Mods, l.Mods)
	for i := range cl.Mods {
		cl.Mods[i].Targets = append([]int64(nil), l.Mods[i].Targets...)
		if l.Mods[i].CountSelector != nil {
			sel := *l.Mods[i].CountSelector
			cl.Mods[i].CountSelector = &sel
		}
	}
	return cl
}

// Add registers a modifier and returns its id.
func (l *Ledger) Add(mod Modifier) string {
	if mod.ID == "" {
		mod.ID = uuid.NewString()
	}
	l.NextSeq++
	mod.Seq = l.NextSeq
	l.Mods = append(l.Mods, mod)
	return mod.ID
}

// Remove deletes a modifier by id.
func (l *Ledger) Remove(id string) {
	for i := range l.Mods {
		if l.Mods[i].ID == id {
			l.Mods = append(l.Mods[:i], l.Mods[i+1:]...)
			return
		}
	}
}

// RemoveByTarget strips every modifier targeting the instance. Called when a
// zone change destroys the instance's identity.
func (l *Ledger) RemoveByTarget(instance int64) int {
	return l.filter(func(m Modifier) bool { return !m.targets(instance) })
}

// RemoveBySource strips every modifier whose source is the instance. This is
// how permanent-duration effects end: their source leaves play.
func (l *Ledger) RemoveBySource(instance int64) int {
	return l.filter(func(m Modifier) bool { return m.Source != instance })
}

// ExpireBoundary removes modifiers whose duration is scoped to the boundary.
// The player is the one the boundary belongs to (the refreshing player, the
// turn player); an until-refresh modifier survives everyone else's refresh.
func (l *Ledger) ExpireBoundary(boundary rules.EventType, player string) int {
	return l.filter(func(m Modifier) bool {
		if !m.Duration.ExpiresAt(boundary) {
			return true
		}
		if m.Duration == rules.DurationUntilRefresh && m.Owner != "" && m.Owner != player {
			return true
		}
		return false
	})
}

func (l *Ledger) filter(keep func(Modifier) bool) int {
	kept := l.Mods[:0]
	removed := 0
	for _, m := range l.Mods {
		if keep(m) {
			kept = append(kept, m)
		} else {
			removed++
		}
	}
	l.Mods = kept
	return removed
}

// ModifiersFor returns the modifiers targeting an instance, in registration
// order.
func (l *Ledger) ModifiersFor(instance int64) []Modifier {
	var out []Modifier
	for _, m := range l.Mods {
		if m.targets(instance) {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of active modifiers.
func (l *Ledger) Len() int {
	return len(l.Mods)
}

// StatValue computes the effective value of a stat for an instance:
// printed value, then the most recent set-base override, then the sum of all
// additive modifiers, then the resource-token power bonus. Per-count amounts
// resolve against the live board through q.Count.
func (l *Ledger) StatValue(stat rules.Stat, printed int, instance int64, q StatQuery) int {
	base := printed
	baseSeq := -1
	sum := 0
	for _, m := range l.Mods {
		if m.Stat != stat || !m.targets(instance) {
			continue
		}
		switch m.Mode {
		case rules.ModeSetBase:
			if m.Seq > baseSeq {
				base = m.Amount
				baseSeq = m.Seq
			}
		case rules.ModeSetBaseFromSource:
			// Inert once the source has left play: no stale frozen value.
			if q.SourcePrinted != nil {
				if v, ok := q.SourcePrinted(m.Source); ok && m.Seq > baseSeq {
					base = v
					baseSeq = m.Seq
				}
			}
		case rules.ModeAdd:
			sum += m.Amount
		case rules.ModePerCount:
			if m.CountSelector != nil && q.Count != nil {
				sum += m.Amount * q.Count(*m.CountSelector)
			}
		}
	}
	value := base + sum
	if stat == rules.StatPower && q.OwnerTurn {
		value += q.TokenCount * ResourceTokenBonus
	}
	return value
}
