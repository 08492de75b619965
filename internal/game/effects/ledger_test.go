package effects

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harborline/armada-server-go/internal/game/rules"
)

const instance = int64(7)

func addPowerMod(l *Ledger, mode rules.ModifierMode, amount int, duration rules.Duration) string {
	return l.Add(Modifier{
		Stat:     rules.StatPower,
		Mode:     mode,
		Amount:   amount,
		Targets:  []int64{instance},
		Duration: duration,
	})
}

func TestStatValueAdditiveSum(t *testing.T) {
	l := NewLedger()
	addPowerMod(l, rules.ModeAdd, 1000, rules.DurationThisTurn)
	addPowerMod(l, rules.ModeAdd, -500, rules.DurationThisTurn)

	got := l.StatValue(rules.StatPower, 3000, instance, StatQuery{})
	assert.Equal(t, 3500, got)
}

func TestStatValueLastSetBaseWins(t *testing.T) {
	l := NewLedger()
	addPowerMod(l, rules.ModeSetBase, 5000, rules.DurationThisTurn)
	addPowerMod(l, rules.ModeAdd, 1000, rules.DurationThisTurn)
	addPowerMod(l, rules.ModeSetBase, 2000, rules.DurationThisTurn)

	got := l.StatValue(rules.StatPower, 3000, instance, StatQuery{})
	assert.Equal(t, 3000, got, "most recent set-base (2000) replaces printed, adds still apply")
}

func TestStatValuePerCountIsLive(t *testing.T) {
	l := NewLedger()
	l.Add(Modifier{
		Stat:          rules.StatPower,
		Mode:          rules.ModePerCount,
		Amount:        500,
		Targets:       []int64{instance},
		Duration:      rules.DurationThisTurn,
		CountSelector: &rules.Selector{Player: "alice", Zone: "CHARACTERS"},
	})

	count := 3
	q := StatQuery{Count: func(rules.Selector) int { return count }}
	assert.Equal(t, 3000+1500, l.StatValue(rules.StatPower, 3000, instance, q))

	// The board changed; the same modifier now contributes differently.
	count = 1
	assert.Equal(t, 3000+500, l.StatValue(rules.StatPower, 3000, instance, q))
}

func TestStatValueSetBaseFromSourceInertWhenSourceGone(t *testing.T) {
	l := NewLedger()
	l.Add(Modifier{
		Stat:     rules.StatPower,
		Mode:     rules.ModeSetBaseFromSource,
		Targets:  []int64{instance},
		Duration: rules.DurationThisTurn,
		Source:   42,
	})

	present := StatQuery{SourcePrinted: func(id int64) (int, bool) { return 8000, id == 42 }}
	assert.Equal(t, 8000, l.StatValue(rules.StatPower, 3000, instance, present))

	gone := StatQuery{SourcePrinted: func(int64) (int, bool) { return 0, false }}
	assert.Equal(t, 3000, l.StatValue(rules.StatPower, 3000, instance, gone),
		"a source that left play contributes nothing")
}

func TestStatValueTokenBonusOwnerTurnOnly(t *testing.T) {
	l := NewLedger()

	ownerTurn := StatQuery{OwnerTurn: true, TokenCount: 2}
	assert.Equal(t, 3000+2*ResourceTokenBonus, l.StatValue(rules.StatPower, 3000, instance, ownerTurn))

	offTurn := StatQuery{OwnerTurn: false, TokenCount: 2}
	assert.Equal(t, 3000, l.StatValue(rules.StatPower, 3000, instance, offTurn))

	// The bonus is a power concept; cost never sees it.
	cost := l.StatValue(rules.StatCost, 4, instance, ownerTurn)
	assert.Equal(t, 4, cost)
}

func TestExpireBoundary(t *testing.T) {
	l := NewLedger()
	addPowerMod(l, rules.ModeAdd, 1, rules.DurationThisBattle)
	addPowerMod(l, rules.ModeAdd, 2, rules.DurationThisTurn)
	addPowerMod(l, rules.ModeAdd, 3, rules.DurationUntilRefresh)
	addPowerMod(l, rules.ModeAdd, 4, rules.DurationPermanent)

	removed := l.ExpireBoundary(rules.EventBattleEnd, "alice")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 3, l.Len())

	removed = l.ExpireBoundary(rules.EventTurnEnd, "alice")
	assert.Equal(t, 1, removed, "turn end leaves until-refresh modifiers alive")

	removed = l.ExpireBoundary(rules.EventRefreshStep, "alice")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len(), "only the permanent modifier survives")
}

func TestUntilRefreshExpiresOnlyAtOwnersRefresh(t *testing.T) {
	l := NewLedger()
	l.Add(Modifier{
		Stat:     rules.StatPower,
		Mode:     rules.ModeAdd,
		Amount:   1000,
		Targets:  []int64{instance},
		Duration: rules.DurationUntilRefresh,
		Owner:    "alice",
	})

	assert.Equal(t, 0, l.ExpireBoundary(rules.EventTurnEnd, "alice"),
		"until-refresh outlives the turn it was created in")
	assert.Equal(t, 0, l.ExpireBoundary(rules.EventRefreshStep, "bob"),
		"the opponent's refresh does not end it")
	assert.Equal(t, 1, l.ExpireBoundary(rules.EventRefreshStep, "alice"))
	assert.Equal(t, 0, l.Len())
}

func TestRemoveByTargetAndSource(t *testing.T) {
	l := NewLedger()
	addPowerMod(l, rules.ModeAdd, 1, rules.DurationPermanent)
	l.Add(Modifier{
		Stat: rules.StatPower, Mode: rules.ModeAdd, Amount: 2,
		Targets: []int64{99}, Duration: rules.DurationPermanent, Source: instance,
	})

	assert.Equal(t, 1, l.RemoveByTarget(instance))
	assert.Equal(t, 1, l.RemoveBySource(instance))
	assert.Equal(t, 0, l.Len())
}

func TestCloneIsIndependent(t *testing.T) {
	l := NewLedger()
	id := addPowerMod(l, rules.ModeAdd, 1000, rules.DurationPermanent)

	cl := l.Clone()
	cl.Remove(id)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 0, cl.Len())
}
