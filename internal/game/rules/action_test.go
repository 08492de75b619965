package rules

import "testing"

func TestDurationExpiresAt(t *testing.T) {
	cases := []struct {
		duration Duration
		boundary EventType
		want     bool
	}{
		{DurationThisBattle, EventBattleEnd, true},
		{DurationThisBattle, EventTurnEnd, false},
		{DurationThisTurn, EventTurnEnd, true},
		{DurationThisTurn, EventBattleEnd, false},
		{DurationUntilRefresh, EventRefreshStep, true},
		{DurationUntilRefresh, EventTurnEnd, false},
		{DurationPermanent, EventTurnEnd, false},
		{DurationPermanent, EventBattleEnd, false},
	}
	for _, c := range cases {
		if got := c.duration.ExpiresAt(c.boundary); got != c.want {
			t.Errorf("%s.ExpiresAt(%s) = %v, want %v", c.duration, c.boundary, got, c.want)
		}
	}
}

func TestSelectorMatches(t *testing.T) {
	exact := Selector{Instance: 7}
	if !exact.Matches(7, "alice") || exact.Matches(8, "alice") {
		t.Error("instance selector should match by id only")
	}

	byOwner := Selector{Player: "alice"}
	if !byOwner.Matches(7, "alice") || byOwner.Matches(7, "bob") {
		t.Error("player selector should match by owner only")
	}

	// Instance takes precedence over player when both are set.
	both := Selector{Instance: 7, Player: "bob"}
	if !both.Matches(7, "alice") {
		t.Error("instance match should win over owner mismatch")
	}

	if (Selector{}).Matches(7, "alice") {
		t.Error("zero selector should match nothing")
	}
	if !(Selector{Any: true}).Matches(7, "alice") {
		t.Error("any selector should match everything")
	}
}

func TestCostIsFree(t *testing.T) {
	if !(Cost{}).IsFree() {
		t.Error("zero cost should be free")
	}
	if (Cost{Resources: 1}).IsFree() || (Cost{RestSource: true}).IsFree() {
		t.Error("non-zero cost reported free")
	}
}
