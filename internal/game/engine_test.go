package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/armada-server-go/internal/catalog"
	"github.com/harborline/armada-server-go/internal/game/rules"
)

func testCatalog(t *testing.T) catalog.Provider {
	t.Helper()
	c, err := catalog.New([]catalog.Card{
		{ID: "ldr", Name: "Captain", Category: "LEADER", Power: 5000, Life: 3},
		{ID: "grunt", Name: "Grunt", Category: "CHARACTER", Power: 3000, Cost: 1, Counter: 1000},
		{ID: "bomber", Name: "Bomber", Category: "CHARACTER", Power: 2000, Cost: 1,
			Abilities: []catalog.Ability{{
				Timing: catalog.TimingOnPlay,
				Effect: []rules.Action{{Kind: rules.ActionDealDamage, Count: 1}},
			}}},
		{ID: "picker", Name: "Picker", Category: "CHARACTER", Power: 2000, Cost: 1,
			Abilities: []catalog.Ability{{
				Timing: catalog.TimingOnPlay,
				Effect: []rules.Action{{
					Kind: rules.ActionModifyStat, May: true,
					Target: rules.Selector{Player: "alice", Zone: string(ZoneLeader)},
					Stat:   rules.StatPower, Mode: rules.ModeAdd, Amount: 1000,
					Duration: rules.DurationThisTurn,
				}},
			}}},
		{ID: "warlord", Name: "Warlord", Category: "LEADER", Power: 5000, Life: 3,
			Abilities: []catalog.Ability{
				{
					Timing:    catalog.TimingOnAttack,
					Frequency: rules.FrequencyOncePerTurn,
					Effect: []rules.Action{{
						Kind:   rules.ActionModifyStat,
						Target: rules.Selector{Player: "alice", Zone: string(ZoneLeader)},
						Stat:   rules.StatPower, Mode: rules.ModeAdd, Amount: 1000,
						Duration: rules.DurationThisTurn,
					}},
				},
				{
					Timing: catalog.TimingOnAttack,
					Effect: []rules.Action{{
						Kind: rules.ActionModifyStat, May: true,
						Target: rules.Selector{Player: "alice", Zone: string(ZoneLeader)},
						Stat:   rules.StatPower, Mode: rules.ModeAdd, Amount: 500,
						Duration: rules.DurationThisTurn,
					}},
				},
			}},
		{ID: "aegis", Name: "Aegis", Category: "CHARACTER", Power: 2000, Cost: 1,
			Abilities: []catalog.Ability{{
				Timing: catalog.TimingOnPlay,
				Effect: []rules.Action{
					{Kind: rules.ActionRegisterReplacement, Replacement: &rules.ReplacementSpec{
						Event:       rules.EventDealDamage,
						Target:      rules.Selector{Player: "bob"},
						Duration:    rules.DurationPermanent,
						MaxTriggers: 1,
					}},
					{Kind: rules.ActionRegisterReplacement, Replacement: &rules.ReplacementSpec{
						Event:       rules.EventDealDamage,
						Target:      rules.Selector{Player: "bob"},
						Duration:    rules.DurationPermanent,
						MaxTriggers: 1,
					}},
				},
			}}},
	})
	require.NoError(t, err)
	return c
}

func testSetups(deckSize int) []PlayerSetup {
	deck := make([]string, deckSize)
	for i := range deck {
		deck[i] = "grunt"
	}
	return []PlayerSetup{
		{PlayerID: "alice", LeaderID: "ldr", Deck: deck},
		{PlayerID: "bob", LeaderID: "ldr", Deck: deck},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(testCatalog(t), AuthorityHost, nil, nil)
	require.NoError(t, e.CreateGame("game-1", 7, testSetups(12)))
	return e
}

func TestCreateGameSetsUpBoard(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()

	for _, pid := range []string{"alice", "bob"} {
		p := s.Players[pid]
		require.NotNil(t, p.Leader)
		assert.Equal(t, "ldr", p.Leader.CardID)
		assert.Len(t, p.Life, 3, "life equals the leader's printed life")
		assert.Len(t, p.Hand, StartingHandSize)
		assert.Len(t, p.Deck, 12-3-StartingHandSize)
	}
	assert.Equal(t, "alice", s.ActivePlayer)
	assert.Equal(t, PhaseMain, s.Phase)
	assert.Len(t, s.Players["alice"].ResourceArea, 1, "starting player gets one token")
	assert.Empty(t, s.Players["bob"].ResourceArea)
}

func TestCreateGameIsSeedDeterministic(t *testing.T) {
	a := NewEngine(testCatalog(t), AuthorityHost, nil, nil)
	b := NewEngine(testCatalog(t), AuthorityHost, nil, nil)
	require.NoError(t, a.CreateGame("g", 99, testSetups(12)))
	require.NoError(t, b.CreateGame("g", 99, testSetups(12)))
	assert.Equal(t, StateChecksum(a.State()), StateChecksum(b.State()))

	c := NewEngine(testCatalog(t), AuthorityHost, nil, nil)
	require.NoError(t, c.CreateGame("g", 100, testSetups(12)))
	assert.NotEqual(t, StateChecksum(a.State()), StateChecksum(c.State()))
}

func TestPlayCardThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()
	cardID := s.Players["alice"].Hand[0].InstanceID

	next, err := e.Apply(PeerAction{Type: PeerPlayCard, Player: "alice", Instance: cardID})
	require.NoError(t, err)
	assert.Len(t, next.Players["alice"].Characters, 1)
	assert.Empty(t, next.Players["alice"].ActiveResources(), "the single token paid the cost")
}

func TestPlayCardOutOfTurnRejected(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()
	cardID := s.Players["bob"].Hand[0].InstanceID

	_, err := e.Apply(PeerAction{Type: PeerPlayCard, Player: "bob", Instance: cardID})
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestEndTurnRefreshesAndDraws(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()
	cardID := s.Players["alice"].Hand[0].InstanceID
	_, err := e.Apply(PeerAction{Type: PeerPlayCard, Player: "alice", Instance: cardID})
	require.NoError(t, err)

	next, err := e.Apply(PeerAction{Type: PeerEndTurn, Player: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Turn)
	assert.Equal(t, "bob", next.ActivePlayer)
	assert.Equal(t, PhaseMain, next.Phase)
	assert.Len(t, next.Players["bob"].Hand, StartingHandSize+1, "incoming player draws")
	assert.Len(t, next.Players["bob"].ResourceArea, 1)

	// Alice's spent token comes back active on her next turn.
	next, err = e.Apply(PeerAction{Type: PeerEndTurn, Player: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice", next.ActivePlayer)
	assert.Len(t, next.Players["alice"].ActiveResources(), 2)
}

func TestOnPlayAbilityDealsDamage(t *testing.T) {
	e := newTestEngine(t)

	// Swap a hand card for the bomber so the on-play pipeline runs.
	e.mu.Lock()
	hand := e.state.Players["alice"].Hand
	hand[0].CardID = "bomber"
	hand[0].Name = "Bomber"
	cardID := hand[0].InstanceID
	e.mu.Unlock()

	next, err := e.Apply(PeerAction{Type: PeerPlayCard, Player: "alice", Instance: cardID})
	require.NoError(t, err)
	assert.Len(t, next.Players["bob"].Life, 2, "on-play damage removed a life card")
	assert.Len(t, next.Players["bob"].Hand, StartingHandSize+1)
}

func TestOptionalOnPlayBlocksAndResolves(t *testing.T) {
	e := newTestEngine(t)

	e.mu.Lock()
	hand := e.state.Players["alice"].Hand
	hand[0].CardID = "picker"
	hand[0].Name = "Picker"
	cardID := hand[0].InstanceID
	e.mu.Unlock()

	_, err := e.Apply(PeerAction{Type: PeerPlayCard, Player: "alice", Instance: cardID})
	pd, ok := AsPendingDecision(err)
	require.True(t, ok)
	assert.Equal(t, DecisionAccept, pd.Request.Kind)

	request, pending := e.Pending()
	require.True(t, pending)
	assert.Equal(t, "alice", request.Player)

	// State must be unchanged while blocked.
	assert.Empty(t, e.State().Players["alice"].Characters)

	next, err := e.ResolveDecision("alice", Decision{Accept: true})
	require.NoError(t, err)
	assert.Len(t, next.Players["alice"].Characters, 1)
	assert.Equal(t, 1, next.Ledger.Len(), "accepted optional effect registered its modifier")
	_, pending = e.Pending()
	assert.False(t, pending)
}

func TestOncePerTurnTriggerSurvivesDecisionRerun(t *testing.T) {
	e := NewEngine(testCatalog(t), AuthorityHost, nil, nil)
	setups := testSetups(12)
	setups[0].LeaderID = "warlord"
	require.NoError(t, e.CreateGame("game-trig", 7, setups))
	attacker := e.State().Players["alice"].Leader.InstanceID

	// The first on-attack ability (once per turn) resolves before the second
	// one blocks on its optional effect. The abort must unwind the frequency
	// mark so the re-run fires both.
	_, err := e.Apply(PeerAction{Type: PeerDeclareAttack, Player: "alice", Instance: attacker})
	pd, ok := AsPendingDecision(err)
	require.True(t, ok)
	assert.Equal(t, DecisionAccept, pd.Request.Kind)

	next, err := e.ResolveDecision("alice", Decision{Accept: true})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Ledger.Len(), "both on-attack modifiers landed")
}

func TestLeaderBattleThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()
	attacker := s.Players["alice"].Leader.InstanceID
	defender := s.Players["bob"].Leader.InstanceID

	steps := []PeerAction{
		{Type: PeerDeclareAttack, Player: "alice", Instance: attacker},
		{Type: PeerChooseTarget, Player: "alice", Target: defender},
		{Type: PeerAdvanceBattle, Player: "alice"},
		{Type: PeerAdvanceBattle, Player: "alice"},
		{Type: PeerAdvanceBattle, Player: "alice"},
	}
	var next *GameState
	var err error
	for _, step := range steps {
		next, err = e.Apply(step)
		require.NoError(t, err)
	}

	assert.Nil(t, next.Battle)
	assert.Len(t, next.Players["bob"].Life, 2, "5000 vs 5000 ties for the attacker")
	leader, _, _, _ := next.FindInstance(attacker)
	assert.Equal(t, StateRested, leader.State)
}

func TestGameOverRefusesFurtherActions(t *testing.T) {
	e := newTestEngine(t)

	e.mu.Lock()
	e.state.Players["bob"].Life = nil
	attacker := e.state.Players["alice"].Leader.InstanceID
	defender := e.state.Players["bob"].Leader.InstanceID
	e.mu.Unlock()

	steps := []PeerAction{
		{Type: PeerDeclareAttack, Player: "alice", Instance: attacker},
		{Type: PeerChooseTarget, Player: "alice", Target: defender},
		{Type: PeerAdvanceBattle, Player: "alice"},
		{Type: PeerAdvanceBattle, Player: "alice"},
	}
	for _, step := range steps {
		_, err := e.Apply(step)
		require.NoError(t, err)
	}
	next, err := e.Apply(PeerAction{Type: PeerAdvanceBattle, Player: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", next.Winner)

	_, err = e.Apply(PeerAction{Type: PeerEndTurn, Player: "alice"})
	require.ErrorIs(t, err, ErrGameOver)
}

func TestDeckOutDefeatsOnDraw(t *testing.T) {
	e := NewEngine(testCatalog(t), AuthorityHost, nil, nil)
	// 8 cards: 3 to life, 5 to hand, zero left to draw.
	require.NoError(t, e.CreateGame("game-deckout", 7, testSetups(8)))

	next, err := e.Apply(PeerAction{Type: PeerEndTurn, Player: "alice"})
	require.NoError(t, err)
	assert.True(t, next.Players["bob"].Defeated)
	assert.Equal(t, "alice", next.Winner)
}
