package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/armada-server-go/internal/game/rules"
)

const sampleYAML = `
- id: ldr-storm
  name: Storm Captain
  category: LEADER
  power: 5000
  life: 4
- id: chr-raider
  name: Deck Raider
  category: CHARACTER
  power: 3000
  cost: 2
  counter: 1000
  keywords: [RUSH]
  abilities:
    - timing: on-play
      effect:
        - kind: DEAL_DAMAGE
          count: 1
    - timing: activate-main
      frequency: ONCE_PER_TURN
      cost:
        resources: 1
        restSource: true
      effect:
        - kind: MODIFY_STAT
          stat: POWER
          mode: ADD
          amount: 1000
          duration: THIS_TURN
          target:
            player: alice
`

func TestParseCardFile(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	leader, ok := c.Card("ldr-storm")
	require.True(t, ok)
	assert.Equal(t, "LEADER", leader.Category)
	assert.Equal(t, 4, leader.Life)

	raider, ok := c.Card("chr-raider")
	require.True(t, ok)
	assert.Equal(t, []string{"RUSH"}, raider.Keywords)
	require.Len(t, raider.Abilities, 2)

	onPlay := raider.Abilities[0]
	assert.Equal(t, TimingOnPlay, onPlay.Timing)
	require.Len(t, onPlay.Effect, 1)
	assert.Equal(t, rules.ActionDealDamage, onPlay.Effect[0].Kind)

	activated := raider.Abilities[1]
	assert.Equal(t, TimingActivateMain, activated.Timing)
	assert.Equal(t, rules.FrequencyOncePerTurn, activated.Frequency)
	assert.Equal(t, rules.Cost{Resources: 1, RestSource: true}, activated.Cost)
	require.Len(t, activated.Effect, 1)
	assert.Equal(t, rules.ModeAdd, activated.Effect[0].Mode)
	assert.Equal(t, rules.DurationThisTurn, activated.Effect[0].Duration)
	assert.Equal(t, "alice", activated.Effect[0].Target.Player)
}

func TestNewRejectsDuplicateID(t *testing.T) {
	_, err := New([]Card{
		{ID: "chr-raider", Name: "Deck Raider"},
		{ID: "chr-raider", Name: "Deck Raider (alt art)"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate card id")
}

func TestNewRejectsMissingID(t *testing.T) {
	_, err := New([]Card{{Name: "Nameless"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no id")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("id: not-a-list"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
