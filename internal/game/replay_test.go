package game

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playScriptedGame(t *testing.T) (*Engine, *GameState) {
	t.Helper()
	e := newTestEngine(t)
	s := e.State()

	var next *GameState
	var err error
	script := []PeerAction{
		{Type: PeerPlayCard, Player: "alice", Instance: s.Players["alice"].Hand[0].InstanceID},
		{Type: PeerDeclareAttack, Player: "alice", Instance: s.Players["alice"].Leader.InstanceID},
		{Type: PeerChooseTarget, Player: "alice", Target: s.Players["bob"].Leader.InstanceID},
		{Type: PeerAdvanceBattle, Player: "alice"},
		{Type: PeerAdvanceBattle, Player: "alice"},
		{Type: PeerAdvanceBattle, Player: "alice"},
		{Type: PeerEndTurn, Player: "alice"},
	}
	for _, action := range script {
		next, err = e.Apply(action)
		require.NoError(t, err)
	}
	return e, next
}

func TestReplayReproducesFinalState(t *testing.T) {
	e, final := playScriptedGame(t)

	replayed, err := ReplayAll(e.Log(), testCatalog(t), nil)
	require.NoError(t, err)
	assert.Equal(t, StateChecksum(final), StateChecksum(replayed),
		"replaying the log must land on a checksum-identical state")
}

func TestReplayReplacementChoiceDecision(t *testing.T) {
	// Bob's deck is all damage interceptors: playing one installs two
	// competing replacements, so the battle damage forces an explicit choice.
	// The chosen effect id rides in the replay log and must resolve against
	// the ids the registry mints again on replay.
	e := NewEngine(testCatalog(t), AuthorityHost, nil, nil)
	aegisDeck := make([]string, 12)
	for i := range aegisDeck {
		aegisDeck[i] = "aegis"
	}
	setups := testSetups(12)
	setups[1].Deck = aegisDeck
	require.NoError(t, e.CreateGame("game-repl", 7, setups))

	s := e.State()
	script := []PeerAction{
		{Type: PeerEndTurn, Player: "alice"},
		{Type: PeerPlayCard, Player: "bob", Instance: s.Players["bob"].Hand[0].InstanceID},
		{Type: PeerEndTurn, Player: "bob"},
		{Type: PeerDeclareAttack, Player: "alice", Instance: s.Players["alice"].Leader.InstanceID},
		{Type: PeerChooseTarget, Player: "alice", Target: s.Players["bob"].Leader.InstanceID},
		{Type: PeerAdvanceBattle, Player: "alice"},
		{Type: PeerAdvanceBattle, Player: "alice"},
		{Type: PeerAdvanceBattle, Player: "alice"},
	}
	var sawChoice bool
	for _, action := range script {
		_, err := e.Apply(action)
		if pd, ok := AsPendingDecision(err); ok {
			require.Equal(t, DecisionReplacement, pd.Request.Kind)
			require.Equal(t, "bob", pd.Request.Player)
			require.Len(t, pd.Request.Options, 2)
			_, err = e.ResolveDecision("bob", Decision{EffectID: pd.Request.Options[0]})
			sawChoice = true
		}
		require.NoError(t, err)
	}
	require.True(t, sawChoice, "battle damage offered the replacement choice")

	final := e.State()
	assert.Len(t, final.Players["bob"].Life, 3, "chosen replacement absorbed the damage")

	replayed, err := ReplayAll(e.Log(), testCatalog(t), nil)
	require.NoError(t, err)
	assert.Equal(t, StateChecksum(final), StateChecksum(replayed))
}

func TestReplayFailureIsPinnedToIndex(t *testing.T) {
	e, _ := playScriptedGame(t)
	log := e.Log()

	// Corrupt one entry so it can no longer apply.
	log.Entries[1].Instance = 424242

	_, err := ReplayAll(log, testCatalog(t), nil)
	require.Error(t, err)
	var replayErr *ReplayError
	require.ErrorAs(t, err, &replayErr)
	assert.Equal(t, 1, replayErr.Index)
}

func TestReplayRejectsUnknownFormatVersion(t *testing.T) {
	e, _ := playScriptedGame(t)
	log := e.Log()
	log.FormatVersion = 99

	_, err := ReplayAll(log, testCatalog(t), nil)
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestReplayLogRoundTrip(t *testing.T) {
	e, _ := playScriptedGame(t)
	log := e.Log()

	data, err := EncodeReplayLog(log)
	require.NoError(t, err)
	decoded, err := DecodeReplayLog(data)
	require.NoError(t, err)

	assert.Equal(t, log.GameID, decoded.GameID)
	assert.Equal(t, log.Seed, decoded.Seed)
	assert.Equal(t, log.Entries, decoded.Entries)
}

func TestReplayRecorderSaveLoad(t *testing.T) {
	e, final := playScriptedGame(t)
	dir := t.TempDir()

	rec := NewReplayRecorder(dir, nil)
	require.NoError(t, rec.Save(e.Log()))
	assert.FileExists(t, filepath.Join(dir, "game-1.replay"))

	loaded, err := rec.Load("game-1")
	require.NoError(t, err)

	replayed, err := ReplayAll(loaded, testCatalog(t), nil)
	require.NoError(t, err)
	assert.Equal(t, StateChecksum(final), StateChecksum(replayed))
}
