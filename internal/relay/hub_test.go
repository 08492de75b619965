package relay

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborline/armada-server-go/internal/catalog"
	"github.com/harborline/armada-server-go/internal/game"
	"github.com/harborline/armada-server-go/internal/game/rules"
)

func relayCatalog(t *testing.T) catalog.Provider {
	t.Helper()
	c, err := catalog.New([]catalog.Card{
		{ID: "ldr", Name: "Captain", Category: "LEADER", Power: 5000, Life: 3},
		{ID: "grunt", Name: "Grunt", Category: "CHARACTER", Power: 3000, Cost: 1, Counter: 1000},
	})
	require.NoError(t, err)
	return c
}

func relayEngine(t *testing.T) *game.Engine {
	t.Helper()
	deck := make([]string, 12)
	for i := range deck {
		deck[i] = "grunt"
	}
	e := game.NewEngine(relayCatalog(t), game.AuthorityHost, nil, nil)
	require.NoError(t, e.CreateGame("game-1", 7, []game.PlayerSetup{
		{PlayerID: "alice", LeaderID: "ldr", Deck: deck},
		{PlayerID: "bob", LeaderID: "ldr", Deck: deck},
	}))
	return e
}

type replayCapture struct {
	logs []*game.ReplayLog
}

func (c *replayCapture) Save(_ context.Context, log *game.ReplayLog) error {
	c.logs = append(c.logs, log)
	return nil
}

type snapshotCapture struct {
	snaps []*game.Snapshot
}

func (c *snapshotCapture) Save(_ context.Context, snap *game.Snapshot) error {
	c.snaps = append(c.snaps, snap)
	return nil
}

func TestPersistFinishedWritesAllSinks(t *testing.T) {
	dir := t.TempDir()
	replays := &replayCapture{}
	snapshots := &snapshotCapture{}
	h := NewHub(relayCatalog(t), Persistence{
		Replays:   replays,
		Snapshots: snapshots,
		Recorder:  game.NewReplayRecorder(dir, nil),
	}, nil)

	e := relayEngine(t)
	h.persistFinished("game-1", e, e.State())

	assert.FileExists(t, filepath.Join(dir, "game-1.replay"))
	loaded, err := game.NewReplayRecorder(dir, nil).Load("game-1")
	require.NoError(t, err)
	assert.Equal(t, "game-1", loaded.GameID)

	require.Len(t, replays.logs, 1)
	assert.Equal(t, "game-1", replays.logs[0].GameID)
	require.Len(t, snapshots.snaps, 1)
	assert.Equal(t, game.StateChecksum(e.State()), game.StateChecksum(snapshots.snaps[0].State))
}

func TestPersistFinishedSkipsNilSinks(t *testing.T) {
	h := NewHub(relayCatalog(t), Persistence{}, nil)
	e := relayEngine(t)
	// No sinks configured; must be a no-op rather than a panic.
	h.persistFinished("game-1", e, e.State())
}

func TestForwardEventReachesClients(t *testing.T) {
	h := NewHub(relayCatalog(t), Persistence{}, nil)
	client := &Client{out: make(chan []byte, 4), logger: zap.NewNop()}
	sess := &session{clients: map[*Client]string{client: "alice"}}

	ev := rules.NewEvent(rules.EventCardDrawn, 42, "alice")
	h.forwardEvent("game-1", sess, ev)

	var env Envelope
	select {
	case data := <-client.out:
		require.NoError(t, json.Unmarshal(data, &env))
	default:
		t.Fatal("no frame forwarded")
	}
	assert.Equal(t, MsgEvent, env.Type)

	var payload EventPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "game-1", payload.GameID)
	assert.Equal(t, string(rules.EventCardDrawn), payload.Type)
	assert.Equal(t, int64(42), payload.Target)
	assert.Equal(t, "alice", payload.Player)
	assert.False(t, payload.Time.IsZero(), "forwarding stamps the wall clock")
}

func TestForwardEventFiltersInternalEvents(t *testing.T) {
	h := NewHub(relayCatalog(t), Persistence{}, nil)
	client := &Client{out: make(chan []byte, 4), logger: zap.NewNop()}
	sess := &session{clients: map[*Client]string{client: "alice"}}

	h.forwardEvent("game-1", sess, rules.NewEvent(rules.EventCardMoved, 42, "alice"))

	select {
	case <-client.out:
		t.Fatal("internal event must not reach clients")
	default:
	}
}
