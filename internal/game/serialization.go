package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// SnapshotFormatVersion is bumped on any layout change so stale snapshots are
// rejected instead of misread.
const SnapshotFormatVersion = 1

// Snapshot is a versioned, self-contained capture of one game state, used by
// the relay (authoritative state broadcast), the repository, and replay
// verification.
type Snapshot struct {
	FormatVersion int
	Timestamp     time.Time
	State         *GameState
}

// NewSnapshot captures a deep copy of the state.
func NewSnapshot(state *GameState) *Snapshot {
	return &Snapshot{
		FormatVersion: SnapshotFormatVersion,
		Timestamp:     time.Now().UTC(),
		State:         state.Clone(),
	}
}

// Encode serializes the snapshot to gob bytes.
func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot deserializes gob bytes into a snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.FormatVersion != SnapshotFormatVersion {
		return nil, fmt.Errorf("snapshot format %d, want %d: %w", s.FormatVersion, SnapshotFormatVersion, ErrNotImplemented)
	}
	return &s, nil
}

// Checksum computes a deterministic SHA-256 over the snapshot's state. Two
// states that differ only in log text or capture timestamp produce the same
// checksum; any rules-visible difference changes it. The relay compares
// checksums across peers to detect divergence.
func (s *Snapshot) Checksum() string {
	return StateChecksum(s.State)
}

// StateChecksum builds the canonical representation of a state and hashes it.
// Maps are walked in sorted key order so the result is independent of
// iteration order.
func StateChecksum(state *GameState) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "GAME:%s|%d|%s|%s|%s|%d|%d\n",
		state.GameID, state.Turn, state.Phase,
		state.ActivePlayer, state.Winner,
		state.NextInstanceID, state.RNG.State)

	playerIDs := make([]string, 0, len(state.Players))
	for id := range state.Players {
		playerIDs = append(playerIDs, id)
	}
	sort.Strings(playerIDs)
	for _, id := range playerIDs {
		p := state.Players[id]
		fmt.Fprintf(&buf, "PLAYER:%s|%t\n", id, p.Defeated)
		writeInstance(&buf, "LEADER", p.Leader)
		writeInstance(&buf, "STAGE", p.Stage)
		writeInstances(&buf, "CHAR", p.Characters)
		writeInstances(&buf, "HAND", p.Hand)
		writeInstances(&buf, "DECK", p.Deck)
		writeInstances(&buf, "TRASH", p.Trash)
		writeInstances(&buf, "LIFE", p.Life)
		writeInstances(&buf, "POOL", p.ResourceArea)
	}

	for _, mod := range state.Ledger.Mods {
		fmt.Fprintf(&buf, "MOD:%s|%s|%d|%s|%d|%s|%d|%v\n",
			mod.Stat, mod.Mode, mod.Amount, mod.Duration, mod.Source, mod.Owner, mod.Seq, mod.Targets)
	}
	for _, eff := range state.Replacements.Effects {
		fmt.Fprintf(&buf, "REPL:%s|%s|%d|%d|%d\n",
			eff.Event, eff.Owner, eff.Source, eff.TriggerCount, eff.Seq)
	}
	if state.Battle != nil {
		b := state.Battle
		fmt.Fprintf(&buf, "BATTLE:%d|%d|%s|%d|%t|%t\n",
			b.Attacker, b.Target, b.Step, b.CounterPower, b.BlockerUsed, b.Locked)
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeInstance(buf *bytes.Buffer, label string, inst *CardInstance) {
	if inst == nil {
		return
	}
	fmt.Fprintf(buf, "  %s:%d|%s|%s|%s|%t|%d\n",
		label, inst.InstanceID, inst.CardID, inst.State, inst.Zone, inst.FaceUp, inst.PlayedTurn)
	for _, a := range inst.Attached {
		fmt.Fprintf(buf, "    TOKEN:%d|%s\n", a.InstanceID, a.State)
	}
}

func writeInstances(buf *bytes.Buffer, label string, insts []*CardInstance) {
	for _, inst := range insts {
		writeInstance(buf, label, inst)
	}
}
