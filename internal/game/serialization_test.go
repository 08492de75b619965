package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := testState()
	addCharacter(s, "alice", "soldier", 3000)
	addResourceTokens(s, "bob", 2)
	addLifeCards(s, "bob", 3)

	snap := NewSnapshot(s)
	data, err := snap.Encode()
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, SnapshotFormatVersion, decoded.FormatVersion)
	assert.Equal(t, StateChecksum(s), decoded.Checksum())
}

func TestDecodeSnapshotRejectsWrongVersion(t *testing.T) {
	s := testState()
	snap := NewSnapshot(s)
	snap.FormatVersion = 99
	data, err := snap.Encode()
	require.NoError(t, err)

	_, err = DecodeSnapshot(data)
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestChecksumIgnoresLogText(t *testing.T) {
	s := testState()
	before := StateChecksum(s)
	s.AppendLog("purely cosmetic line")
	assert.Equal(t, before, StateChecksum(s), "the append-only log is not rules-visible")
}

func TestChecksumSeesRulesVisibleChanges(t *testing.T) {
	s := testState()
	base := StateChecksum(s)

	withChar := s.Clone()
	addCharacter(withChar, "alice", "soldier", 3000)
	assert.NotEqual(t, base, StateChecksum(withChar))

	rested := s.Clone()
	rested.Players["alice"].Leader.State = StateRested
	assert.NotEqual(t, base, StateChecksum(rested))

	advanced := s.Clone()
	advanced.RNG.Next()
	assert.NotEqual(t, base, StateChecksum(advanced), "RNG position is part of determinism")
}

func TestChecksumStableAcrossClones(t *testing.T) {
	s := testState()
	addCharacter(s, "alice", "soldier", 3000)
	addLifeCards(s, "bob", 2)
	assert.Equal(t, StateChecksum(s), StateChecksum(s.Clone()))
}
