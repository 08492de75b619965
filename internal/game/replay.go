package game

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborline/armada-server-go/internal/catalog"
)

// ReplayFormatVersion is bumped whenever the log layout changes; ReplayAll
// refuses logs from a different version rather than guessing.
const ReplayFormatVersion = 1

// ReplayLog is the complete deterministic record of one game: the seed and
// decklists that fix the starting state, then every accepted peer action in
// order, decisions included. Replaying the log against the same catalog
// reproduces the final state exactly.
type ReplayLog struct {
	FormatVersion int
	GameID        string
	Seed          uint64
	Setups        []PlayerSetup
	Entries       []PeerAction
	Recorded      time.Time
}

// NewReplayLog starts an empty log for a game.
func NewReplayLog(gameID string, seed uint64, setups []PlayerSetup) *ReplayLog {
	return &ReplayLog{
		FormatVersion: ReplayFormatVersion,
		GameID:        gameID,
		Seed:          seed,
		Setups:        append([]PlayerSetup(nil), setups...),
		Recorded:      time.Now().UTC(),
	}
}

// Append records one accepted action.
func (l *ReplayLog) Append(action PeerAction) {
	l.Entries = append(l.Entries, action)
}

// Copy returns an independent copy of the log.
func (l *ReplayLog) Copy() *ReplayLog {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Setups = append([]PlayerSetup(nil), l.Setups...)
	cp.Entries = append([]PeerAction(nil), l.Entries...)
	return &cp
}

// ReplayAll rebuilds the game from the log and applies every entry. Any
// failure is fatal and pinned to the offending log index; a log that applied
// cleanly live must apply cleanly here, so an error means the log, the
// catalog, or the engine diverged.
func ReplayAll(log *ReplayLog, provider catalog.Provider, logger *zap.Logger) (*GameState, error) {
	if log.FormatVersion != ReplayFormatVersion {
		return nil, fmt.Errorf("replay format %d, want %d: %w", log.FormatVersion, ReplayFormatVersion, ErrNotImplemented)
	}
	engine := NewEngine(provider, AuthorityHost, nil, logger)
	if err := engine.CreateGame(log.GameID, log.Seed, log.Setups); err != nil {
		return nil, &ReplayError{Index: -1, Err: err}
	}
	var state *GameState
	for i, action := range log.Entries {
		next, err := engine.Apply(action)
		if err != nil {
			return nil, &ReplayError{Index: i, Err: err}
		}
		state = next
	}
	if state == nil {
		state = engine.State()
	}
	return state, nil
}

// ReplayRecorder persists replay logs as gzipped gob files, one per game.
type ReplayRecorder struct {
	directory string
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewReplayRecorder creates a recorder writing into the directory.
func NewReplayRecorder(directory string, logger *zap.Logger) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{directory: directory, logger: logger}
}

// Save writes the log to <directory>/<gameID>.replay.
func (r *ReplayRecorder) Save(log *ReplayLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.directory, 0755); err != nil {
		return fmt.Errorf("create replay directory: %w", err)
	}
	data, err := EncodeReplayLog(log)
	if err != nil {
		return err
	}
	filename := filepath.Join(r.directory, fmt.Sprintf("%s.replay", log.GameID))
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write replay file: %w", err)
	}
	r.logger.Info("replay saved",
		zap.String("game_id", log.GameID),
		zap.String("file", filename),
		zap.Int("entries", len(log.Entries)))
	return nil
}

// Load reads a previously saved replay log by game id.
func (r *ReplayRecorder) Load(gameID string) (*ReplayLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filename := filepath.Join(r.directory, fmt.Sprintf("%s.replay", gameID))
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	return DecodeReplayLog(data)
}

// EncodeReplayLog serializes a log to gzipped gob bytes.
func EncodeReplayLog(log *ReplayLog) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(log); err != nil {
		return nil, fmt.Errorf("encode replay log: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finish replay log: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeReplayLog deserializes gzipped gob bytes into a log.
func DecodeReplayLog(data []byte) (*ReplayLog, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open replay log: %w", err)
	}
	defer gz.Close()
	var log ReplayLog
	if err := gob.NewDecoder(gz).Decode(&log); err != nil {
		return nil, fmt.Errorf("decode replay log: %w", err)
	}
	return &log, nil
}
