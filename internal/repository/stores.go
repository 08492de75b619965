package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harborline/armada-server-go/internal/game"
)

// ErrNotFound is returned when no row exists for the requested game.
var ErrNotFound = errors.New("not found")

// ReplayStore persists replay logs by game id.
type ReplayStore struct {
	db *DB
}

// NewReplayStore creates a replay store over the pool.
func NewReplayStore(db *DB) *ReplayStore {
	return &ReplayStore{db: db}
}

// Save upserts a replay log.
func (s *ReplayStore) Save(ctx context.Context, log *game.ReplayLog) error {
	data, err := game.EncodeReplayLog(log)
	if err != nil {
		return err
	}
	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO replays (game_id, log) VALUES ($1, $2)
		ON CONFLICT (game_id) DO UPDATE SET log = EXCLUDED.log`,
		log.GameID, data)
	if err != nil {
		return fmt.Errorf("save replay %s: %w", log.GameID, err)
	}
	return nil
}

// Load fetches a replay log by game id.
func (s *ReplayStore) Load(ctx context.Context, gameID string) (*game.ReplayLog, error) {
	var data []byte
	err := s.db.pool.QueryRow(ctx,
		`SELECT log FROM replays WHERE game_id = $1`, gameID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("replay %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load replay %s: %w", gameID, err)
	}
	return game.DecodeReplayLog(data)
}

// SnapshotStore persists the latest state snapshot per game, with its
// checksum for divergence auditing.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a snapshot store over the pool.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save upserts the snapshot for a game.
func (s *SnapshotStore) Save(ctx context.Context, snapshot *game.Snapshot) error {
	data, err := snapshot.Encode()
	if err != nil {
		return err
	}
	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO snapshots (game_id, snapshot, checksum) VALUES ($1, $2, $3)
		ON CONFLICT (game_id) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, checksum = EXCLUDED.checksum, updated_at = now()`,
		snapshot.State.GameID, data, snapshot.Checksum())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snapshot.State.GameID, err)
	}
	return nil
}

// Load fetches the latest snapshot for a game.
func (s *SnapshotStore) Load(ctx context.Context, gameID string) (*game.Snapshot, error) {
	var data []byte
	err := s.db.pool.QueryRow(ctx,
		`SELECT snapshot FROM snapshots WHERE game_id = $1`, gameID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", gameID, err)
	}
	return game.DecodeSnapshot(data)
}
