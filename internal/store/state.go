package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncState is the durable per-device sync identity: a stable client id
// and the watermark of the last completed round.
type SyncState struct {
	ClientID string
	LastSync time.Time // zero before the first successful round
}

// LoadSyncState reads the sync state row, creating it with a fresh client
// id on first run. The client id is generated once per database and never
// changes afterwards.
func (s *Store) LoadSyncState(ctx context.Context) (*SyncState, error) {
	var clientID string
	var lastSync sql.NullString

	err := s.conn.QueryRowContext(ctx,
		`SELECT client_id, last_sync FROM sync_state WHERE id = 1`).
		Scan(&clientID, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		clientID = uuid.NewString()
		if _, err := s.conn.ExecContext(ctx,
			`INSERT INTO sync_state (id, client_id, last_sync) VALUES (1, ?, NULL)`,
			clientID); err != nil {
			return nil, fmt.Errorf("failed to initialize sync state: %w", err)
		}
		return &SyncState{ClientID: clientID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	state := &SyncState{ClientID: clientID}
	if t := nullStringToTime(lastSync); t != nil {
		state.LastSync = *t
	}
	return state, nil
}

// SaveWatermark persists the watermark of a completed sync round.
func (s *Store) SaveWatermark(ctx context.Context, lastSync time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE sync_state SET last_sync = ? WHERE id = 1`,
		formatTimestamp(lastSync))
	if err != nil {
		return fmt.Errorf("failed to save sync watermark: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sync state not initialized")
	}
	return nil
}
