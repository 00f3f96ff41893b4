package client

import (
	"time"

	"github.com/remindful/remindful/internal/model"
)

// Conflict resolutions.
const (
	// ResolutionRemoteWins means the remote copy had the later
	// updated_at; it overwrote the local row and the queued local
	// change was discarded.
	ResolutionRemoteWins = "remote_wins"
	// ResolutionLocalWins means the local change had the later
	// updated_at and the remote accepted it.
	ResolutionLocalWins = "local_wins"
)

// Request is one reconciliation round's upload: the device identity, the
// watermark of the last completed round, and the drained change queue.
type Request struct {
	ClientID string                `json:"client_id"`
	LastSync *time.Time            `json:"last_sync"`
	Changes  []*model.ChangeRecord `json:"changes"`
}

// Conflict reports one last-write-wins arbitration. Conflicts are not
// errors; they are always resolved deterministically and reported for
// observability.
type Conflict struct {
	ID              string    `json:"id"`
	LocalUpdatedAt  time.Time `json:"local_updated_at"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
	Resolution      string    `json:"resolution"`
}

// Response is the remote's half of a reconciliation round: rows changed
// on the server since the watermark, the conflicts it arbitrated, and
// the new watermark to persist.
type Response struct {
	ServerChanges []*model.Reminder `json:"server_changes"`
	Conflicts     []Conflict        `json:"conflicts"`
	AppliedCount  int               `json:"applied_count"`
	SyncTimestamp time.Time         `json:"sync_timestamp"`
}
