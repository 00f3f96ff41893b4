package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/remindful/remindful/internal/client"
	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/store"
)

// Store is the slice of the persistence layer the sync endpoint needs.
// *store.Store satisfies it.
type Store interface {
	GetReminder(ctx context.Context, id string) (*model.Reminder, error)
	UpsertReminder(ctx context.Context, r *model.Reminder) error
	DeleteReminder(ctx context.Context, id string) error
	ChangedSince(ctx context.Context, watermark time.Time) ([]*model.Reminder, error)
}

// handleSync applies one client's reconciliation round. Incoming changes
// are arbitrated against the server copy by updated_at (strictly later
// wins); every arbitration against a row that moved since the client's
// watermark is reported as a conflict. The response carries the rows
// changed since the watermark, minus the ones this round just applied.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req client.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"detail":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, `{"detail":"client_id is required"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	applied := 0
	appliedIDs := make(map[string]bool, len(req.Changes))
	conflicts := []client.Conflict{}

	// Rows the server kept over an incoming change. The client must
	// receive the authoritative copy even when it predates the watermark.
	kept := []*model.Reminder{}

	for _, ch := range req.Changes {
		if err := ch.Validate(); err != nil {
			s.logger.Printf("Rejecting change from %s: %v", req.ClientID, err)
			continue
		}

		existing, err := s.store.GetReminder(ctx, ch.EntityID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.internalError(w, "failed to load reminder", err)
			return
		}

		if existing != nil {
			resolution := client.Resolve(ch.UpdatedAt, existing.UpdatedAt)
			if s.moved(existing, req.LastSync) && !existing.UpdatedAt.Equal(ch.UpdatedAt) {
				conflicts = append(conflicts, client.Conflict{
					ID:              ch.EntityID,
					LocalUpdatedAt:  ch.UpdatedAt,
					RemoteUpdatedAt: existing.UpdatedAt,
					Resolution:      resolution,
				})
			}
			if resolution == client.ResolutionRemoteWins {
				kept = append(kept, existing)
				continue
			}
		}

		if err := s.apply(ctx, ch); err != nil {
			s.internalError(w, "failed to apply change", err)
			return
		}
		applied++
		appliedIDs[ch.EntityID] = true
	}

	var watermark time.Time
	if req.LastSync != nil {
		watermark = *req.LastSync
	}
	changed, err := s.store.ChangedSince(ctx, watermark)
	if err != nil {
		s.internalError(w, "failed to collect server changes", err)
		return
	}

	serverChanges := []*model.Reminder{}
	seen := make(map[string]bool)
	for _, rem := range changed {
		if appliedIDs[rem.ID] {
			continue
		}
		serverChanges = append(serverChanges, rem)
		seen[rem.ID] = true
	}
	for _, rem := range kept {
		if !seen[rem.ID] {
			serverChanges = append(serverChanges, rem)
		}
	}

	s.logger.Printf("Sync from %s: received=%d applied=%d conflicts=%d returned=%d",
		req.ClientID, len(req.Changes), applied, len(conflicts), len(serverChanges))

	writeJSON(w, http.StatusOK, &client.Response{
		ServerChanges: serverChanges,
		Conflicts:     conflicts,
		AppliedCount:  applied,
		SyncTimestamp: time.Now().UTC(),
	})
}

// apply executes one accepted change against the store.
func (s *Server) apply(ctx context.Context, ch *model.ChangeRecord) error {
	if ch.Action == model.ActionDelete {
		return s.store.DeleteReminder(ctx, ch.EntityID)
	}
	rem, err := ch.Reminder()
	if err != nil {
		return err
	}
	if rem.ID == "" {
		rem.ID = ch.EntityID
	}
	rem.UpdatedAt = ch.UpdatedAt
	return s.store.UpsertReminder(ctx, rem)
}

// moved reports whether the server copy changed after the client's last
// completed round. Before the first round every existing row counts.
func (s *Server) moved(existing *model.Reminder, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	return existing.UpdatedAt.After(*lastSync)
}

// handleHealth reports liveness without requiring auth.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Printf("%s: %v", msg, err)
	http.Error(w, `{"detail":"internal error"}`, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
