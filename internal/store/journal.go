package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/remindful/remindful/internal/model"
)

// The change_queue table is the durable side of queue.Queue. The queue
// keeps ordering in memory and calls back here on every mutation, so a
// crash between sync rounds loses nothing.

// JournalPut inserts or replaces the pending change for an entity.
func (s *Store) JournalPut(rec *model.ChangeRecord) error {
	var payload sql.NullString
	if len(rec.Payload) > 0 {
		payload = sql.NullString{String: string(rec.Payload), Valid: true}
	}
	_, err := s.conn.Exec(`
		INSERT INTO change_queue (entity_id, action, payload, updated_at, queued_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			action = excluded.action,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		rec.EntityID,
		rec.Action,
		payload,
		formatTimestamp(rec.UpdatedAt),
		formatTimestamp(rec.QueuedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to journal change for %s: %w", rec.EntityID, err)
	}
	return nil
}

// JournalRemove deletes the journaled changes for the given entity ids.
func (s *Store) JournalRemove(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.conn.Exec(
		"DELETE FROM change_queue WHERE entity_id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to remove journaled changes: %w", err)
	}
	return nil
}

// JournalLoad restores all pending changes in enqueue order.
func (s *Store) JournalLoad() ([]*model.ChangeRecord, error) {
	rows, err := s.conn.QueryContext(context.Background(), `
		SELECT entity_id, action, payload, updated_at, queued_at
		FROM change_queue ORDER BY queued_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load change journal: %w", err)
	}
	defer rows.Close()

	var recs []*model.ChangeRecord
	for rows.Next() {
		var rec model.ChangeRecord
		var payload sql.NullString
		var updatedAt, queuedAt string

		if err := rows.Scan(&rec.EntityID, &rec.Action, &payload, &updatedAt, &queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journaled change: %w", err)
		}
		if payload.Valid {
			rec.Payload = []byte(payload.String)
		}
		if t, err := parseTimestamp(updatedAt); err == nil {
			rec.UpdatedAt = t
		}
		if t, err := parseTimestamp(queuedAt); err == nil {
			rec.QueuedAt = t
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change journal: %w", err)
	}
	return recs, nil
}
