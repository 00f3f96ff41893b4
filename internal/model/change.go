package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Change actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ChangeRecord is one pending local mutation awaiting remote
// acknowledgment. At most one live record exists per entity id: a later
// mutation replaces any earlier queued record for the same id.
type ChangeRecord struct {
	EntityID string `json:"id"`
	Action   string `json:"action"`

	// Payload is the full reminder snapshot at mutation time, nil for
	// deletes.
	Payload json.RawMessage `json:"data,omitempty"`

	// UpdatedAt is the local mutation timestamp, compared against the
	// remote copy during conflict resolution.
	UpdatedAt time.Time `json:"updated_at"`

	// QueuedAt orders eviction when the queue hits its capacity bound.
	QueuedAt time.Time `json:"-"`
}

// Validate checks the record's action and identity fields.
func (c *ChangeRecord) Validate() error {
	if c.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	switch c.Action {
	case ActionCreate, ActionUpdate:
		if len(c.Payload) == 0 {
			return fmt.Errorf("%s change requires a payload", c.Action)
		}
	case ActionDelete:
	default:
		return fmt.Errorf("invalid action %q", c.Action)
	}
	if c.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// NewChange builds a ChangeRecord carrying a snapshot of the reminder.
// Delete changes carry no payload.
func NewChange(action string, r *Reminder) (*ChangeRecord, error) {
	rec := &ChangeRecord{
		EntityID:  r.ID,
		Action:    action,
		UpdatedAt: r.UpdatedAt,
		QueuedAt:  time.Now().UTC(),
	}
	if action != ActionDelete {
		payload, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot reminder %s: %w", r.ID, err)
		}
		rec.Payload = payload
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reminder decodes the payload snapshot back into a Reminder.
func (c *ChangeRecord) Reminder() (*Reminder, error) {
	if len(c.Payload) == 0 {
		return nil, fmt.Errorf("change %s has no payload", c.EntityID)
	}
	var r Reminder
	if err := json.Unmarshal(c.Payload, &r); err != nil {
		return nil, fmt.Errorf("failed to decode change payload for %s: %w", c.EntityID, err)
	}
	return &r, nil
}
