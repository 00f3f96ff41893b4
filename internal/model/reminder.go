// Package model provides the data structures shared by the store, the
// change queue, the recurrence engine, and the sync protocol.
package model

import (
	"fmt"
	"time"
)

// Priority levels, lowest urgency first.
const (
	PrioritySomeday   = "someday"
	PriorityChill     = "chill"
	PriorityImportant = "important"
	PriorityUrgent    = "urgent"
	PriorityWaiting   = "waiting"
)

// Reminder statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusSnoozed   = "snoozed"
)

// Creation sources.
const (
	SourceManual = "manual"
	SourceVoice  = "voice"
	SourceAPI    = "api"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

var validPriorities = map[string]bool{
	PrioritySomeday:   true,
	PriorityChill:     true,
	PriorityImportant: true,
	PriorityUrgent:    true,
	PriorityWaiting:   true,
}

var validStatuses = map[string]bool{
	StatusPending:   true,
	StatusCompleted: true,
	StatusSnoozed:   true,
}

// Reminder represents a single reminder row. The structure is flat and
// last-write-wins friendly: UpdatedAt is the sole conflict tie-breaker,
// and SyncedAt records the last successful remote acknowledgment.
type Reminder struct {
	// ===== Core Identification =====
	ID string `json:"id"`

	// ===== Content =====
	Text string `json:"text"`

	// ===== Timing =====
	DueDate      string `json:"due_date,omitempty"` // YYYY-MM-DD
	DueTime      string `json:"due_time,omitempty"` // HH:MM:SS
	TimeRequired bool   `json:"time_required,omitempty"`

	// ===== Location =====
	LocationName    string   `json:"location_name,omitempty"`
	LocationAddress string   `json:"location_address,omitempty"`
	LocationLat     *float64 `json:"location_lat,omitempty"`
	LocationLng     *float64 `json:"location_lng,omitempty"`
	LocationRadius  int      `json:"location_radius,omitempty"` // meters

	// ===== Organization =====
	Priority string `json:"priority"`
	Category string `json:"category,omitempty"`

	// ===== Status Tracking =====
	Status       string     `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`

	// ===== Recurrence =====
	RecurrenceID        string `json:"recurrence_id,omitempty"`
	IsRecurringInstance bool   `json:"is_recurring_instance,omitempty"`
	// OriginalDueDate is the occurrence date this instance represents.
	// Immutable once materialized: at most one instance exists per
	// (recurrence_id, original_due_date).
	OriginalDueDate string `json:"original_due_date,omitempty"`

	// ===== Metadata =====
	Source    string     `json:"source,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

// Validate checks that required fields are present and enumerations hold.
func (r *Reminder) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Text == "" {
		return fmt.Errorf("text is required")
	}
	if len(r.Text) > 1000 {
		return fmt.Errorf("text must be 1000 characters or less (got %d)", len(r.Text))
	}
	if !validPriorities[r.Priority] {
		return fmt.Errorf("invalid priority %q", r.Priority)
	}
	if !validStatuses[r.Status] {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.DueDate != "" {
		if _, err := time.Parse(DateLayout, r.DueDate); err != nil {
			return fmt.Errorf("invalid due_date %q: %w", r.DueDate, err)
		}
	}
	if r.OriginalDueDate != "" {
		if _, err := time.Parse(DateLayout, r.OriginalDueDate); err != nil {
			return fmt.Errorf("invalid original_due_date %q: %w", r.OriginalDueDate, err)
		}
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (r *Reminder) SetDefaults() {
	if r.Priority == "" {
		r.Priority = PriorityChill
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.Source == "" {
		r.Source = SourceManual
	}
	if r.LocationRadius == 0 && (r.LocationLat != nil || r.LocationLng != nil) {
		r.LocationRadius = 100
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
}

// Touch sets UpdatedAt to the current time. Call on every local mutation.
func (r *Reminder) Touch() {
	r.UpdatedAt = time.Now().UTC()
}

// InstanceOf reports whether this row is a materialized occurrence of the
// given recurrence pattern.
func (r *Reminder) InstanceOf(recurrenceID string) bool {
	return r.IsRecurringInstance && r.RecurrenceID == recurrenceID
}
