package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/remindful/remindful/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const reminderColumns = `id, text, due_date, due_time, time_required,
	location_name, location_address, location_lat, location_lng, location_radius,
	priority, category, status, completed_at, snoozed_until,
	recurrence_id, is_recurring_instance, original_due_date,
	source, created_at, updated_at, synced_at`

// UpsertReminder inserts or updates a reminder.
//
// created_at is preserved on update; every other field takes the incoming
// value, including updated_at, which remote-originated writes carry
// verbatim so last-write-wins stays comparable across devices.
func (s *Store) UpsertReminder(ctx context.Context, r *model.Reminder) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid reminder: %w", err)
	}

	query := `
	INSERT INTO reminders (` + reminderColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		text = excluded.text,
		due_date = excluded.due_date,
		due_time = excluded.due_time,
		time_required = excluded.time_required,
		location_name = excluded.location_name,
		location_address = excluded.location_address,
		location_lat = excluded.location_lat,
		location_lng = excluded.location_lng,
		location_radius = excluded.location_radius,
		priority = excluded.priority,
		category = excluded.category,
		status = excluded.status,
		completed_at = excluded.completed_at,
		snoozed_until = excluded.snoozed_until,
		recurrence_id = excluded.recurrence_id,
		is_recurring_instance = excluded.is_recurring_instance,
		original_due_date = excluded.original_due_date,
		source = excluded.source,
		updated_at = excluded.updated_at,
		synced_at = excluded.synced_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		r.ID,
		r.Text,
		nullString(r.DueDate),
		nullString(r.DueTime),
		boolToInt(r.TimeRequired),
		nullString(r.LocationName),
		nullString(r.LocationAddress),
		nullFloat(r.LocationLat),
		nullFloat(r.LocationLng),
		r.LocationRadius,
		r.Priority,
		nullString(r.Category),
		r.Status,
		timeToNullString(r.CompletedAt),
		timeToNullString(r.SnoozedUntil),
		nullString(r.RecurrenceID),
		boolToInt(r.IsRecurringInstance),
		nullString(r.OriginalDueDate),
		r.Source,
		formatTimestamp(r.CreatedAt),
		formatTimestamp(r.UpdatedAt),
		timeToNullString(r.SyncedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reminder %s: %w", r.ID, err)
	}
	return nil
}

// GetReminder retrieves a single reminder by ID.
// Returns ErrNotFound if no row matches.
func (s *Store) GetReminder(ctx context.Context, id string) (*model.Reminder, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// DeleteReminder removes a reminder. Idempotent: deleting a missing row
// is not an error.
func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reminder %s: %w", id, err)
	}
	return nil
}

// ListFilter configures ListReminders.
type ListFilter struct {
	Status   string // empty = all
	Category string
	Priority string
	Limit    int // 0 = no limit
	Offset   int
}

// ListReminders retrieves reminders matching the filter, newest first.
func (s *Store) ListReminders(ctx context.Context, filter ListFilter) ([]*model.Reminder, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, filter.Priority)
	}

	query := `SELECT ` + reminderColumns + ` FROM reminders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// CountReminders counts rows matching the filter.
func (s *Store) CountReminders(ctx context.Context, filter ListFilter) (int, error) {
	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, filter.Priority)
	}

	query := "SELECT COUNT(*) FROM reminders"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reminders: %w", err)
	}
	return count, nil
}

// ChangedSince returns reminders with updated_at strictly after the
// watermark, oldest first. A zero watermark returns everything.
func (s *Store) ChangedSince(ctx context.Context, watermark time.Time) ([]*model.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders`
	var args []interface{}
	if !watermark.IsZero() {
		query += " WHERE updated_at > ?"
		args = append(args, formatTimestamp(watermark))
	}
	query += " ORDER BY updated_at ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// MarkSynced stamps synced_at on the given reminders after the remote
// acknowledges them.
func (s *Store) MarkSynced(ctx context.Context, ids []string, syncedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, formatTimestamp(syncedAt))
	for _, id := range ids {
		args = append(args, id)
	}
	query := "UPDATE reminders SET synced_at = ? WHERE id IN (" + placeholders + ")"
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark reminders synced: %w", err)
	}
	return nil
}

// InstanceDates returns the set of already-materialized occurrence dates
// for a recurrence pattern, keyed by original_due_date. The materializer
// takes the set-difference against expanded occurrences, which keeps the
// one-instance-per-date invariant correct by construction.
func (s *Store) InstanceDates(ctx context.Context, recurrenceID string) (map[string]bool, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT original_due_date FROM reminders
		WHERE recurrence_id = ? AND is_recurring_instance = 1
		  AND original_due_date IS NOT NULL AND original_due_date != ''`,
		recurrenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instance dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan instance date: %w", err)
		}
		dates[d] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instance dates: %w", err)
	}
	return dates, nil
}

// TemplateFor returns the non-instance reminder that owns a recurrence
// pattern, i.e. the row whose fields materialized instances copy.
func (s *Store) TemplateFor(ctx context.Context, recurrenceID string) (*model.Reminder, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE recurrence_id = ? AND is_recurring_instance = 0
		 ORDER BY created_at ASC LIMIT 1`, recurrenceID)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReminder(row rowScanner) (*model.Reminder, error) {
	var r model.Reminder
	var dueDate, dueTime, locName, locAddr, category sql.NullString
	var recurrenceID, originalDue sql.NullString
	var completedAt, snoozedUntil, syncedAt sql.NullString
	var lat, lng sql.NullFloat64
	var timeRequired, isInstance int
	var createdAt, updatedAt string

	err := row.Scan(
		&r.ID,
		&r.Text,
		&dueDate,
		&dueTime,
		&timeRequired,
		&locName,
		&locAddr,
		&lat,
		&lng,
		&r.LocationRadius,
		&r.Priority,
		&category,
		&r.Status,
		&completedAt,
		&snoozedUntil,
		&recurrenceID,
		&isInstance,
		&originalDue,
		&r.Source,
		&createdAt,
		&updatedAt,
		&syncedAt,
	)
	if err != nil {
		return nil, err
	}

	r.DueDate = stringOrEmpty(dueDate)
	r.DueTime = stringOrEmpty(dueTime)
	r.TimeRequired = timeRequired != 0
	r.LocationName = stringOrEmpty(locName)
	r.LocationAddress = stringOrEmpty(locAddr)
	if lat.Valid {
		v := lat.Float64
		r.LocationLat = &v
	}
	if lng.Valid {
		v := lng.Float64
		r.LocationLng = &v
	}
	r.Category = stringOrEmpty(category)
	r.CompletedAt = nullStringToTime(completedAt)
	r.SnoozedUntil = nullStringToTime(snoozedUntil)
	r.RecurrenceID = stringOrEmpty(recurrenceID)
	r.IsRecurringInstance = isInstance != 0
	r.OriginalDueDate = stringOrEmpty(originalDue)
	r.SyncedAt = nullStringToTime(syncedAt)

	if t, err := parseTimestamp(createdAt); err == nil {
		r.CreatedAt = t
	}
	if t, err := parseTimestamp(updatedAt); err == nil {
		r.UpdatedAt = t
	}

	return &r, nil
}

func scanReminders(rows *sql.Rows) ([]*model.Reminder, error) {
	var reminders []*model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}
	return reminders, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
