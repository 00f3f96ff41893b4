package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/remindful/remindful/internal/model"
)

// CreatePattern inserts a recurrence pattern. Malformed patterns are
// rejected here, never silently coerced.
func (s *Store) CreatePattern(ctx context.Context, p *model.RecurrencePattern) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid recurrence pattern: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO recurrence_patterns (
			id, frequency, interval,
			days_of_week, day_of_month, month_of_year,
			end_date, end_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Frequency,
		p.Interval,
		nullString(p.DaysOfWeek),
		nullInt(p.DayOfMonth),
		nullInt(p.MonthOfYear),
		nullString(p.EndDate),
		nullInt(p.EndCount),
		formatTimestamp(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create recurrence pattern %s: %w", p.ID, err)
	}
	return nil
}

// GetPattern retrieves a recurrence pattern by ID.
// Returns ErrNotFound if no row matches.
func (s *Store) GetPattern(ctx context.Context, id string) (*model.RecurrencePattern, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, frequency, interval, days_of_week, day_of_month,
		       month_of_year, end_date, end_count, created_at
		FROM recurrence_patterns WHERE id = ?`, id)

	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPatterns returns all recurrence patterns, oldest first. The daemon
// walks this list when rolling the materialization horizon forward.
func (s *Store) ListPatterns(ctx context.Context) ([]*model.RecurrencePattern, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, frequency, interval, days_of_week, day_of_month,
		       month_of_year, end_date, end_count, created_at
		FROM recurrence_patterns ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurrence patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*model.RecurrencePattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurrence pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurrence patterns: %w", err)
	}
	return patterns, nil
}

// DeletePattern removes a pattern and unlinks any reminders referencing
// it. Existing materialized instances survive; the horizon simply stops
// generating new ones.
func (s *Store) DeletePattern(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE reminders SET recurrence_id = NULL WHERE recurrence_id = ?`, id); err != nil {
		return fmt.Errorf("failed to unlink reminders from pattern %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recurrence_patterns WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pattern %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanPattern(row rowScanner) (*model.RecurrencePattern, error) {
	var p model.RecurrencePattern
	var daysOfWeek, endDate sql.NullString
	var dayOfMonth, monthOfYear, endCount sql.NullInt64
	var createdAt string

	err := row.Scan(
		&p.ID,
		&p.Frequency,
		&p.Interval,
		&daysOfWeek,
		&dayOfMonth,
		&monthOfYear,
		&endDate,
		&endCount,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.DaysOfWeek = stringOrEmpty(daysOfWeek)
	p.DayOfMonth = int(dayOfMonth.Int64)
	p.MonthOfYear = int(monthOfYear.Int64)
	p.EndDate = stringOrEmpty(endDate)
	p.EndCount = int(endCount.Int64)

	if t, err := parseTimestamp(createdAt); err == nil {
		p.CreatedAt = t
	}
	return &p, nil
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
