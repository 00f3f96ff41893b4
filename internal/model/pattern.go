package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recurrence frequencies.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
	FreqYearly  = "yearly"
)

// MaxInterval bounds the repeat interval for every frequency.
const MaxInterval = 365

// RecurrencePattern describes how a reminder repeats. Exactly one end
// condition may be set: EndDate, EndCount, or neither (never ends; the
// materialization horizon bounds how far ahead instances are generated).
type RecurrencePattern struct {
	ID        string `json:"id"`
	Frequency string `json:"frequency"`
	Interval  int    `json:"interval"`

	// DaysOfWeek is a comma-separated day list for weekly patterns,
	// 0=Monday through 6=Sunday ("0,2,4" = Mon, Wed, Fri).
	DaysOfWeek string `json:"days_of_week,omitempty"`

	// DayOfMonth (1-31) anchors monthly patterns. Months shorter than the
	// requested day clamp to their last valid day rather than rolling over.
	DayOfMonth int `json:"day_of_month,omitempty"`

	// MonthOfYear (1-12) anchors yearly patterns.
	MonthOfYear int `json:"month_of_year,omitempty"`

	// End conditions. At most one of EndDate / EndCount may be set.
	EndDate  string `json:"end_date,omitempty"` // YYYY-MM-DD, inclusive
	EndCount int    `json:"end_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate rejects malformed patterns at creation time. Invalid recurrence
// fields are never silently coerced.
func (p *RecurrencePattern) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch p.Frequency {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
	default:
		return fmt.Errorf("invalid frequency %q", p.Frequency)
	}
	if p.Interval < 1 {
		return fmt.Errorf("interval must be at least 1 (got %d)", p.Interval)
	}
	if p.Interval > MaxInterval {
		return fmt.Errorf("interval must be at most %d (got %d)", MaxInterval, p.Interval)
	}
	if p.DaysOfWeek != "" {
		if p.Frequency != FreqWeekly {
			return fmt.Errorf("days_of_week only applies to weekly patterns")
		}
		if _, err := p.Weekdays(); err != nil {
			return err
		}
	}
	if p.DayOfMonth != 0 {
		if p.Frequency != FreqMonthly {
			return fmt.Errorf("day_of_month only applies to monthly patterns")
		}
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("day_of_month must be between 1 and 31 (got %d)", p.DayOfMonth)
		}
	}
	if p.MonthOfYear != 0 {
		if p.Frequency != FreqYearly {
			return fmt.Errorf("month_of_year only applies to yearly patterns")
		}
		if p.MonthOfYear < 1 || p.MonthOfYear > 12 {
			return fmt.Errorf("month_of_year must be between 1 and 12 (got %d)", p.MonthOfYear)
		}
	}
	if p.EndDate != "" && p.EndCount != 0 {
		return fmt.Errorf("end_date and end_count are mutually exclusive")
	}
	if p.EndDate != "" {
		if _, err := time.Parse(DateLayout, p.EndDate); err != nil {
			return fmt.Errorf("invalid end_date %q: %w", p.EndDate, err)
		}
	}
	if p.EndCount < 0 {
		return fmt.Errorf("end_count must be positive (got %d)", p.EndCount)
	}
	return nil
}

// Weekdays parses DaysOfWeek into time.Weekday values. The stored form
// counts from Monday (0=Mon..6=Sun); time.Weekday counts from Sunday.
func (p *RecurrencePattern) Weekdays() ([]time.Weekday, error) {
	if p.DaysOfWeek == "" {
		return nil, nil
	}
	parts := strings.Split(p.DaysOfWeek, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid day of week %q (want 0-6, 0=Monday)", part)
		}
		days = append(days, time.Weekday((n+1)%7))
	}
	return days, nil
}

// EndsAt returns the parsed end date, or the zero time when the pattern
// has no end date.
func (p *RecurrencePattern) EndsAt() time.Time {
	if p.EndDate == "" {
		return time.Time{}
	}
	t, err := time.Parse(DateLayout, p.EndDate)
	if err != nil {
		return time.Time{}
	}
	return t
}
