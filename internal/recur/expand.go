// Package recur implements recurring-reminder expansion: a pure expander
// that turns a recurrence pattern into concrete occurrence dates, and a
// materializer that persists the occurrences missing from the store.
package recur

import (
	"fmt"
	"time"

	"github.com/remindful/remindful/internal/model"
)

// Expand computes the ordered, deduplicated occurrence dates of a pattern
// from its anchor date up to (but excluding) until, honoring the
// pattern's end condition. Occurrence counting always starts at the
// anchor, so a pattern with end_count produces the same stable prefix no
// matter how far the horizon has advanced.
//
// The function is pure and uses calendar-day arithmetic only; callers
// pass dates at UTC midnight (see Date).
func Expand(p *model.RecurrencePattern, anchor, until time.Time) ([]time.Time, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	anchor = Date(anchor)
	until = Date(until)

	var endDate time.Time
	if p.EndDate != "" {
		endDate = p.EndsAt()
	}

	// done reports whether an occurrence terminates the expansion.
	done := func(occ time.Time, count int) bool {
		if !occ.Before(until) {
			return true
		}
		if !endDate.IsZero() && occ.After(endDate) {
			return true
		}
		if p.EndCount > 0 && count >= p.EndCount {
			return true
		}
		return false
	}

	var out []time.Time

	switch p.Frequency {
	case model.FreqDaily:
		for k := 0; ; k++ {
			occ := anchor.AddDate(0, 0, k*p.Interval)
			if done(occ, len(out)) {
				return out, nil
			}
			out = append(out, occ)
		}

	case model.FreqWeekly:
		days, err := p.Weekdays()
		if err != nil {
			return nil, err
		}
		if len(days) == 0 {
			// No day constraints: daily in units of weeks.
			for k := 0; ; k++ {
				occ := anchor.AddDate(0, 0, k*p.Interval*7)
				if done(occ, len(out)) {
					return out, nil
				}
				out = append(out, occ)
			}
		}
		match := make(map[time.Weekday]bool, len(days))
		for _, d := range days {
			match[d] = true
		}
		// Walk forward a day at a time; only the first seven days of
		// each interval-week block can produce occurrences.
		blockLen := p.Interval * 7
		for offset := 0; ; offset++ {
			day := anchor.AddDate(0, 0, offset)
			if !day.Before(until) {
				return out, nil
			}
			if !endDate.IsZero() && day.After(endDate) {
				return out, nil
			}
			if offset%blockLen >= 7 || !match[day.Weekday()] {
				continue
			}
			if p.EndCount > 0 && len(out) >= p.EndCount {
				return out, nil
			}
			out = append(out, day)
		}

	case model.FreqMonthly:
		day := p.DayOfMonth
		if day == 0 {
			day = anchor.Day()
		}
		for k := 0; ; k++ {
			year, month := addMonths(anchor.Year(), anchor.Month(), k*p.Interval)
			occ := clampedDate(year, month, day)
			// A day_of_month earlier in the anchor month would land
			// before the anchor; the series starts at the first
			// occurrence on or after it.
			if occ.Before(anchor) {
				continue
			}
			if done(occ, len(out)) {
				return out, nil
			}
			out = append(out, occ)
		}

	case model.FreqYearly:
		month := time.Month(p.MonthOfYear)
		if month == 0 {
			month = anchor.Month()
		}
		for k := 0; ; k++ {
			occ := clampedDate(anchor.Year()+k*p.Interval, month, anchor.Day())
			if occ.Before(anchor) {
				continue
			}
			if done(occ, len(out)) {
				return out, nil
			}
			out = append(out, occ)
		}
	}

	return nil, fmt.Errorf("invalid frequency %q", p.Frequency)
}

// Date truncates a time to its calendar day at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(model.DateLayout, s)
}

// addMonths steps a year/month pair forward without day normalization,
// so January 31 plus one month lands in February, never March.
func addMonths(year int, month time.Month, n int) (int, time.Month) {
	m := int(month) - 1 + n
	return year + m/12, time.Month(m%12 + 1)
}

// clampedDate builds a date with the day clamped to the last valid day of
// the month (Jan 31 -> Feb 28/29, Feb 29 -> Feb 28 off leap years).
func clampedDate(year int, month time.Month, day int) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// daysIn returns the number of days in a month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
