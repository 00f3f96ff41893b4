package model

import (
	"testing"
	"time"
)

func validPattern() *RecurrencePattern {
	return &RecurrencePattern{
		ID:        "p1",
		Frequency: FreqDaily,
		Interval:  1,
		CreatedAt: time.Now(),
	}
}

func TestPatternValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RecurrencePattern)
		wantErr bool
	}{
		{"valid daily", func(p *RecurrencePattern) {}, false},
		{"missing id", func(p *RecurrencePattern) { p.ID = "" }, true},
		{"bad frequency", func(p *RecurrencePattern) { p.Frequency = "hourly" }, true},
		{"zero interval", func(p *RecurrencePattern) { p.Interval = 0 }, true},
		{"negative interval", func(p *RecurrencePattern) { p.Interval = -2 }, true},
		{"interval over cap", func(p *RecurrencePattern) { p.Interval = MaxInterval + 1 }, true},
		{"interval at cap", func(p *RecurrencePattern) { p.Interval = MaxInterval }, false},
		{"days on daily", func(p *RecurrencePattern) { p.DaysOfWeek = "0,2" }, true},
		{"days on weekly", func(p *RecurrencePattern) {
			p.Frequency = FreqWeekly
			p.DaysOfWeek = "0,2,4"
		}, false},
		{"day out of range", func(p *RecurrencePattern) {
			p.Frequency = FreqWeekly
			p.DaysOfWeek = "0,7"
		}, true},
		{"day not a number", func(p *RecurrencePattern) {
			p.Frequency = FreqWeekly
			p.DaysOfWeek = "mon"
		}, true},
		{"day_of_month on daily", func(p *RecurrencePattern) { p.DayOfMonth = 15 }, true},
		{"day_of_month valid", func(p *RecurrencePattern) {
			p.Frequency = FreqMonthly
			p.DayOfMonth = 31
		}, false},
		{"day_of_month out of range", func(p *RecurrencePattern) {
			p.Frequency = FreqMonthly
			p.DayOfMonth = 32
		}, true},
		{"month_of_year on monthly", func(p *RecurrencePattern) {
			p.Frequency = FreqMonthly
			p.MonthOfYear = 3
		}, true},
		{"month_of_year valid", func(p *RecurrencePattern) {
			p.Frequency = FreqYearly
			p.MonthOfYear = 12
		}, false},
		{"month_of_year out of range", func(p *RecurrencePattern) {
			p.Frequency = FreqYearly
			p.MonthOfYear = 13
		}, true},
		{"both end conditions", func(p *RecurrencePattern) {
			p.EndDate = "2026-01-01"
			p.EndCount = 5
		}, true},
		{"end date only", func(p *RecurrencePattern) { p.EndDate = "2026-01-01" }, false},
		{"end count only", func(p *RecurrencePattern) { p.EndCount = 5 }, false},
		{"bad end date", func(p *RecurrencePattern) { p.EndDate = "01/01/2026" }, true},
		{"negative end count", func(p *RecurrencePattern) { p.EndCount = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPattern()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestWeekdaysMondayBased(t *testing.T) {
	p := &RecurrencePattern{
		ID:         "p1",
		Frequency:  FreqWeekly,
		Interval:   1,
		DaysOfWeek: "0,2,6",
	}
	days, err := p.Weekdays()
	if err != nil {
		t.Fatalf("Weekdays failed: %v", err)
	}

	want := []time.Weekday{time.Monday, time.Wednesday, time.Sunday}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("day %d: expected %v, got %v", i, want[i], days[i])
		}
	}
}

func TestWeekdaysEmpty(t *testing.T) {
	p := validPattern()
	days, err := p.Weekdays()
	if err != nil {
		t.Fatalf("Weekdays failed: %v", err)
	}
	if days != nil {
		t.Errorf("expected nil for empty days_of_week, got %v", days)
	}
}
