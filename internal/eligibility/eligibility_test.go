package eligibility_test

import (
	"testing"
	"time"

	"questlog/internal/domain"
	"questlog/internal/eligibility"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func TestDaily(t *testing.T) {
	now := day(2026, time.August, 24) // Monday
	if d := eligibility.Daily(now, nil); !d.Allowed {
		t.Fatalf("expected allowed without existing report, got %v", d.Reason)
	}
	existing := &domain.DailyReport{Day: "2026-08-24"}
	if d := eligibility.Daily(now, existing); d.Allowed || d.Reason != eligibility.ReasonAlreadySubmittedToday {
		t.Fatalf("expected already-submitted-today, got %+v", d)
	}
	// yesterday's report does not block today
	stale := &domain.DailyReport{Day: "2026-08-23"}
	if d := eligibility.Daily(now, stale); !d.Allowed {
		t.Fatalf("stale report should not block: %+v", d)
	}
}

func TestEndOfDay(t *testing.T) {
	now := day(2026, time.August, 24)
	if d := eligibility.EndOfDay(now, nil); d.Allowed || d.Reason != eligibility.ReasonDailyReportRequired {
		t.Fatalf("expected daily-report-required, got %+v", d)
	}
	yesterday := &domain.DailyReport{Day: "2026-08-23"}
	if d := eligibility.EndOfDay(now, yesterday); d.Reason != eligibility.ReasonDailyReportRequired {
		t.Fatalf("yesterday's report must not satisfy the dependency: %+v", d)
	}
	today := &domain.DailyReport{Day: "2026-08-24"}
	if d := eligibility.EndOfDay(now, today); !d.Allowed {
		t.Fatalf("expected allowed, got %v", d.Reason)
	}
	mood := 4
	done := &domain.DailyReport{Day: "2026-08-24", EveningMood: &mood}
	if d := eligibility.EndOfDay(now, done); d.Allowed || d.Reason != eligibility.ReasonAlreadyCompleted {
		t.Fatalf("expected already-completed, got %+v", d)
	}
}

func TestWeeklyWindow(t *testing.T) {
	cases := []struct {
		name    string
		now     time.Time
		allowed bool
		next    string
	}{
		{"monday blocked", day(2026, time.August, 24), false, "2026-08-26"},
		{"tuesday blocked", day(2026, time.August, 25), false, "2026-08-26"},
		{"wednesday allowed", day(2026, time.August, 26), true, ""},
		{"thursday allowed", day(2026, time.August, 27), true, ""},
		{"friday blocked to next week", day(2026, time.August, 28), false, "2026-09-02"},
		{"saturday blocked to next week", day(2026, time.August, 29), false, "2026-09-02"},
		{"sunday blocked to next week", day(2026, time.August, 30), false, "2026-09-02"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := eligibility.Weekly(tc.now, nil, nil)
			if d.Allowed != tc.allowed {
				t.Fatalf("allowed=%v, want %v (reason %v)", d.Allowed, tc.allowed, d.Reason)
			}
			if !tc.allowed {
				if d.Reason != eligibility.ReasonOutsideWindow {
					t.Fatalf("reason=%v, want outside-window", d.Reason)
				}
				if d.NextEligible == nil || d.NextEligible.Format("2006-01-02") != tc.next {
					t.Fatalf("next=%v, want %s", d.NextEligible, tc.next)
				}
			}
		})
	}
}

func TestWeeklyAlreadySubmitted(t *testing.T) {
	now := day(2026, time.August, 26) // Wednesday, week 35
	existing := &domain.WeeklyReport{ISOWeek: eligibility.WeekKey(now)}
	d := eligibility.Weekly(now, existing, nil)
	if d.Allowed || d.Reason != eligibility.ReasonAlreadySubmittedThisWeek {
		t.Fatalf("expected already-submitted-this-week, got %+v", d)
	}
	if d.NextEligible == nil || d.NextEligible.Format("2006-01-02") != "2026-09-02" {
		t.Fatalf("next eligible should be next Wednesday, got %v", d.NextEligible)
	}
	// last week's report does not block this week
	old := &domain.WeeklyReport{ISOWeek: "2026-W34"}
	if d := eligibility.Weekly(now, old, nil); !d.Allowed {
		t.Fatalf("old report should not block: %+v", d)
	}
}

func TestWeeklyYearBoundary(t *testing.T) {
	// 2025-12-31 is a Wednesday, 2026-01-01 a Thursday; both are ISO week
	// 2026-W01, spanning two calendar years.
	wed := day(2025, time.December, 31)
	thu := day(2026, time.January, 1)
	if got := eligibility.WeekKey(wed); got != "2026-W01" {
		t.Fatalf("WeekKey(Dec 31) = %s, want 2026-W01", got)
	}
	if got := eligibility.WeekKey(thu); got != "2026-W01" {
		t.Fatalf("WeekKey(Jan 1) = %s, want 2026-W01", got)
	}
	if d := eligibility.Weekly(wed, nil, nil); !d.Allowed {
		t.Fatalf("Dec 31 Wednesday should be allowed: %+v", d)
	}
	// a report created on the Wednesday blocks the Thursday across years
	existing := &domain.WeeklyReport{ISOWeek: eligibility.WeekKey(wed)}
	if d := eligibility.Weekly(thu, existing, nil); d.Allowed {
		t.Fatalf("Jan 1 Thursday must be blocked by the Dec 31 report")
	}
}

func TestWeekKeyEarlyJanuary(t *testing.T) {
	// 2027-01-01 is a Friday and belongs to 2026-W53.
	if got := eligibility.WeekKey(day(2027, time.January, 1)); got != "2026-W53" {
		t.Fatalf("WeekKey(2027-01-01) = %s, want 2026-W53", got)
	}
}
