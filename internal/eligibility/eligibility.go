// Package eligibility decides whether a report may currently be created.
// Every function is pure over (now, existing records); callers inject the
// clock so day and week boundaries are testable.
package eligibility

import (
	"fmt"
	"time"

	"questlog/internal/domain"
)

type BlockReason string

const (
	ReasonAlreadySubmittedToday    BlockReason = "already-submitted-today"
	ReasonDailyReportRequired      BlockReason = "daily-report-required"
	ReasonAlreadyCompleted         BlockReason = "already-completed"
	ReasonAlreadySubmittedThisWeek BlockReason = "already-submitted-this-week"
	ReasonOutsideWindow            BlockReason = "outside-window"
)

// Decision is the resolver outcome. A blocked decision is status information
// for the caller, not an error; NextEligible is set for weekly blocks.
type Decision struct {
	Allowed      bool
	Reason       BlockReason
	NextEligible *time.Time
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func blocked(reason BlockReason) Decision {
	return Decision{Reason: reason}
}

// DayKey formats a calendar-day key, date only.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// WeekKey formats the ISO-week key used to deduplicate weekly reports,
// e.g. "2026-W35". ISOWeek handles year-boundary weeks (a Dec 31 can belong
// to week 1 of the next year and vice versa).
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Daily allows one report per calendar day. existing is today's report or
// nil; the caller looks it up by DayKey(now).
func Daily(now time.Time, existing *domain.DailyReport) Decision {
	if existing != nil && existing.Day == DayKey(now) {
		return blocked(ReasonAlreadySubmittedToday)
	}
	return allowed()
}

// EndOfDay requires today's daily report and rejects a second completion.
func EndOfDay(now time.Time, existing *domain.DailyReport) Decision {
	if existing == nil || existing.Day != DayKey(now) {
		return blocked(ReasonDailyReportRequired)
	}
	if existing.EndOfDayDone() {
		return blocked(ReasonAlreadyCompleted)
	}
	return allowed()
}

// Weekly allows one report per ISO week, creatable only on a window weekday
// (Wednesday/Thursday by default). Blocked decisions carry the next eligible
// date: before the window, the coming window day; after it, next week's.
func Weekly(now time.Time, existing *domain.WeeklyReport, window []time.Weekday) Decision {
	if len(window) == 0 {
		window = DefaultWeeklyWindow
	}
	if existing != nil && existing.ISOWeek == WeekKey(now) {
		d := blocked(ReasonAlreadySubmittedThisWeek)
		next := nextWindowDay(now, window, true)
		d.NextEligible = &next
		return d
	}
	if !inWindow(now.Weekday(), window) {
		d := blocked(ReasonOutsideWindow)
		next := nextWindowDay(now, window, false)
		d.NextEligible = &next
		return d
	}
	return allowed()
}

var DefaultWeeklyWindow = []time.Weekday{time.Wednesday, time.Thursday}

func inWindow(day time.Weekday, window []time.Weekday) bool {
	for _, w := range window {
		if w == day {
			return true
		}
	}
	return false
}

// nextWindowDay walks forward from tomorrow to the first window weekday.
// With skipCurrentWeek set it also skips days still in now's ISO week.
func nextWindowDay(now time.Time, window []time.Weekday, skipCurrentWeek bool) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	currentWeek := WeekKey(now)
	for i := 0; i < 14; i++ {
		day = day.AddDate(0, 0, 1)
		if !inWindow(day.Weekday(), window) {
			continue
		}
		if skipCurrentWeek && WeekKey(day) == currentWeek {
			continue
		}
		return day
	}
	return day
}
