// Package stats turns report and quest records into dashboard figures. Each
// metric is an independent pure function; numbers are estimates computed in
// isolation and are never reconciled against one another.
package stats

import (
	"time"

	"questlog/internal/domain"
	"questlog/internal/eligibility"
	"questlog/internal/report"
)

// Breakdown counts assignments by status. Revoked assignments are excluded.
type Breakdown struct {
	Todo               int     `json:"todo"`
	InProgress         int     `json:"in_progress"`
	Completed          int     `json:"completed"`
	Total              int     `json:"total"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

func TaskBreakdown(assignments []domain.TaskAssignment) Breakdown {
	var b Breakdown
	for _, a := range assignments {
		if a.Revoked() {
			continue
		}
		switch a.Status {
		case "todo":
			b.Todo++
		case "in-progress":
			b.InProgress++
		case "completed":
			b.Completed++
		}
		b.Total++
	}
	if b.Total > 0 {
		b.ProgressPercentage = float64(b.Completed) / float64(b.Total) * 100
	}
	return b
}

// IsStruggling reports whether the completion ratio is below threshold.
// An empty assignment set is not struggling.
func IsStruggling(assignments []domain.TaskAssignment, threshold float64) bool {
	b := TaskBreakdown(assignments)
	if b.Total == 0 {
		return false
	}
	return float64(b.Completed)/float64(b.Total) < threshold
}

// Streak counts consecutive days with a submitted daily report, walking
// backward from now's calendar day until the first gap. A missing report for
// today does not break the streak if yesterday has one.
func Streak(reports []domain.DailyReport, now time.Time) int {
	days := make(map[string]bool, len(reports))
	for _, r := range reports {
		days[r.Day] = true
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !days[eligibility.DayKey(day)] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for days[eligibility.DayKey(day)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// Rollup is the weekly dashboard summary.
type Rollup struct {
	ISOWeek              string    `json:"iso_week"`
	ReportCount          int       `json:"report_count"`
	PlannedMinutes       int       `json:"planned_minutes"`
	ActualMinutes        int       `json:"actual_minutes"`
	EfficiencyPercentage float64   `json:"efficiency_percentage"`
	StreakDays           int       `json:"streak_days"`
	AverageMoodDelta     float64   `json:"average_mood_delta"`
	CompletedGoals       int       `json:"completed_goals"`
	TotalGoals           int       `json:"total_goals"`
	CompletionRate       float64   `json:"completion_rate"`
	Tasks                Breakdown `json:"tasks"`
}

// WeeklyRollup summarizes now's ISO week from the user's report history plus
// their current assignments. The streak is computed over the full history;
// every other figure covers only this week's reports.
func WeeklyRollup(reports []domain.DailyReport, assignments []domain.TaskAssignment, now time.Time) Rollup {
	week := eligibility.WeekKey(now)
	r := Rollup{
		ISOWeek:    week,
		StreakDays: Streak(reports, now),
		Tasks:      TaskBreakdown(assignments),
	}
	moodReports := 0
	moodSum := 0
	for _, rep := range reports {
		day, err := time.ParseInLocation("2006-01-02", rep.Day, now.Location())
		if err != nil || eligibility.WeekKey(day) != week {
			continue
		}
		r.ReportCount++
		for _, a := range rep.ExpectedActivities {
			r.PlannedMinutes += a.Minutes
		}
		for _, a := range rep.ActualActivities {
			r.ActualMinutes += a.Minutes
		}
		for _, g := range rep.Goals {
			r.TotalGoals++
			if g.Completed {
				r.CompletedGoals++
			}
		}
		if rep.EndOfDayDone() {
			moodReports++
			moodSum += report.MoodDelta(rep)
		}
	}
	if r.PlannedMinutes > 0 {
		r.EfficiencyPercentage = float64(r.ActualMinutes) / float64(r.PlannedMinutes) * 100
	}
	if r.TotalGoals > 0 {
		r.CompletionRate = float64(r.CompletedGoals) / float64(r.TotalGoals) * 100
	}
	if moodReports > 0 {
		r.AverageMoodDelta = float64(moodSum) / float64(moodReports)
	}
	return r
}
