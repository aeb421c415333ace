package stats_test

import (
	"testing"
	"time"

	"questlog/internal/domain"
	"questlog/internal/stats"
)

var now = time.Date(2026, time.August, 27, 18, 0, 0, 0, time.UTC) // Thursday, week 35

func assignments(todo, inProgress, completed int) []domain.TaskAssignment {
	var out []domain.TaskAssignment
	add := func(n int, status string) {
		for i := 0; i < n; i++ {
			out = append(out, domain.TaskAssignment{Status: status})
		}
	}
	add(todo, "todo")
	add(inProgress, "in-progress")
	add(completed, "completed")
	return out
}

func TestTaskBreakdown(t *testing.T) {
	b := stats.TaskBreakdown(assignments(2, 1, 3))
	if b.Todo != 2 || b.InProgress != 1 || b.Completed != 3 || b.Total != 6 {
		t.Fatalf("breakdown %+v", b)
	}
	if b.ProgressPercentage != 50 {
		t.Fatalf("progress = %v, want 50", b.ProgressPercentage)
	}

	empty := stats.TaskBreakdown(nil)
	if empty.Total != 0 || empty.ProgressPercentage != 0 {
		t.Fatalf("empty set must be all zero: %+v", empty)
	}

	revoked := assignments(0, 0, 2)
	ts := "2026-08-20T00:00:00Z"
	revoked[0].RevokedAt = &ts
	b = stats.TaskBreakdown(revoked)
	if b.Total != 1 || b.Completed != 1 {
		t.Fatalf("revoked assignment must be excluded: %+v", b)
	}
}

func TestIsStruggling(t *testing.T) {
	if stats.IsStruggling(nil, 0.5) {
		t.Fatalf("empty set is not struggling")
	}
	if !stats.IsStruggling(assignments(3, 0, 1), 0.5) {
		t.Fatalf("1/4 completed should struggle at 0.5")
	}
	if stats.IsStruggling(assignments(1, 0, 1), 0.5) {
		t.Fatalf("exactly at threshold is not struggling")
	}
	if stats.IsStruggling(assignments(0, 0, 4), 0.5) {
		t.Fatalf("all completed should not struggle")
	}
}

func reportOn(day string) domain.DailyReport {
	return domain.DailyReport{UserID: "user-1", Day: day}
}

func TestStreak(t *testing.T) {
	reports := []domain.DailyReport{
		reportOn("2026-08-25"),
		reportOn("2026-08-26"),
		reportOn("2026-08-27"),
		// gap on the 24th
		reportOn("2026-08-22"),
	}
	if got := stats.Streak(reports, now); got != 3 {
		t.Fatalf("streak = %d, want 3", got)
	}
	// today missing: streak continues from yesterday
	if got := stats.Streak(reports[:2], now); got != 2 {
		t.Fatalf("streak without today = %d, want 2", got)
	}
	if got := stats.Streak(nil, now); got != 0 {
		t.Fatalf("empty history streak = %d", got)
	}
}

func TestWeeklyRollup(t *testing.T) {
	mood := 5
	thisWeek := domain.DailyReport{
		UserID:      "user-1",
		Day:         "2026-08-26",
		MorningMood: 3,
		EveningMood: &mood,
		Goals: []domain.DailyGoal{
			{ID: "g1", Description: "A", Completed: true},
			{ID: "g2", Description: "B"},
		},
		ExpectedActivities: []domain.Activity{{Category: "study", Minutes: 120}},
		ActualActivities:   []domain.Activity{{Category: "study", Minutes: 90}},
	}
	lastWeek := reportOn("2026-08-20")
	lastWeek.ExpectedActivities = []domain.Activity{{Category: "study", Minutes: 600}}

	r := stats.WeeklyRollup([]domain.DailyReport{thisWeek, lastWeek}, assignments(1, 0, 1), now)
	if r.ISOWeek != "2026-W35" {
		t.Fatalf("iso week = %s", r.ISOWeek)
	}
	if r.ReportCount != 1 {
		t.Fatalf("last week's report leaked into the rollup: %+v", r)
	}
	if r.PlannedMinutes != 120 || r.ActualMinutes != 90 {
		t.Fatalf("minutes %d/%d", r.PlannedMinutes, r.ActualMinutes)
	}
	if r.EfficiencyPercentage != 75 {
		t.Fatalf("efficiency = %v, want 75", r.EfficiencyPercentage)
	}
	if r.CompletedGoals != 1 || r.TotalGoals != 2 || r.CompletionRate != 50 {
		t.Fatalf("goals %d/%d rate %v", r.CompletedGoals, r.TotalGoals, r.CompletionRate)
	}
	if r.AverageMoodDelta != 2 {
		t.Fatalf("avg mood delta = %v, want 2", r.AverageMoodDelta)
	}
	if r.Tasks.Total != 2 || r.Tasks.ProgressPercentage != 50 {
		t.Fatalf("tasks %+v", r.Tasks)
	}
}

func TestWeeklyRollupEmpty(t *testing.T) {
	r := stats.WeeklyRollup(nil, nil, now)
	if r.EfficiencyPercentage != 0 || r.CompletionRate != 0 || r.AverageMoodDelta != 0 {
		t.Fatalf("empty rollup must not divide by zero: %+v", r)
	}
}
