package report_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"questlog/internal/domain"
	"questlog/internal/report"
)

var now = time.Date(2026, time.August, 24, 8, 30, 0, 0, time.UTC)

func validDaily() report.DailyInput {
	return report.DailyInput{
		UserID:      "user-1",
		WakeUpTime:  "07:00",
		MorningMood: 4,
		Goals:       []string{"A", "B", "C"},
		ExpectedActivities: []domain.Activity{
			{Category: "study", Minutes: 120},
			{Category: "exercise", Minutes: 30},
		},
	}
}

func TestNewDaily(t *testing.T) {
	r, err := report.NewDaily(validDaily(), report.DefaultRules(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Day != "2026-08-24" {
		t.Fatalf("day = %s", r.Day)
	}
	if len(r.Goals) != 3 {
		t.Fatalf("goals = %d", len(r.Goals))
	}
	for _, g := range r.Goals {
		if g.ID == "" {
			t.Fatalf("goal %q missing id", g.Description)
		}
		if g.Completed || g.CompletionMinutes != nil {
			t.Fatalf("goal %q has evening state at creation", g.Description)
		}
	}
	if r.EndOfDayDone() || r.ActualActivities != nil {
		t.Fatalf("evening fields must be empty at creation")
	}
}

func TestNewDailyValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*report.DailyInput)
	}{
		{"too few goals", func(in *report.DailyInput) { in.Goals = []string{"A", "B"} }},
		{"too many goals", func(in *report.DailyInput) { in.Goals = []string{"A", "B", "C", "D", "E", "F"} }},
		{"empty goal", func(in *report.DailyInput) { in.Goals = []string{"A", "  ", "C"} }},
		{"bad mood", func(in *report.DailyInput) { in.MorningMood = 6 }},
		{"bad wake-up time", func(in *report.DailyInput) { in.WakeUpTime = "7am" }},
		{"zero duration", func(in *report.DailyInput) { in.ExpectedActivities[0].Minutes = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validDaily()
			tc.mutate(&in)
			_, err := report.NewDaily(in, report.DefaultRules(), now)
			var ve *report.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func endOfDayFor(r domain.DailyReport, completed ...string) report.EndOfDayInput {
	done := map[string]bool{}
	for _, d := range completed {
		done[d] = true
	}
	in := report.EndOfDayInput{
		EveningMood:      5,
		ActualActivities: []domain.Activity{{Category: "study", Minutes: 150}},
	}
	for _, g := range r.Goals {
		c := report.GoalCompletion{GoalID: g.ID, Completed: done[g.Description]}
		if c.Completed {
			m := 45
			c.CompletionMinutes = &m
		}
		in.Completions = append(in.Completions, c)
	}
	return in
}

func TestApplyEndOfDay(t *testing.T) {
	r, err := report.NewDaily(validDaily(), report.DefaultRules(), now)
	if err != nil {
		t.Fatal(err)
	}
	if got := report.CompletionRate(r); got != 0 {
		t.Fatalf("completion rate before end of day = %v", got)
	}
	merged, err := report.ApplyEndOfDay(&r, endOfDayFor(r, "A", "B"), report.DefaultRules(), now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !merged.EndOfDayDone() {
		t.Fatalf("evening fields not set")
	}
	if got := report.CompletionRate(merged); math.Abs(got-66.67) > 0.01 {
		t.Fatalf("completion rate = %v, want 66.67", got)
	}
	if got := report.MoodDelta(merged); got != 1 {
		t.Fatalf("mood delta = %d, want 1", got)
	}
	if got := report.MoodTrend(merged); got != report.TrendImproved {
		t.Fatalf("trend = %s", got)
	}
	// 150 actual vs 150 expected
	if got := report.TimeVariance(merged); got != 0 {
		t.Fatalf("time variance = %d, want 0", got)
	}
	// original untouched
	if r.EndOfDayDone() || r.Goals[0].Completed {
		t.Fatalf("ApplyEndOfDay mutated its input")
	}
}

func TestApplyEndOfDayGuards(t *testing.T) {
	r, _ := report.NewDaily(validDaily(), report.DefaultRules(), now)

	_, err := report.ApplyEndOfDay(nil, report.EndOfDayInput{EveningMood: 3}, report.DefaultRules(), now)
	var de *report.DependencyError
	if !errors.As(err, &de) {
		t.Fatalf("expected DependencyError, got %v", err)
	}

	done, err := report.ApplyEndOfDay(&r, endOfDayFor(r), report.DefaultRules(), now)
	if err != nil {
		t.Fatal(err)
	}
	_, err = report.ApplyEndOfDay(&done, endOfDayFor(done), report.DefaultRules(), now)
	var ae *report.AlreadyCompletedError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AlreadyCompletedError, got %v", err)
	}

	// completion list must cover the goal ids exactly
	in := endOfDayFor(r)
	in.Completions = in.Completions[:2]
	if _, err := report.ApplyEndOfDay(&r, in, report.DefaultRules(), now); err == nil {
		t.Fatalf("expected error for missing completion")
	}
	in = endOfDayFor(r)
	in.Completions[1].GoalID = "unknown"
	if _, err := report.ApplyEndOfDay(&r, in, report.DefaultRules(), now); err == nil {
		t.Fatalf("expected error for unknown goal id")
	}
}

func TestCompletionRateMonotonic(t *testing.T) {
	r, _ := report.NewDaily(validDaily(), report.DefaultRules(), now)
	prev := -1.0
	marks := [][]string{{}, {"A"}, {"A", "B"}, {"A", "B", "C"}}
	for _, m := range marks {
		merged, err := report.ApplyEndOfDay(&r, endOfDayFor(r, m...), report.DefaultRules(), now)
		if err != nil {
			t.Fatal(err)
		}
		got := report.CompletionRate(merged)
		if got < prev {
			t.Fatalf("completion rate decreased: %v after %v", got, prev)
		}
		prev = got
	}
	if prev != 100 {
		t.Fatalf("all goals completed should be 100, got %v", prev)
	}
	if report.CompletionRate(domain.DailyReport{}) != 0 {
		t.Fatalf("empty report must not divide by zero")
	}
}

func TestNewWeekly(t *testing.T) {
	in := report.WeeklyInput{
		UserID:        "user-1",
		Mood:          4,
		AchievedGoals: []string{"finished module 3", ""},
	}
	r, err := report.NewWeekly(in, report.DefaultRules(), now)
	if err != nil {
		t.Fatal(err)
	}
	if r.ISOWeek != "2026-W35" {
		t.Fatalf("iso week = %s", r.ISOWeek)
	}
	if len(r.AchievedGoals) != 1 {
		t.Fatalf("blank goals should be dropped, got %v", r.AchievedGoals)
	}

	in.Mood = 0
	if _, err := report.NewWeekly(in, report.DefaultRules(), now); err == nil {
		t.Fatalf("expected mood validation error")
	}
	in.Mood = 4
	in.AchievedGoals = []string{"", "   "}
	_, err = report.NewWeekly(in, report.DefaultRules(), now)
	var ve *report.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty goals, got %v", err)
	}
}
