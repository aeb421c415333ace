package report

import "questlog/internal/domain"

// Mood trend classifications derived from MoodDelta.
const (
	TrendImproved = "improved"
	TrendDeclined = "declined"
	TrendStable   = "stable"
)

// CompletionRate is the percentage of goals marked completed. Returns 0 for
// a report with no goals rather than dividing by zero.
func CompletionRate(r domain.DailyReport) float64 {
	if len(r.Goals) == 0 {
		return 0
	}
	done := 0
	for _, g := range r.Goals {
		if g.Completed {
			done++
		}
	}
	return float64(done) / float64(len(r.Goals)) * 100
}

// MoodDelta is evening mood minus morning mood, sign preserved. Zero when
// the end-of-day update has not happened yet.
func MoodDelta(r domain.DailyReport) int {
	if r.EveningMood == nil {
		return 0
	}
	return *r.EveningMood - r.MorningMood
}

// MoodTrend classifies MoodDelta.
func MoodTrend(r domain.DailyReport) string {
	switch d := MoodDelta(r); {
	case d > 0:
		return TrendImproved
	case d < 0:
		return TrendDeclined
	default:
		return TrendStable
	}
}

// TimeVariance is actual minus expected minutes; positive means over-spent.
func TimeVariance(r domain.DailyReport) int {
	expected := 0
	for _, a := range r.ExpectedActivities {
		expected += a.Minutes
	}
	actual := 0
	for _, a := range r.ActualActivities {
		actual += a.Minutes
	}
	return actual - expected
}
