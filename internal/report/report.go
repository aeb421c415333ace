// Package report enforces the structural invariants of daily and weekly
// reports and computes their derived metrics. It performs no I/O; identity
// and timestamps come from the caller.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"questlog/internal/domain"
	"questlog/internal/eligibility"
)

// Rules are the structural bounds for report creation, sourced from the
// workspace config.
type Rules struct {
	MinGoals int
	MaxGoals int
	MoodMin  int
	MoodMax  int
}

func DefaultRules() Rules {
	return Rules{MinGoals: 3, MaxGoals: 5, MoodMin: 1, MoodMax: 5}
}

// DailyInput is the morning submission payload.
type DailyInput struct {
	UserID             string
	WakeUpTime         string
	MorningMood        int
	MorningRoutine     string
	Goals              []string
	ExpectedActivities []domain.Activity
}

// NewDaily validates the morning submission and produces a DailyReport for
// now's calendar day with empty evening fields. Each goal is given a stable
// ID so the end-of-day payload can reference goals by identity instead of
// array position.
func NewDaily(in DailyInput, rules Rules, now time.Time) (domain.DailyReport, error) {
	if in.UserID == "" {
		return domain.DailyReport{}, &ValidationError{Field: "user_id", Reason: "required"}
	}
	if _, err := time.Parse("15:04", in.WakeUpTime); err != nil {
		return domain.DailyReport{}, &ValidationError{Field: "wake_up_time", Reason: "must be HH:MM"}
	}
	if in.MorningMood < rules.MoodMin || in.MorningMood > rules.MoodMax {
		return domain.DailyReport{}, &ValidationError{Field: "morning_mood", Reason: fmt.Sprintf("must be between %d and %d", rules.MoodMin, rules.MoodMax)}
	}
	if len(in.Goals) < rules.MinGoals || len(in.Goals) > rules.MaxGoals {
		return domain.DailyReport{}, &ValidationError{Field: "goals", Reason: fmt.Sprintf("must contain between %d and %d goals", rules.MinGoals, rules.MaxGoals)}
	}
	goals := make([]domain.DailyGoal, 0, len(in.Goals))
	for i, g := range in.Goals {
		if strings.TrimSpace(g) == "" {
			return domain.DailyReport{}, &ValidationError{Field: fmt.Sprintf("goals[%d]", i), Reason: "must not be empty"}
		}
		goals = append(goals, domain.DailyGoal{ID: uuid.New().String(), Description: strings.TrimSpace(g)})
	}
	for i, a := range in.ExpectedActivities {
		if strings.TrimSpace(a.Category) == "" {
			return domain.DailyReport{}, &ValidationError{Field: fmt.Sprintf("expected_activities[%d].category", i), Reason: "must not be empty"}
		}
		if a.Minutes <= 0 {
			return domain.DailyReport{}, &ValidationError{Field: fmt.Sprintf("expected_activities[%d].minutes", i), Reason: "must be positive"}
		}
	}
	ts := now.UTC().Format(time.RFC3339)
	return domain.DailyReport{
		ID:                 uuid.New().String(),
		UserID:             in.UserID,
		Day:                eligibility.DayKey(now),
		WakeUpTime:         in.WakeUpTime,
		MorningMood:        in.MorningMood,
		MorningRoutine:     in.MorningRoutine,
		Goals:              goals,
		ExpectedActivities: in.ExpectedActivities,
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}, nil
}

// GoalCompletion records the evening outcome of one morning goal, matched by
// goal ID.
type GoalCompletion struct {
	GoalID            string
	Completed         bool
	CompletionMinutes *int
}

// EndOfDayInput is the evening extension payload.
type EndOfDayInput struct {
	EveningMood      int
	Completions      []GoalCompletion
	ActualActivities []domain.Activity
	Insights         string
}

// ApplyEndOfDay merges the evening update into the morning report. The
// completion list must cover exactly the report's goal IDs; all evening
// fields are set together so a report is never half-completed.
func ApplyEndOfDay(existing *domain.DailyReport, in EndOfDayInput, rules Rules, now time.Time) (domain.DailyReport, error) {
	if existing == nil {
		return domain.DailyReport{}, &DependencyError{Missing: "daily report"}
	}
	if existing.EndOfDayDone() {
		return domain.DailyReport{}, &AlreadyCompletedError{Day: existing.Day}
	}
	if in.EveningMood < rules.MoodMin || in.EveningMood > rules.MoodMax {
		return domain.DailyReport{}, &ValidationError{Field: "evening_mood", Reason: fmt.Sprintf("must be between %d and %d", rules.MoodMin, rules.MoodMax)}
	}
	if len(in.Completions) != len(existing.Goals) {
		return domain.DailyReport{}, &ValidationError{Field: "completions", Reason: fmt.Sprintf("must cover all %d goals", len(existing.Goals))}
	}
	byGoal := make(map[string]GoalCompletion, len(in.Completions))
	for _, c := range in.Completions {
		if _, dup := byGoal[c.GoalID]; dup {
			return domain.DailyReport{}, &ValidationError{Field: "completions", Reason: fmt.Sprintf("duplicate goal id %s", c.GoalID)}
		}
		byGoal[c.GoalID] = c
	}
	for i, a := range in.ActualActivities {
		if strings.TrimSpace(a.Category) == "" {
			return domain.DailyReport{}, &ValidationError{Field: fmt.Sprintf("actual_activities[%d].category", i), Reason: "must not be empty"}
		}
		if a.Minutes <= 0 {
			return domain.DailyReport{}, &ValidationError{Field: fmt.Sprintf("actual_activities[%d].minutes", i), Reason: "must be positive"}
		}
	}

	merged := *existing
	merged.Goals = make([]domain.DailyGoal, len(existing.Goals))
	copy(merged.Goals, existing.Goals)
	for i, g := range merged.Goals {
		c, ok := byGoal[g.ID]
		if !ok {
			return domain.DailyReport{}, &ValidationError{Field: "completions", Reason: fmt.Sprintf("missing goal id %s", g.ID)}
		}
		merged.Goals[i].Completed = c.Completed
		merged.Goals[i].CompletionMinutes = c.CompletionMinutes
	}
	mood := in.EveningMood
	merged.EveningMood = &mood
	merged.ActualActivities = in.ActualActivities
	merged.Insights = in.Insights
	merged.UpdatedAt = now.UTC().Format(time.RFC3339)
	return merged, nil
}

// WeeklyInput is the mid-week reflection payload.
type WeeklyInput struct {
	UserID              string
	Mood                int
	MoodDetails         string
	Learnings           string
	Growth              string
	RoutineMaintained   bool
	RoutineDetails      string
	AchievedGoals       []string
	GoalsShared         bool
	FreeTime            bool
	FreeTimeDetails     string
	LearningGoalMet     bool
	LearningGoalDetails string
	MentorInteraction   bool
	MentorDetails       string
	SupportInteraction  bool
	SupportDetails      string
	AdditionalSupport   string
	OpenQuestions       string
}

// NewWeekly validates the reflection and tags it with now's ISO week.
func NewWeekly(in WeeklyInput, rules Rules, now time.Time) (domain.WeeklyReport, error) {
	if in.UserID == "" {
		return domain.WeeklyReport{}, &ValidationError{Field: "user_id", Reason: "required"}
	}
	if in.Mood < rules.MoodMin || in.Mood > rules.MoodMax {
		return domain.WeeklyReport{}, &ValidationError{Field: "mood", Reason: fmt.Sprintf("must be between %d and %d", rules.MoodMin, rules.MoodMax)}
	}
	var goals []string
	for _, g := range in.AchievedGoals {
		if strings.TrimSpace(g) != "" {
			goals = append(goals, strings.TrimSpace(g))
		}
	}
	if len(goals) == 0 {
		return domain.WeeklyReport{}, &ValidationError{Field: "achieved_goals", Reason: "at least one non-empty goal required"}
	}
	return domain.WeeklyReport{
		ID:                  uuid.New().String(),
		UserID:              in.UserID,
		ISOWeek:             eligibility.WeekKey(now),
		Mood:                in.Mood,
		MoodDetails:         in.MoodDetails,
		Learnings:           in.Learnings,
		Growth:              in.Growth,
		RoutineMaintained:   in.RoutineMaintained,
		RoutineDetails:      in.RoutineDetails,
		AchievedGoals:       goals,
		GoalsShared:         in.GoalsShared,
		FreeTime:            in.FreeTime,
		FreeTimeDetails:     in.FreeTimeDetails,
		LearningGoalMet:     in.LearningGoalMet,
		LearningGoalDetails: in.LearningGoalDetails,
		MentorInteraction:   in.MentorInteraction,
		MentorDetails:       in.MentorDetails,
		SupportInteraction:  in.SupportInteraction,
		SupportDetails:      in.SupportDetails,
		AdditionalSupport:   in.AdditionalSupport,
		OpenQuestions:       in.OpenQuestions,
		CreatedAt:           now.UTC().Format(time.RFC3339),
	}, nil
}
