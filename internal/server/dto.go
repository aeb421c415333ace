package server

import (
	"questlog/internal/domain"
	"questlog/internal/eligibility"
	"questlog/internal/report"
)

// Request payloads

type CreateWorkspaceRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	ActorID  string `json:"actor_id"`
	Role     string `json:"role,omitempty" enum:"member,mentor,admin"`
	Position string `json:"position,omitempty"`
}

type CreateInvitationRequest struct {
	Email    string `json:"email" format:"email"`
	Role     string `json:"role,omitempty" enum:"member,mentor,admin"`
	Position string `json:"position,omitempty"`
}

type ActivityRequest struct {
	Category string `json:"category"`
	Minutes  int    `json:"minutes" minimum:"1"`
}

type SubmitDailyRequest struct {
	WakeUpTime         string            `json:"wake_up_time" example:"07:00"`
	MorningMood        int               `json:"morning_mood" minimum:"1" maximum:"5"`
	MorningRoutine     string            `json:"morning_routine,omitempty"`
	Goals              []string          `json:"goals" minItems:"1"`
	ExpectedActivities []ActivityRequest `json:"expected_activities,omitempty"`
}

type GoalCompletionRequest struct {
	GoalID            string `json:"goal_id"`
	Completed         bool   `json:"completed"`
	CompletionMinutes *int   `json:"completion_minutes,omitempty"`
}

type CompleteDailyRequest struct {
	EveningMood      int                     `json:"evening_mood" minimum:"1" maximum:"5"`
	Completions      []GoalCompletionRequest `json:"completions,omitempty"`
	ActualActivities []ActivityRequest       `json:"actual_activities,omitempty"`
	Insights         string                  `json:"insights,omitempty"`
}

type SubmitWeeklyRequest struct {
	Mood                int      `json:"mood" minimum:"1" maximum:"5"`
	MoodDetails         string   `json:"mood_details,omitempty"`
	Learnings           string   `json:"learnings,omitempty"`
	Growth              string   `json:"growth,omitempty"`
	RoutineMaintained   bool     `json:"routine_maintained"`
	RoutineDetails      string   `json:"routine_details,omitempty"`
	AchievedGoals       []string `json:"achieved_goals" minItems:"1"`
	GoalsShared         bool     `json:"goals_shared"`
	FreeTime            bool     `json:"free_time"`
	FreeTimeDetails     string   `json:"free_time_details,omitempty"`
	LearningGoalMet     bool     `json:"learning_goal_met"`
	LearningGoalDetails string   `json:"learning_goal_details,omitempty"`
	MentorInteraction   bool     `json:"mentor_interaction"`
	MentorDetails       string   `json:"mentor_details,omitempty"`
	SupportInteraction  bool     `json:"support_interaction"`
	SupportDetails      string   `json:"support_details,omitempty"`
	AdditionalSupport   string   `json:"additional_support,omitempty"`
	OpenQuestions       string   `json:"open_questions,omitempty"`
}

type CreateTaskRequest struct {
	Title     string   `json:"title"`
	Category  string   `json:"category,omitempty"`
	Reward    int      `json:"reward,omitempty" minimum:"0"`
	Positions []string `json:"positions,omitempty"`
	Global    bool     `json:"global,omitempty"`
}

type AssignTaskRequest struct {
	UserID string `json:"user_id"`
}

type SetQuestStatusRequest struct {
	Status string `json:"status" enum:"todo,in-progress,completed"`
}

type AddCommentRequest struct {
	Text string `json:"text"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EligibilityResponse struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	NextEligible string `json:"next_eligible,omitempty" format:"date"`
}

func eligibilityResponse(d eligibility.Decision) EligibilityResponse {
	out := EligibilityResponse{
		Allowed: d.Allowed,
		Reason:  string(d.Reason),
	}
	if d.NextEligible != nil {
		out.NextEligible = d.NextEligible.Format("2006-01-02")
	}
	return out
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(in))
	for _, e := range in {
		out = append(out, eventResponse(e))
	}
	return out
}

func activities(in []ActivityRequest) []domain.Activity {
	out := make([]domain.Activity, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Activity{Category: a.Category, Minutes: a.Minutes})
	}
	return out
}

func completions(in []GoalCompletionRequest) []report.GoalCompletion {
	out := make([]report.GoalCompletion, 0, len(in))
	for _, c := range in {
		out = append(out, report.GoalCompletion{
			GoalID:            c.GoalID,
			Completed:         c.Completed,
			CompletionMinutes: c.CompletionMinutes,
		})
	}
	return out
}

func weeklyInput(userID string, in SubmitWeeklyRequest) report.WeeklyInput {
	return report.WeeklyInput{
		UserID:              userID,
		Mood:                in.Mood,
		MoodDetails:         in.MoodDetails,
		Learnings:           in.Learnings,
		Growth:              in.Growth,
		RoutineMaintained:   in.RoutineMaintained,
		RoutineDetails:      in.RoutineDetails,
		AchievedGoals:       in.AchievedGoals,
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
	}
}
