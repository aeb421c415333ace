package domain

type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status" enum:"active,archived"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Membership binds an actor to a workspace with a role and an optional
// position. The role decides which quest transitions the actor may force.
type Membership struct {
	WorkspaceID string `json:"workspace_id"`
	ActorID     string `json:"actor_id"`
	Role        string `json:"role" enum:"member,mentor,admin"`
	Position    string `json:"position,omitempty"`
	JoinedAt    string `json:"joined_at" format:"date-time"`
}

type Invitation struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspace_id"`
	Email       string  `json:"email"`
	Role        string  `json:"role" enum:"member,mentor,admin"`
	Position    string  `json:"position,omitempty"`
	Status      string  `json:"status" enum:"pending,accepted,cancelled,expired"`
	InvitedBy   string  `json:"invited_by"`
	AcceptedBy  *string `json:"accepted_by,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	ExpiresAt   string  `json:"expires_at" format:"date-time"`
}

// DailyGoal carries a stable ID so end-of-day completion data matches by
// identity rather than by array position.
type DailyGoal struct {
	ID                string `json:"id"`
	Description       string `json:"description"`
	Completed         bool   `json:"completed"`
	CompletionMinutes *int   `json:"completion_minutes,omitempty"`
}

type Activity struct {
	Category string `json:"category"`
	Minutes  int    `json:"minutes"`
}

// DailyReport is the morning planning record for one calendar day. The
// evening fields (EveningMood, ActualActivities, per-goal completion,
// Insights) are filled together by the end-of-day update; EveningMood
// doubles as the marker that the update happened.
type DailyReport struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"user_id"`
	Day                string      `json:"day" format:"date"`
	WakeUpTime         string      `json:"wake_up_time" example:"07:00"`
	MorningMood        int         `json:"morning_mood" minimum:"1" maximum:"5"`
	MorningRoutine     string      `json:"morning_routine,omitempty"`
	Goals              []DailyGoal `json:"goals"`
	ExpectedActivities []Activity  `json:"expected_activities"`
	ActualActivities   []Activity  `json:"actual_activities,omitempty"`
	EveningMood        *int        `json:"evening_mood,omitempty" minimum:"1" maximum:"5"`
	Insights           string      `json:"insights,omitempty"`
	CreatedAt          string      `json:"created_at" format:"date-time"`
	UpdatedAt          string      `json:"updated_at" format:"date-time"`
}

// EndOfDayDone reports whether the evening half of the report was submitted.
func (r DailyReport) EndOfDayDone() bool {
	return r.EveningMood != nil
}

type WeeklyReport struct {
	ID                  string   `json:"id"`
	UserID              string   `json:"user_id"`
	ISOWeek             string   `json:"iso_week" example:"2026-W35"`
	Mood                int      `json:"mood" minimum:"1" maximum:"5"`
	MoodDetails         string   `json:"mood_details,omitempty"`
	Learnings           string   `json:"learnings,omitempty"`
	Growth              string   `json:"growth,omitempty"`
	RoutineMaintained   bool     `json:"routine_maintained"`
	RoutineDetails      string   `json:"routine_details,omitempty"`
	AchievedGoals       []string `json:"achieved_goals"`
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
	CreatedAt           string   `json:"created_at" format:"date-time"`
}

// QuestTask is a task definition inside a workspace. Assigning it to a user
// produces a TaskAssignment; the definition itself carries no status.
type QuestTask struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspace_id"`
	Title       string   `json:"title"`
	Category    string   `json:"category,omitempty"`
	Reward      int      `json:"reward"`
	Positions   []string `json:"positions,omitempty"`
	Global      bool     `json:"global"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type TaskComment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	AuthorID  string `json:"author_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TaskAssignment is the per-user, per-workspace progress record for a quest
// task. Comments are append-only; revoking keeps the row and its history.
type TaskAssignment struct {
	WorkspaceID string        `json:"workspace_id"`
	UserID      string        `json:"user_id"`
	TaskID      string        `json:"task_id"`
	Status      string        `json:"status" enum:"todo,in-progress,completed"`
	Comments    []TaskComment `json:"comments,omitempty"`
	RevokedAt   *string       `json:"revoked_at,omitempty" format:"date-time"`
	AssignedAt  string        `json:"assigned_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

func (a TaskAssignment) Revoked() bool {
	return a.RevokedAt != nil
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
