package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"questlog/internal/config"
	"questlog/internal/db"
	"questlog/internal/domain"
	"questlog/internal/engine"
	"questlog/internal/migrate"
	"questlog/internal/quest"
	"questlog/internal/report"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

// 2026-08-26 is a Wednesday, inside the default weekly window.
var startOfDay = time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := startOfDay
	cfg := config.Default("ws-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return clock }
	ctx := context.Background()
	if _, err := eng.InitWorkspace(ctx, "ws-1", "Mentorship", "", "admin-1"); err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	if _, err := eng.AddMember(ctx, "ws-1", "mentor-1", "mentor", "", "admin-1"); err != nil {
		t.Fatalf("add mentor: %v", err)
	}
	if _, err := eng.AddMember(ctx, "ws-1", "user-1", "member", "backend", "admin-1"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Clock: &clock}
}

func dailyInput(userID string) report.DailyInput {
	return report.DailyInput{
		UserID:      userID,
		WakeUpTime:  "07:00",
		MorningMood: 4,
		Goals:       []string{"finish module", "review PR", "write notes"},
		ExpectedActivities: []domain.Activity{
			{Category: "study", Minutes: 120},
		},
	}
}

func endOfDayInput(rep domain.DailyReport, completed int) report.EndOfDayInput {
	in := report.EndOfDayInput{
		EveningMood:      5,
		ActualActivities: []domain.Activity{{Category: "study", Minutes: 90}},
		Insights:         "good pace",
	}
	for i, g := range rep.Goals {
		in.Completions = append(in.Completions, report.GoalCompletion{
			GoalID:    g.ID,
			Completed: i < completed,
		})
	}
	return in
}

func TestSubmitDailyOncePerDay(t *testing.T) {
	env := newTestEnv(t)
	rep, err := env.Engine.SubmitDaily(env.Ctx, "ws-1", dailyInput("user-1"))
	if err != nil {
		t.Fatalf("submit daily: %v", err)
	}
	if rep.Day != "2026-08-26" || len(rep.Goals) != 3 {
		t.Fatalf("unexpected report: day=%s goals=%d", rep.Day, len(rep.Goals))
	}
	var dup *report.AlreadySubmittedError
	if _, err := env.Engine.SubmitDaily(env.Ctx, "ws-1", dailyInput("user-1")); !errors.As(err, &dup) {
		t.Fatalf("want AlreadySubmittedError, got %v", err)
	}
	if dup.Kind != "daily" || dup.Period != "2026-08-26" {
		t.Fatalf("unexpected duplicate info: %+v", dup)
	}

	// next day is a fresh period
	*env.Clock = env.Clock.AddDate(0, 0, 1)
	if _, err := env.Engine.SubmitDaily(env.Ctx, "ws-1", dailyInput("user-1")); err != nil {
		t.Fatalf("submit next day: %v", err)
	}
}

func TestEndOfDayFlow(t *testing.T) {
	env := newTestEnv(t)

	var depErr *report.DependencyError
	_, err := env.Engine.SubmitEndOfDay(env.Ctx, "ws-1", "user-1", report.EndOfDayInput{EveningMood: 4})
	if !errors.As(err, &depErr) {
		t.Fatalf("want DependencyError without morning report, got %v", err)
	}

	rep, err := env.Engine.SubmitDaily(env.Ctx, "ws-1", dailyInput("user-1"))
	if err != nil {
		t.Fatal(err)
	}
	merged, err := env.Engine.SubmitEndOfDay(env.Ctx, "ws-1", "user-1", endOfDayInput(rep, 2))
	if err != nil {
		t.Fatalf("end of day: %v", err)
	}
	if !merged.EndOfDayDone() || *merged.EveningMood != 5 {
		t.Fatalf("evening fields not set: %+v", merged)
	}
	if got := report.CompletionRate(merged); got < 66 || got > 67 {
		t.Fatalf("completion rate = %v, want ~66.67", got)
	}

	stored, err := env.Engine.Repo.GetDailyReport(env.Ctx, "ws-1", rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.EndOfDayDone() || !stored.Goals[0].Completed || stored.Goals[2].Completed {
		t.Fatalf("persisted report mismatch: %+v", stored.Goals)
	}

	var doneErr *report.AlreadyCompletedError
	if _, err := env.Engine.SubmitEndOfDay(env.Ctx, "ws-1", "user-1", endOfDayInput(rep, 3)); !errors.As(err, &doneErr) {
		t.Fatalf("want AlreadyCompletedError, got %v", err)
	}
}

func TestWeeklyWindowGate(t *testing.T) {
	env := newTestEnv(t)
	in := report.WeeklyInput{
		UserID:        "user-1",
		Mood:          4,
		AchievedGoals: []string{"shipped search endpoint"},
	}

	rep, err := env.Engine.SubmitWeekly(env.Ctx, "ws-1", in)
	if err != nil {
		t.Fatalf("submit on Wednesday: %v", err)
	}
	if rep.ISOWeek != "2026-W35" {
		t.Fatalf("iso week = %s", rep.ISOWeek)
	}

	var dup *report.AlreadySubmittedError
	if _, err := env.Engine.SubmitWeekly(env.Ctx, "ws-1", in); !errors.As(err, &dup) {
		t.Fatalf("want AlreadySubmittedError, got %v", err)
	}

	// Friday of the same week for a second user: outside the window.
	*env.Clock = time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	in.UserID = "mentor-1"
	var outside *report.OutsideWindowError
	_, err = env.Engine.SubmitWeekly(env.Ctx, "ws-1", in)
	if !errors.As(err, &outside) {
		t.Fatalf("want OutsideWindowError, got %v", err)
	}
	if got := outside.NextEligible.Format("2006-01-02"); got != "2026-09-02" {
		t.Fatalf("next eligible = %s, want next Wednesday", got)
	}
}

func TestResolveWeekly(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.ResolveWeekly(env.Ctx, "ws-1", "user-1")
	if err != nil || !d.Allowed {
		t.Fatalf("Wednesday should be eligible: %+v %v", d, err)
	}
	*env.Clock = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC) // Monday
	d, err = env.Engine.ResolveWeekly(env.Ctx, "ws-1", "user-1")
	if err != nil || d.Allowed {
		t.Fatalf("Monday should be blocked: %+v %v", d, err)
	}
	if d.NextEligible == nil || d.NextEligible.Format("2006-01-02") != "2026-08-26" {
		t.Fatalf("next eligible = %v, want coming Wednesday", d.NextEligible)
	}
}

func TestQuestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: "ws-1",
		Title:       "Ship onboarding doc",
		Category:    "onboarding",
		Reward:      10,
		ActorID:     "mentor-1",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := env.Engine.AssignTask(env.Ctx, "ws-1", "user-1", task.ID, "mentor-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	a, err := env.Engine.ChangeTaskStatus(env.Ctx, "ws-1", "user-1", task.ID, "in-progress", "user-1")
	if err != nil || a.Status != "in-progress" {
		t.Fatalf("owner start: %v %+v", err, a)
	}
	a, err = env.Engine.ChangeTaskStatus(env.Ctx, "ws-1", "user-1", task.ID, "completed", "user-1")
	if err != nil || a.Status != "completed" {
		t.Fatalf("owner complete: %v", err)
	}

	// the owner cannot reopen a completed task
	var illegal *quest.IllegalTransitionError
	if _, err := env.Engine.ChangeTaskStatus(env.Ctx, "ws-1", "user-1", task.ID, "todo", "user-1"); !errors.As(err, &illegal) {
		t.Fatalf("want IllegalTransitionError, got %v", err)
	}
	// a mentor can
	if a, err = env.Engine.ChangeTaskStatus(env.Ctx, "ws-1", "user-1", task.ID, "todo", "mentor-1"); err != nil || a.Status != "todo" {
		t.Fatalf("mentor revert: %v", err)
	}

	if _, err := env.Engine.AddTaskComment(env.Ctx, "ws-1", "user-1", task.ID, "picking this back up", "user-1"); err != nil {
		t.Fatalf("owner comment: %v", err)
	}
	if _, err := env.Engine.AddTaskComment(env.Ctx, "ws-1", "user-1", task.ID, "ping me if stuck", "mentor-1"); err != nil {
		t.Fatalf("mentor comment: %v", err)
	}
	quests, err := env.Engine.UserQuests(env.Ctx, "ws-1", "user-1", false)
	if err != nil || len(quests) != 1 {
		t.Fatalf("list quests: %v %d", err, len(quests))
	}
	if len(quests[0].Comments) != 2 || quests[0].Comments[0].Text != "picking this back up" {
		t.Fatalf("comment thread mismatch: %+v", quests[0].Comments)
	}

	// a plain member without the assignment has no say
	var forbidden *engine.ForbiddenError
	if _, err := env.Engine.AddMember(env.Ctx, "ws-1", "user-2", "member", "", "admin-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ChangeTaskStatus(env.Ctx, "ws-1", "user-1", task.ID, "in-progress", "user-2"); !errors.As(err, &forbidden) {
		t.Fatalf("want ForbiddenError, got %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{WorkspaceID: "ws-1", Title: "nope", ActorID: "user-2"}); !errors.As(err, &forbidden) {
		t.Fatalf("member creating tasks should be forbidden, got %v", err)
	}
}

func TestTaskWithoutCategory(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: "ws-1",
		Title:       "Shadow a standup",
		ActorID:     "mentor-1",
	})
	if err != nil {
		t.Fatalf("create uncategorized task: %v", err)
	}
	got, err := env.Engine.Repo.GetQuestTask(env.Ctx, "ws-1", task.ID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.Category != "" || got.Title != "Shadow a standup" {
		t.Fatalf("stored task mismatch: %+v", got)
	}
}

func TestCommentsKeepAppendOrder(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{WorkspaceID: "ws-1", Title: "Write retro notes", ActorID: "mentor-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AssignTask(env.Ctx, "ws-1", "user-1", task.ID, "mentor-1"); err != nil {
		t.Fatal(err)
	}

	// All comments land within the same clock second; order must still be
	// the call order, not an id sort.
	texts := []string{"first", "second", "third", "fourth", "fifth", "sixth"}
	for _, text := range texts {
		if _, err := env.Engine.AddTaskComment(env.Ctx, "ws-1", "user-1", task.ID, text, "user-1"); err != nil {
			t.Fatalf("comment %q: %v", text, err)
		}
	}
	comments, err := env.Engine.Repo.ListTaskComments(env.Ctx, "ws-1", "user-1", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != len(texts) {
		t.Fatalf("comment count = %d, want %d", len(comments), len(texts))
	}
	for i, c := range comments {
		if c.Text != texts[i] {
			t.Fatalf("comment %d = %q, want %q", i, c.Text, texts[i])
		}
	}
}

func TestGlobalTaskAutoAssign(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: "ws-1",
		Title:       "Read the handbook",
		Global:      true,
		ActorID:     "admin-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	quests, err := env.Engine.UserQuests(env.Ctx, "ws-1", "user-1", false)
	if err != nil || len(quests) != 1 || quests[0].TaskID != task.ID {
		t.Fatalf("auto-assign to member failed: %v %+v", err, quests)
	}
	// oversight roles are not auto-assigned
	mentorQuests, err := env.Engine.UserQuests(env.Ctx, "ws-1", "mentor-1", false)
	if err != nil || len(mentorQuests) != 0 {
		t.Fatalf("mentor should have no assignments: %v %d", err, len(mentorQuests))
	}
}

func TestGlobalTaskAssignedOnJoin(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: "ws-1",
		Title:       "Read the handbook",
		Global:      true,
		ActorID:     "admin-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	// direct add after the task already exists
	if _, err := env.Engine.AddMember(env.Ctx, "ws-1", "user-2", "member", "", "admin-1"); err != nil {
		t.Fatal(err)
	}
	quests, err := env.Engine.UserQuests(env.Ctx, "ws-1", "user-2", false)
	if err != nil || len(quests) != 1 || quests[0].TaskID != task.ID {
		t.Fatalf("late join missed global task: %v %+v", err, quests)
	}

	// joining through an invitation picks it up too
	inv, err := env.Engine.CreateInvitation(env.Ctx, "ws-1", "joiner@example.com", "member", "", "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AcceptInvitation(env.Ctx, inv.ID, "user-3"); err != nil {
		t.Fatal(err)
	}
	quests, err = env.Engine.UserQuests(env.Ctx, "ws-1", "user-3", false)
	if err != nil || len(quests) != 1 || quests[0].TaskID != task.ID {
		t.Fatalf("invited join missed global task: %v %+v", err, quests)
	}

	// an oversight join still gets nothing
	if _, err := env.Engine.AddMember(env.Ctx, "ws-1", "mentor-2", "mentor", "", "admin-1"); err != nil {
		t.Fatal(err)
	}
	mentorQuests, err := env.Engine.UserQuests(env.Ctx, "ws-1", "mentor-2", false)
	if err != nil || len(mentorQuests) != 0 {
		t.Fatalf("mentor join should not be assigned: %v %d", err, len(mentorQuests))
	}
}

func TestRevokeKeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{WorkspaceID: "ws-1", Title: "Pair session", ActorID: "mentor-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AssignTask(env.Ctx, "ws-1", "user-1", task.ID, "mentor-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddTaskComment(env.Ctx, "ws-1", "user-1", task.ID, "scheduled for Friday", "user-1"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.RevokeAssignment(env.Ctx, "ws-1", "user-1", task.ID, "mentor-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	active, err := env.Engine.UserQuests(env.Ctx, "ws-1", "user-1", false)
	if err != nil || len(active) != 0 {
		t.Fatalf("revoked assignment still active: %v %d", err, len(active))
	}
	all, err := env.Engine.UserQuests(env.Ctx, "ws-1", "user-1", true)
	if err != nil || len(all) != 1 || !all[0].Revoked() || len(all[0].Comments) != 1 {
		t.Fatalf("history lost on revoke: %v %+v", err, all)
	}
	if _, err := env.Engine.ChangeTaskStatus(env.Ctx, "ws-1", "user-1", task.ID, "in-progress", "user-1"); err == nil {
		t.Fatal("revoked assignment accepted a status change")
	}

	// reassignment reinstates in place with history attached
	if _, err := env.Engine.AssignTask(env.Ctx, "ws-1", "user-1", task.ID, "mentor-1"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	active, err = env.Engine.UserQuests(env.Ctx, "ws-1", "user-1", false)
	if err != nil || len(active) != 1 || active[0].Status != "todo" || len(active[0].Comments) != 1 {
		t.Fatalf("reinstate mismatch: %v %+v", err, active)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.CreateInvitation(env.Ctx, "ws-1", "new@example.com", "member", "frontend", "admin-1")
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if inv.Status != "pending" {
		t.Fatalf("status = %s", inv.Status)
	}

	m, err := env.Engine.AcceptInvitation(env.Ctx, inv.ID, "user-9")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m.Role != "member" || m.Position != "frontend" {
		t.Fatalf("membership mismatch: %+v", m)
	}
	if _, err := env.Engine.AcceptInvitation(env.Ctx, inv.ID, "user-9"); err == nil {
		t.Fatal("accepted invitation accepted twice")
	}

	// expiry flips the status instead of accepting
	inv2, err := env.Engine.CreateInvitation(env.Ctx, "ws-1", "late@example.com", "member", "", "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	*env.Clock = env.Clock.Add(169 * time.Hour)
	if _, err := env.Engine.AcceptInvitation(env.Ctx, inv2.ID, "user-10"); err == nil {
		t.Fatal("expired invitation accepted")
	}
	got, err := env.Engine.Repo.GetInvitation(env.Ctx, inv2.ID)
	if err != nil || got.Status != "expired" {
		t.Fatalf("invitation status = %s, want expired", got.Status)
	}

	// plain members cannot invite
	var forbidden *engine.ForbiddenError
	if _, err := env.Engine.CreateInvitation(env.Ctx, "ws-1", "x@example.com", "member", "", "user-1"); !errors.As(err, &forbidden) {
		t.Fatalf("want ForbiddenError, got %v", err)
	}
}

func TestUserDashboard(t *testing.T) {
	env := newTestEnv(t)
	rep, err := env.Engine.SubmitDaily(env.Ctx, "ws-1", dailyInput("user-1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitEndOfDay(env.Ctx, "ws-1", "user-1", endOfDayInput(rep, 3)); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{WorkspaceID: "ws-1", Title: "Quest", ActorID: "mentor-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AssignTask(env.Ctx, "ws-1", "user-1", task.ID, "mentor-1"); err != nil {
		t.Fatal(err)
	}

	d, err := env.Engine.UserDashboard(env.Ctx, "ws-1", "user-1")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Rollup.ReportCount != 1 || d.Rollup.StreakDays != 1 {
		t.Fatalf("rollup mismatch: %+v", d.Rollup)
	}
	if d.Rollup.CompletionRate != 100 {
		t.Fatalf("completion rate = %v", d.Rollup.CompletionRate)
	}
	if !d.Struggling {
		t.Fatal("0 of 1 tasks completed should flag struggling")
	}

	if _, err := env.Engine.ChangeTaskStatus(env.Ctx, "ws-1", "user-1", task.ID, "completed", "user-1"); err != nil {
		t.Fatal(err)
	}
	d, err = env.Engine.UserDashboard(env.Ctx, "ws-1", "user-1")
	if err != nil || d.Struggling {
		t.Fatalf("1 of 1 completed still struggling: %v", err)
	}
}

func TestEventLogRecordsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SubmitDaily(env.Ctx, "ws-1", dailyInput("user-1")); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "ws-1", "report.daily.submitted", "", "")
	if err != nil || len(evts) != 1 {
		t.Fatalf("events: %v %d", err, len(evts))
	}
	if evts[0].ActorID != "user-1" || evts[0].EntityKind != "daily_report" {
		t.Fatalf("event mismatch: %+v", evts[0])
	}
}
