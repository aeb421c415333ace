package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"questlog/internal/domain"
	"questlog/internal/events"
	"questlog/internal/quest"
	"questlog/internal/repo"
	"questlog/internal/stats"
)

// TaskCreateOptions are parameters for creating a quest task definition.
type TaskCreateOptions struct {
	WorkspaceID string
	Title       string
	Category    string
	Reward      int
	Positions   []string
	Global      bool
	ActorID     string
}

// CreateTask defines a quest task. Global tasks are auto-assigned to every
// current member when the workspace config enables it.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.QuestTask, error) {
	if opts.Title == "" {
		return domain.QuestTask{}, &quest.ValidationError{Field: "title", Reason: "required"}
	}
	if _, err := e.requireOversight(ctx, opts.WorkspaceID, opts.ActorID, "create tasks"); err != nil {
		return domain.QuestTask{}, err
	}
	if opts.Category != "" && e.Config != nil && len(e.Config.Quests.Categories) > 0 {
		known := false
		for _, c := range e.Config.Quests.Categories {
			if c == opts.Category {
				known = true
				break
			}
		}
		if !known {
			return domain.QuestTask{}, &quest.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", opts.Category)}
		}
	}
	now := e.now()
	ts := now.UTC().Format(time.RFC3339)
	t := domain.QuestTask{
		ID:          uuid.New().String(),
		WorkspaceID: opts.WorkspaceID,
		Title:       opts.Title,
		Category:    opts.Category,
		Reward:      opts.Reward,
		Positions:   opts.Positions,
		Global:      opts.Global,
		CreatedAt:   ts,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertQuestTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.WorkspaceID, "quest_task", t.ID, opts.ActorID, events.EventPayload{
		"title":  t.Title,
		"global": t.Global,
	}); err != nil {
		return t, err
	}
	if t.Global && e.Config != nil && e.Config.Quests.AutoAssignGlobal {
		members, err := e.Repo.ListMemberships(ctx, t.WorkspaceID)
		if err != nil {
			return t, err
		}
		for _, m := range members {
			if m.Role != "member" {
				continue
			}
			if !positionMatches(t.Positions, m.Position) {
				continue
			}
			if err := e.assignTx(ctx, tx, t, m.ActorID, opts.ActorID, ts); err != nil {
				return t, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// positionMatches applies the task's position filter; an empty filter
// matches everyone.
func positionMatches(positions []string, position string) bool {
	if len(positions) == 0 {
		return true
	}
	for _, p := range positions {
		if p == position {
			return true
		}
	}
	return false
}

func (e Engine) assignTx(ctx context.Context, tx *sql.Tx, t domain.QuestTask, userID, byActorID, ts string) error {
	existing, err := e.Repo.GetAssignmentTx(ctx, tx, t.WorkspaceID, userID, t.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err == nil {
		if !existing.Revoked() {
			return nil
		}
		// A revoked assignment is reinstated in place; its comment history
		// stays attached.
		_, err := tx.ExecContext(ctx, `UPDATE task_assignments SET revoked_at=NULL, status=?, updated_at=? WHERE workspace_id=? AND user_id=? AND task_id=?`,
			quest.StatusTodo, ts, t.WorkspaceID, userID, t.ID)
		if err != nil {
			return err
		}
	} else {
		a := domain.TaskAssignment{
			WorkspaceID: t.WorkspaceID,
			UserID:      userID,
			TaskID:      t.ID,
			Status:      quest.StatusTodo,
			AssignedAt:  ts,
			UpdatedAt:   ts,
		}
		if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
			return err
		}
	}
	return e.Events.Append(ctx, tx, "task.assigned", t.WorkspaceID, "quest_task", t.ID, byActorID, events.EventPayload{"user_id": userID})
}

// assignGlobalTasksTx gives a freshly joined member every global task whose
// position filter matches. Only member-role joins receive assignments.
func (e Engine) assignGlobalTasksTx(ctx context.Context, tx *sql.Tx, m domain.Membership, byActorID, ts string) error {
	if m.Role != "member" || e.Config == nil || !e.Config.Quests.AutoAssignGlobal {
		return nil
	}
	tasks, err := e.Repo.ListGlobalQuestTasksTx(ctx, tx, m.WorkspaceID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if !positionMatches(t.Positions, m.Position) {
			continue
		}
		if err := e.assignTx(ctx, tx, t, m.ActorID, byActorID, ts); err != nil {
			return err
		}
	}
	return nil
}

// AssignTask gives a member the task. Mentor or admin only; the target must
// be a workspace member.
func (e Engine) AssignTask(ctx context.Context, workspaceID, userID, taskID, actorID string) (domain.TaskAssignment, error) {
	if _, err := e.requireOversight(ctx, workspaceID, actorID, "assign tasks"); err != nil {
		return domain.TaskAssignment{}, err
	}
	if _, err := e.Repo.GetMembership(ctx, workspaceID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.TaskAssignment{}, fmt.Errorf("user %s is not a member of %s", userID, workspaceID)
		}
		return domain.TaskAssignment{}, err
	}
	ts := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskAssignment{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetQuestTaskTx(ctx, tx, workspaceID, taskID)
	if err != nil {
		return domain.TaskAssignment{}, err
	}
	if err := e.assignTx(ctx, tx, t, userID, actorID, ts); err != nil {
		return domain.TaskAssignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskAssignment{}, err
	}
	return e.Repo.GetAssignment(ctx, workspaceID, userID, taskID)
}

// RevokeAssignment soft-revokes: the row and its comments stay for history
// and the task disappears from the member's active list.
func (e Engine) RevokeAssignment(ctx context.Context, workspaceID, userID, taskID, actorID string) error {
	if _, err := e.requireOversight(ctx, workspaceID, actorID, "revoke tasks"); err != nil {
		return err
	}
	ts := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeAssignment(ctx, tx, workspaceID, userID, taskID, ts); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.revoked", workspaceID, "quest_task", taskID, actorID, events.EventPayload{"user_id": userID}); err != nil {
		return err
	}
	return tx.Commit()
}

// resolveQuestActor loads the assignment and maps the caller to its quest
// role. Revoked assignments accept no further mutations.
func (e Engine) resolveQuestActor(ctx context.Context, workspaceID, userID, taskID, actorID, action string) (domain.TaskAssignment, quest.Actor, error) {
	a, err := e.Repo.GetAssignment(ctx, workspaceID, userID, taskID)
	if err != nil {
		return a, quest.Actor{}, err
	}
	if a.Revoked() {
		return a, quest.Actor{}, fmt.Errorf("assignment %s/%s is revoked", userID, taskID)
	}
	membershipRole := ""
	if m, err := e.Repo.GetMembership(ctx, workspaceID, actorID); err == nil {
		membershipRole = m.Role
	} else if !errors.Is(err, repo.ErrNotFound) {
		return a, quest.Actor{}, err
	}
	role, ok := quest.ResolveRole(actorID, a, membershipRole)
	if !ok {
		return a, quest.Actor{}, &ForbiddenError{ActorID: actorID, Action: action}
	}
	return a, quest.Actor{ID: actorID, Role: role}, nil
}

// ChangeTaskStatus applies the state machine and persists the result.
func (e Engine) ChangeTaskStatus(ctx context.Context, workspaceID, userID, taskID, to, actorID string) (domain.TaskAssignment, error) {
	a, actor, err := e.resolveQuestActor(ctx, workspaceID, userID, taskID, actorID, "change task status")
	if err != nil {
		return domain.TaskAssignment{}, err
	}
	from := a.Status
	updated, err := quest.ChangeStatus(actor, a, to, e.now())
	if err != nil {
		return domain.TaskAssignment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskAssignment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAssignmentStatus(ctx, tx, workspaceID, userID, taskID, updated.Status, updated.UpdatedAt); err != nil {
		return domain.TaskAssignment{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.status.changed", workspaceID, "quest_task", taskID, actorID, events.EventPayload{
		"user_id": userID,
		"from":    from,
		"to":      updated.Status,
		"role":    string(actor.Role),
	}); err != nil {
		return domain.TaskAssignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskAssignment{}, err
	}
	return updated, nil
}

// AddTaskComment appends to the assignment's immutable comment thread.
func (e Engine) AddTaskComment(ctx context.Context, workspaceID, userID, taskID, text, actorID string) (domain.TaskComment, error) {
	a, actor, err := e.resolveQuestActor(ctx, workspaceID, userID, taskID, actorID, "comment on task")
	if err != nil {
		return domain.TaskComment{}, err
	}
	_, c, err := quest.AddComment(actor, a, text, e.now())
	if err != nil {
		return domain.TaskComment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskComment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTaskComment(ctx, tx, workspaceID, userID, taskID, c); err != nil {
		return domain.TaskComment{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.commented", workspaceID, "quest_task", taskID, actorID, events.EventPayload{
		"user_id":    userID,
		"comment_id": c.ID,
	}); err != nil {
		return domain.TaskComment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskComment{}, err
	}
	return c, nil
}

// UserQuests lists a member's assignments with their comment threads.
func (e Engine) UserQuests(ctx context.Context, workspaceID, userID string, includeRevoked bool) ([]domain.TaskAssignment, error) {
	assignments, err := e.Repo.ListAssignments(ctx, workspaceID, userID, includeRevoked)
	if err != nil {
		return nil, err
	}
	for i := range assignments {
		comments, err := e.Repo.ListTaskComments(ctx, workspaceID, userID, assignments[i].TaskID)
		if err != nil {
			return nil, err
		}
		assignments[i].Comments = comments
	}
	return assignments, nil
}

// Dashboard is the weekly progress summary for one member.
type Dashboard struct {
	UserID     string       `json:"user_id"`
	Rollup     stats.Rollup `json:"rollup"`
	Struggling bool         `json:"struggling"`
}

// UserDashboard aggregates the trailing weeks of reports and the member's
// assignments into the dashboard figures.
func (e Engine) UserDashboard(ctx context.Context, workspaceID, userID string) (Dashboard, error) {
	now := e.now()
	reports, err := e.recentReports(ctx, workspaceID, userID, 35, now)
	if err != nil {
		return Dashboard{}, err
	}
	assignments, err := e.Repo.ListAssignments(ctx, workspaceID, userID, false)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		UserID:     userID,
		Rollup:     stats.WeeklyRollup(reports, assignments, now),
		Struggling: stats.IsStruggling(assignments, e.strugglingThreshold()),
	}, nil
}
