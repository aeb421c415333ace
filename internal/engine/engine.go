// Package engine is the lifecycle orchestrator: it gates every mutation
// behind the eligibility and permission rules, persists the result in one
// transaction, and appends the matching event.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"questlog/internal/config"
	"questlog/internal/domain"
	"questlog/internal/eligibility"
	"questlog/internal/events"
	"questlog/internal/repo"
	"questlog/internal/report"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) rules() report.Rules {
	if e.Config == nil {
		return report.DefaultRules()
	}
	return report.Rules{
		MinGoals: e.Config.Reports.Daily.Goals.Min,
		MaxGoals: e.Config.Reports.Daily.Goals.Max,
		MoodMin:  e.Config.Reports.Daily.Mood.Min,
		MoodMax:  e.Config.Reports.Daily.Mood.Max,
	}
}

func (e Engine) weeklyWindow() []time.Weekday {
	if e.Config != nil {
		if w := e.Config.WeeklyWindow(); len(w) > 0 {
			return w
		}
	}
	return eligibility.DefaultWeeklyWindow
}

func (e Engine) strugglingThreshold() float64 {
	if e.Config != nil && e.Config.Stats.StrugglingThreshold > 0 {
		return e.Config.Stats.StrugglingThreshold
	}
	return 0.5
}

// ForbiddenError marks an action the caller's workspace role does not permit.
type ForbiddenError struct {
	ActorID string
	Action  string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s may not %s", e.ActorID, e.Action)
}

// InitWorkspace creates the workspace, its default config and the founding
// admin membership.
func (e Engine) InitWorkspace(ctx context.Context, workspaceID, name, description, actorID string) (domain.Workspace, error) {
	if workspaceID == "" {
		return domain.Workspace{}, errors.New("workspace id required")
	}
	if name == "" {
		name = workspaceID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()

	ts := e.now().UTC().Format(time.RFC3339)
	w := domain.Workspace{
		ID:          workspaceID,
		Name:        name,
		Status:      "active",
		Description: description,
		CreatedAt:   ts,
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO workspaces(id,name,status,description,created_at) VALUES (?,?,?,?,?)`,
		w.ID, w.Name, w.Status, nullable(w.Description), w.CreatedAt); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	if err := e.Repo.UpsertWorkspaceConfigTx(ctx, tx, w.ID, config.Default(w.ID)); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace config: %w", err)
	}
	if actorID != "" {
		if err := e.Repo.EnsureActor(ctx, tx, actorID, "", ts); err != nil {
			return domain.Workspace{}, err
		}
		if err := e.Repo.UpsertMembership(ctx, tx, domain.Membership{
			WorkspaceID: w.ID,
			ActorID:     actorID,
			Role:        "admin",
			JoinedAt:    ts,
		}); err != nil {
			return domain.Workspace{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "workspace.init", w.ID, "workspace", w.ID, actorID, events.EventPayload{"name": w.Name}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return w, nil
}

// memberRole returns the caller's role in the workspace, or a ForbiddenError
// when the caller is not a member.
func (e Engine) memberRole(ctx context.Context, workspaceID, actorID, action string) (string, error) {
	m, err := e.Repo.GetMembership(ctx, workspaceID, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", &ForbiddenError{ActorID: actorID, Action: action}
		}
		return "", err
	}
	return m.Role, nil
}

func (e Engine) requireOversight(ctx context.Context, workspaceID, actorID, action string) (string, error) {
	role, err := e.memberRole(ctx, workspaceID, actorID, action)
	if err != nil {
		return "", err
	}
	if role != "mentor" && role != "admin" {
		return "", &ForbiddenError{ActorID: actorID, Action: action}
	}
	return role, nil
}

func (e Engine) requireAdmin(ctx context.Context, workspaceID, actorID, action string) error {
	role, err := e.memberRole(ctx, workspaceID, actorID, action)
	if err != nil {
		return err
	}
	if role != "admin" {
		return &ForbiddenError{ActorID: actorID, Action: action}
	}
	return nil
}

// AddMember attaches an actor to the workspace directly, bypassing the
// invitation flow. Admin only.
func (e Engine) AddMember(ctx context.Context, workspaceID, actorID, role, position, byActorID string) (domain.Membership, error) {
	if err := e.requireAdmin(ctx, workspaceID, byActorID, "add members"); err != nil {
		return domain.Membership{}, err
	}
	if role == "" {
		role = "member"
	}
	if e.Config != nil && len(e.Config.Roles) > 0 {
		if _, ok := e.Config.Roles[role]; !ok {
			return domain.Membership{}, fmt.Errorf("unknown role %s", role)
		}
	}
	ts := e.now().UTC().Format(time.RFC3339)
	m := domain.Membership{
		WorkspaceID: workspaceID,
		ActorID:     actorID,
		Role:        role,
		Position:    position,
		JoinedAt:    ts,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, "", ts); err != nil {
		return m, err
	}
	if err := e.Repo.UpsertMembership(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, "member.added", workspaceID, "membership", actorID, byActorID, events.EventPayload{"role": role}); err != nil {
		return m, err
	}
	if err := e.assignGlobalTasksTx(ctx, tx, m, byActorID, ts); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
