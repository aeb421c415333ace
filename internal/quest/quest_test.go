package quest_test

import (
	"errors"
	"testing"
	"time"

	"questlog/internal/domain"
	"questlog/internal/quest"
)

var now = time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)

func assignment(status string) domain.TaskAssignment {
	return domain.TaskAssignment{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		TaskID:      "task-1",
		Status:      status,
	}
}

func TestOwnerTransitionTable(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{quest.StatusTodo, quest.StatusInProgress, true},
		{quest.StatusTodo, quest.StatusCompleted, true},
		{quest.StatusInProgress, quest.StatusCompleted, true},
		{quest.StatusInProgress, quest.StatusTodo, false},
		{quest.StatusCompleted, quest.StatusTodo, false},
		{quest.StatusCompleted, quest.StatusInProgress, false},
	}
	for _, tc := range cases {
		err := quest.EnsureTransition(quest.RoleOwner, tc.from, tc.to)
		if tc.ok && err != nil {
			t.Errorf("owner %s -> %s: unexpected %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			var ite *quest.IllegalTransitionError
			if !errors.As(err, &ite) {
				t.Errorf("owner %s -> %s: expected IllegalTransitionError, got %v", tc.from, tc.to, err)
			}
		}
	}
}

func TestMentorAndAdminMayForceAnyTransition(t *testing.T) {
	statuses := []string{quest.StatusTodo, quest.StatusInProgress, quest.StatusCompleted}
	for _, role := range []quest.Role{quest.RoleMentor, quest.RoleAdmin} {
		for _, from := range statuses {
			for _, to := range statuses {
				if err := quest.EnsureTransition(role, from, to); err != nil {
					t.Errorf("%s %s -> %s: %v", role, from, to, err)
				}
			}
		}
	}
}

func TestChangeStatus(t *testing.T) {
	owner := quest.Actor{ID: "user-1", Role: quest.RoleOwner}
	a := assignment(quest.StatusTodo)

	a, err := quest.ChangeStatus(owner, a, quest.StatusCompleted, now)
	if err != nil || a.Status != quest.StatusCompleted {
		t.Fatalf("todo -> completed: %v (status %s)", err, a.Status)
	}
	// owner cannot reopen; status must stay completed
	after, err := quest.ChangeStatus(owner, a, quest.StatusTodo, now)
	if err == nil {
		t.Fatalf("expected IllegalTransitionError")
	}
	if after.Status != quest.StatusCompleted {
		t.Fatalf("failed transition mutated status to %s", after.Status)
	}
	// mentor may revert
	mentor := quest.Actor{ID: "mentor-1", Role: quest.RoleMentor}
	after, err = quest.ChangeStatus(mentor, a, quest.StatusTodo, now)
	if err != nil || after.Status != quest.StatusTodo {
		t.Fatalf("mentor revert: %v (status %s)", err, after.Status)
	}
}

func TestChangeStatusUnknown(t *testing.T) {
	admin := quest.Actor{ID: "admin-1", Role: quest.RoleAdmin}
	_, err := quest.ChangeStatus(admin, assignment(quest.StatusTodo), "archived", now)
	var ve *quest.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
}

func TestAddComment(t *testing.T) {
	mentor := quest.Actor{ID: "mentor-1", Role: quest.RoleMentor}
	a := assignment(quest.StatusCompleted)

	texts := []string{"nice work", "one nit", "resolved"}
	for _, txt := range texts {
		var c domain.TaskComment
		var err error
		a, c, err = quest.AddComment(mentor, a, txt, now)
		if err != nil {
			t.Fatalf("add %q: %v", txt, err)
		}
		if c.ID == "" || c.AuthorID != "mentor-1" {
			t.Fatalf("bad comment %+v", c)
		}
	}
	if len(a.Comments) != len(texts) {
		t.Fatalf("comment count = %d, want %d", len(a.Comments), len(texts))
	}
	for i, txt := range texts {
		if a.Comments[i].Text != txt {
			t.Fatalf("comment %d = %q, want %q (order must be preserved)", i, a.Comments[i].Text, txt)
		}
	}

	_, _, err := quest.AddComment(mentor, a, "   ", now)
	var ve *quest.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty text, got %v", err)
	}
}

func TestAddCommentDoesNotAliasInput(t *testing.T) {
	owner := quest.Actor{ID: "user-1", Role: quest.RoleOwner}
	a := assignment(quest.StatusTodo)
	b, _, err := quest.AddComment(owner, a, "first", now)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := quest.AddComment(owner, b, "second", now); err != nil {
		t.Fatal(err)
	}
	if len(a.Comments) != 0 {
		t.Fatalf("input assignment mutated: %d comments", len(a.Comments))
	}
}

func TestResolveRole(t *testing.T) {
	a := assignment(quest.StatusTodo)
	if role, ok := quest.ResolveRole("user-1", a, "member"); !ok || role != quest.RoleOwner {
		t.Fatalf("assignee should resolve to owner, got %v %v", role, ok)
	}
	if role, ok := quest.ResolveRole("other", a, "mentor"); !ok || role != quest.RoleMentor {
		t.Fatalf("mentor membership, got %v %v", role, ok)
	}
	if role, ok := quest.ResolveRole("other", a, "admin"); !ok || role != quest.RoleAdmin {
		t.Fatalf("admin membership, got %v %v", role, ok)
	}
	if _, ok := quest.ResolveRole("other", a, "member"); ok {
		t.Fatalf("plain member must not act on another user's task")
	}
}
