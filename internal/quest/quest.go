// Package quest holds the task-status state machine and comment rules for
// quest assignments. The permission matrix lives in one transition-table
// lookup: owners only move forward, mentors and admins may force any
// transition for correction.
package quest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"questlog/internal/domain"
)

// Role is the acting principal's relationship to the assignment.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMentor Role = "mentor"
	RoleAdmin  Role = "admin"
)

type Actor struct {
	ID   string
	Role Role
}

// Task statuses. Completed is terminal for the owner path.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// ownerTransitions is the forward-only table for the assignment owner.
var ownerTransitions = map[string][]string{
	StatusTodo:       {StatusInProgress, StatusCompleted},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {},
}

// IllegalTransitionError marks a transition the actor's role does not allow.
type IllegalTransitionError struct {
	Role Role
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s may not move task from %s to %s", e.Role, e.From, e.To)
}

// ValidationError marks a structurally invalid quest mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func ValidStatus(s string) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// EnsureTransition checks the permission matrix. Mentors and admins may
// apply any transition, including reverts; owners follow ownerTransitions.
func EnsureTransition(role Role, from, to string) error {
	if !ValidStatus(to) {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	if role == RoleMentor || role == RoleAdmin {
		return nil
	}
	for _, next := range ownerTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &IllegalTransitionError{Role: role, From: from, To: to}
}

// ChangeStatus applies a transition on a copy of the assignment.
func ChangeStatus(actor Actor, a domain.TaskAssignment, to string, now time.Time) (domain.TaskAssignment, error) {
	if err := EnsureTransition(actor.Role, a.Status, to); err != nil {
		return a, err
	}
	a.Status = to
	a.UpdatedAt = now.UTC().Format(time.RFC3339)
	return a, nil
}

// AddComment appends to the assignment's comment thread. Comments are
// immutable once appended; any role may comment, in any task status.
func AddComment(actor Actor, a domain.TaskAssignment, text string, now time.Time) (domain.TaskAssignment, domain.TaskComment, error) {
	if strings.TrimSpace(text) == "" {
		return a, domain.TaskComment{}, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	c := domain.TaskComment{
		ID:        uuid.New().String(),
		Text:      text,
		AuthorID:  actor.ID,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
	comments := make([]domain.TaskComment, len(a.Comments), len(a.Comments)+1)
	copy(comments, a.Comments)
	a.Comments = append(comments, c)
	a.UpdatedAt = c.CreatedAt
	return a, c, nil
}

// ResolveRole maps a caller to its role for an assignment: the assignee is
// the owner regardless of workspace role; otherwise the membership role
// decides (mentors and admins oversee, plain members have no claim).
func ResolveRole(actorID string, a domain.TaskAssignment, membershipRole string) (Role, bool) {
	if actorID == a.UserID {
		return RoleOwner, true
	}
	switch membershipRole {
	case "mentor":
		return RoleMentor, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}
