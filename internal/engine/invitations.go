package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"questlog/internal/domain"
	"questlog/internal/events"
)

// CreateInvitation opens a pending invitation with a config-driven expiry.
// Admin only.
func (e Engine) CreateInvitation(ctx context.Context, workspaceID, email, role, position, actorID string) (domain.Invitation, error) {
	if err := e.requireAdmin(ctx, workspaceID, actorID, "invite members"); err != nil {
		return domain.Invitation{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Invitation{}, fmt.Errorf("valid email required")
	}
	if role == "" {
		role = "member"
	}
	if e.Config != nil && len(e.Config.Roles) > 0 {
		if _, ok := e.Config.Roles[role]; !ok {
			return domain.Invitation{}, fmt.Errorf("unknown role %s", role)
		}
	}
	ttl := 168
	if e.Config != nil && e.Config.Invitations.TTLHours > 0 {
		ttl = e.Config.Invitations.TTLHours
	}
	now := e.now().UTC()
	inv := domain.Invitation{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        role,
		Position:    position,
		Status:      "pending",
		InvitedBy:   actorID,
		CreatedAt:   now.Format(time.RFC3339),
		UpdatedAt:   now.Format(time.RFC3339),
		ExpiresAt:   now.Add(time.Duration(ttl) * time.Hour).Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return inv, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInvitation(ctx, tx, inv); err != nil {
		return inv, err
	}
	if err := e.Events.Append(ctx, tx, "invite.created", workspaceID, "invitation", inv.ID, actorID, events.EventPayload{
		"email": inv.Email,
		"role":  inv.Role,
	}); err != nil {
		return inv, err
	}
	if err := tx.Commit(); err != nil {
		return inv, err
	}
	return inv, nil
}

// AcceptInvitation turns a pending invitation into a membership. A pending
// invitation past its expiry is flipped to expired instead of accepted.
func (e Engine) AcceptInvitation(ctx context.Context, invitationID, actorID string) (domain.Membership, error) {
	inv, err := e.Repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return domain.Membership{}, err
	}
	if inv.Status != "pending" {
		return domain.Membership{}, fmt.Errorf("invitation is %s", inv.Status)
	}
	now := e.now().UTC()
	ts := now.Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	expires, _ := time.Parse(time.RFC3339, inv.ExpiresAt)
	if !now.Before(expires) {
		if err := e.Repo.UpdateInvitationStatus(ctx, tx, inv.ID, "expired", nil, ts); err != nil {
			return domain.Membership{}, err
		}
		if err := e.Events.Append(ctx, tx, "invite.expired", inv.WorkspaceID, "invitation", inv.ID, actorID, nil); err != nil {
			return domain.Membership{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Membership{}, err
		}
		return domain.Membership{}, fmt.Errorf("invitation expired at %s", inv.ExpiresAt)
	}

	if err := e.Repo.UpdateInvitationStatus(ctx, tx, inv.ID, "accepted", &actorID, ts); err != nil {
		return domain.Membership{}, err
	}
	m := domain.Membership{
		WorkspaceID: inv.WorkspaceID,
		ActorID:     actorID,
		Role:        inv.Role,
		Position:    inv.Position,
		JoinedAt:    ts,
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID, "", ts); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Repo.UpsertMembership(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "invite.accepted", inv.WorkspaceID, "invitation", inv.ID, actorID, events.EventPayload{
		"role": inv.Role,
	}); err != nil {
		return domain.Membership{}, err
	}
	if err := e.assignGlobalTasksTx(ctx, tx, m, actorID, ts); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

// CancelInvitation withdraws a pending invitation. Admin only.
func (e Engine) CancelInvitation(ctx context.Context, invitationID, actorID string) error {
	inv, err := e.Repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}
	if err := e.requireAdmin(ctx, inv.WorkspaceID, actorID, "cancel invitations"); err != nil {
		return err
	}
	if inv.Status != "pending" {
		return fmt.Errorf("invitation is %s", inv.Status)
	}
	ts := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateInvitationStatus(ctx, tx, inv.ID, "cancelled", nil, ts); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "invite.cancelled", inv.WorkspaceID, "invitation", inv.ID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// SweepExpiredInvitations flips overdue pending invitations to expired.
func (e Engine) SweepExpiredInvitations(ctx context.Context, workspaceID, actorID string) (int64, error) {
	ts := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := e.Repo.ExpireInvitations(ctx, tx, workspaceID, ts)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := e.Events.Append(ctx, tx, "invite.expired", workspaceID, "invitation", "", actorID, events.EventPayload{"count": n}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
