package repo

import (
	"context"
	"database/sql"
	"strings"

	"questlog/internal/domain"
)

func (r Repo) InsertInvitation(ctx context.Context, tx *sql.Tx, inv domain.Invitation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invitations(id,workspace_id,email,role,position,status,invited_by,accepted_by,expires_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.WorkspaceID, inv.Email, inv.Role, nullable(inv.Position), inv.Status, inv.InvitedBy,
		nullableStringPtr(inv.AcceptedBy), inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt)
	return err
}

func (r Repo) UpdateInvitationStatus(ctx context.Context, tx *sql.Tx, id, status string, acceptedBy *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invitations SET status=?, accepted_by=?, updated_at=? WHERE id=?`,
		status, nullableStringPtr(acceptedBy), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInvitation(scan func(dest ...any) error) (domain.Invitation, error) {
	var inv domain.Invitation
	var position, acceptedBy sql.NullString
	err := scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role, &position, &inv.Status, &inv.InvitedBy, &acceptedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	if position.Valid {
		inv.Position = position.String
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.String
	}
	return inv, nil
}

const invitationColumns = `id,workspace_id,email,role,position,status,invited_by,accepted_by,expires_at,created_at,updated_at`

func (r Repo) GetInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id=?`, id)
	return scanInvitation(row.Scan)
}

func (r Repo) GetInvitationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Invitation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id=?`, id)
	return scanInvitation(row.Scan)
}

func (r Repo) ListInvitations(ctx context.Context, workspaceID, status string) ([]domain.Invitation, error) {
	clauses := []string{"workspace_id=?"}
	args := []any{workspaceID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, nil
}

// ExpireInvitations flips pending invitations past their expiry to expired.
func (r Repo) ExpireInvitations(ctx context.Context, tx *sql.Tx, workspaceID, now string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE invitations SET status='expired', updated_at=? WHERE workspace_id=? AND status='pending' AND expires_at<=?`,
		now, workspaceID, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
