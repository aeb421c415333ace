package repo

import (
	"context"
	"database/sql"

	"questlog/internal/domain"
)

func (r Repo) UpsertMembership(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memberships(workspace_id,actor_id,role,position,joined_at) VALUES (?,?,?,?,?)
ON CONFLICT(workspace_id,actor_id) DO UPDATE SET role=excluded.role, position=excluded.position`,
		m.WorkspaceID, m.ActorID, m.Role, nullable(m.Position), m.JoinedAt)
	return err
}

func scanMembership(scan func(dest ...any) error) (domain.Membership, error) {
	var m domain.Membership
	var position sql.NullString
	err := scan(&m.WorkspaceID, &m.ActorID, &m.Role, &position, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if position.Valid {
		m.Position = position.String
	}
	return m, nil
}

func (r Repo) GetMembership(ctx context.Context, workspaceID, actorID string) (domain.Membership, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT workspace_id,actor_id,role,position,joined_at FROM memberships WHERE workspace_id=? AND actor_id=?`, workspaceID, actorID)
	return scanMembership(row.Scan)
}

func (r Repo) GetMembershipTx(ctx context.Context, tx *sql.Tx, workspaceID, actorID string) (domain.Membership, error) {
	row := tx.QueryRowContext(ctx, `SELECT workspace_id,actor_id,role,position,joined_at FROM memberships WHERE workspace_id=? AND actor_id=?`, workspaceID, actorID)
	return scanMembership(row.Scan)
}

func (r Repo) ListMemberships(ctx context.Context, workspaceID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT workspace_id,actor_id,role,position,joined_at FROM memberships WHERE workspace_id=? ORDER BY joined_at ASC, actor_id ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

func (r Repo) DeleteMembership(ctx context.Context, workspaceID, actorID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM memberships WHERE workspace_id=? AND actor_id=?`, workspaceID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
