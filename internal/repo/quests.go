package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"questlog/internal/domain"
)

func (r Repo) InsertQuestTask(ctx context.Context, tx *sql.Tx, t domain.QuestTask) error {
	positions, err := marshalJSON(t.Positions)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO quest_tasks(id,workspace_id,title,category,reward,positions,is_global,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkspaceID, t.Title, nullable(t.Category), t.Reward, positions, boolInt(t.Global), t.CreatedAt)
	return err
}

func scanQuestTask(scan func(dest ...any) error) (domain.QuestTask, error) {
	var t domain.QuestTask
	var category, positions sql.NullString
	var global int
	err := scan(&t.ID, &t.WorkspaceID, &t.Title, &category, &t.Reward, &positions, &global, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if category.Valid {
		t.Category = category.String
	}
	if positions.Valid && positions.String != "" {
		if err := json.Unmarshal([]byte(positions.String), &t.Positions); err != nil {
			return t, err
		}
	}
	t.Global = global != 0
	return t, nil
}

const questTaskColumns = `id,workspace_id,title,category,reward,positions,is_global,created_at`

func (r Repo) GetQuestTask(ctx context.Context, workspaceID, id string) (domain.QuestTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+questTaskColumns+` FROM quest_tasks WHERE workspace_id=? AND id=?`, workspaceID, id)
	return scanQuestTask(row.Scan)
}

func (r Repo) GetQuestTaskTx(ctx context.Context, tx *sql.Tx, workspaceID, id string) (domain.QuestTask, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+questTaskColumns+` FROM quest_tasks WHERE workspace_id=? AND id=?`, workspaceID, id)
	return scanQuestTask(row.Scan)
}

func (r Repo) ListQuestTasks(ctx context.Context, workspaceID string, globalOnly bool) ([]domain.QuestTask, error) {
	clauses := []string{"workspace_id=?"}
	args := []any{workspaceID}
	if globalOnly {
		clauses = append(clauses, "is_global=1")
	}
	query := `SELECT ` + questTaskColumns + ` FROM quest_tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QuestTask
	for rows.Next() {
		t, err := scanQuestTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) ListGlobalQuestTasksTx(ctx context.Context, tx *sql.Tx, workspaceID string) ([]domain.QuestTask, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+questTaskColumns+` FROM quest_tasks WHERE workspace_id=? AND is_global=1`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QuestTask
	for rows.Next() {
		t, err := scanQuestTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.TaskAssignment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_assignments(workspace_id,user_id,task_id,status,revoked_at,assigned_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		a.WorkspaceID, a.UserID, a.TaskID, a.Status, nullableStringPtr(a.RevokedAt), a.AssignedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAssignmentStatus(ctx context.Context, tx *sql.Tx, workspaceID, userID, taskID, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE task_assignments SET status=?, updated_at=? WHERE workspace_id=? AND user_id=? AND task_id=?`,
		status, updatedAt, workspaceID, userID, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) RevokeAssignment(ctx context.Context, tx *sql.Tx, workspaceID, userID, taskID, revokedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE task_assignments SET revoked_at=?, updated_at=? WHERE workspace_id=? AND user_id=? AND task_id=? AND revoked_at IS NULL`,
		revokedAt, revokedAt, workspaceID, userID, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAssignment(scan func(dest ...any) error) (domain.TaskAssignment, error) {
	var a domain.TaskAssignment
	var revokedAt sql.NullString
	err := scan(&a.WorkspaceID, &a.UserID, &a.TaskID, &a.Status, &revokedAt, &a.AssignedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if revokedAt.Valid {
		a.RevokedAt = &revokedAt.String
	}
	return a, nil
}

const assignmentColumns = `workspace_id,user_id,task_id,status,revoked_at,assigned_at,updated_at`

func (r Repo) GetAssignment(ctx context.Context, workspaceID, userID, taskID string) (domain.TaskAssignment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM task_assignments WHERE workspace_id=? AND user_id=? AND task_id=?`, workspaceID, userID, taskID)
	return scanAssignment(row.Scan)
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, workspaceID, userID, taskID string) (domain.TaskAssignment, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM task_assignments WHERE workspace_id=? AND user_id=? AND task_id=?`, workspaceID, userID, taskID)
	return scanAssignment(row.Scan)
}

// ListAssignments returns a user's assignments, optionally including revoked ones.
func (r Repo) ListAssignments(ctx context.Context, workspaceID, userID string, includeRevoked bool) ([]domain.TaskAssignment, error) {
	clauses := []string{"workspace_id=?", "user_id=?"}
	args := []any{workspaceID, userID}
	if !includeRevoked {
		clauses = append(clauses, "revoked_at IS NULL")
	}
	query := `SELECT ` + assignmentColumns + ` FROM task_assignments WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY assigned_at DESC, task_id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskAssignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) InsertTaskComment(ctx context.Context, tx *sql.Tx, workspaceID, userID, taskID string, c domain.TaskComment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_comments(id,workspace_id,user_id,task_id,author_id,text,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, workspaceID, userID, taskID, c.AuthorID, c.Text, c.CreatedAt)
	return err
}

// ListTaskComments returns an assignment's comments in append order. The seq
// column carries the order; created_at is second-resolution and UUIDs do not
// sort chronologically.
func (r Repo) ListTaskComments(ctx context.Context, workspaceID, userID, taskID string) ([]domain.TaskComment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,author_id,text,created_at FROM task_comments WHERE workspace_id=? AND user_id=? AND task_id=? ORDER BY seq ASC`, workspaceID, userID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskComment
	for rows.Next() {
		var c domain.TaskComment
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
