package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"questlog/internal/domain"
)

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r Repo) InsertDailyReport(ctx context.Context, tx *sql.Tx, workspaceID string, rep domain.DailyReport) error {
	goals, err := marshalJSON(rep.Goals)
	if err != nil {
		return err
	}
	expected, err := marshalJSON(rep.ExpectedActivities)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO daily_reports(id,workspace_id,user_id,day,wake_up_time,morning_mood,morning_routine,goals_json,expected_json,actual_json,evening_mood,insights,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, workspaceID, rep.UserID, rep.Day, rep.WakeUpTime, rep.MorningMood, nullable(rep.MorningRoutine),
		goals, expected, nil, nullableIntPtr(rep.EveningMood), nullable(rep.Insights), rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (r Repo) UpdateDailyReport(ctx context.Context, tx *sql.Tx, workspaceID string, rep domain.DailyReport) error {
	goals, err := marshalJSON(rep.Goals)
	if err != nil {
		return err
	}
	actual, err := marshalJSON(rep.ActualActivities)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE daily_reports SET goals_json=?, actual_json=?, evening_mood=?, insights=?, updated_at=? WHERE workspace_id=? AND id=?`,
		goals, actual, nullableIntPtr(rep.EveningMood), nullable(rep.Insights), rep.UpdatedAt, workspaceID, rep.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDailyReport(scan func(dest ...any) error) (domain.DailyReport, error) {
	var rep domain.DailyReport
	var routine, actual, insights sql.NullString
	var goals, expected string
	var eveningMood sql.NullInt64
	err := scan(&rep.ID, &rep.UserID, &rep.Day, &rep.WakeUpTime, &rep.MorningMood, &routine, &goals, &expected, &actual, &eveningMood, &insights, &rep.CreatedAt, &rep.UpdatedAt)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	if routine.Valid {
		rep.MorningRoutine = routine.String
	}
	if insights.Valid {
		rep.Insights = insights.String
	}
	if eveningMood.Valid {
		m := int(eveningMood.Int64)
		rep.EveningMood = &m
	}
	if err := json.Unmarshal([]byte(goals), &rep.Goals); err != nil {
		return rep, err
	}
	if err := json.Unmarshal([]byte(expected), &rep.ExpectedActivities); err != nil {
		return rep, err
	}
	if actual.Valid && actual.String != "" {
		if err := json.Unmarshal([]byte(actual.String), &rep.ActualActivities); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

const dailyReportColumns = `id,user_id,day,wake_up_time,morning_mood,morning_routine,goals_json,expected_json,actual_json,evening_mood,insights,created_at,updated_at`

// GetDailyReportByDay returns the report a user filed for a calendar day.
func (r Repo) GetDailyReportByDay(ctx context.Context, workspaceID, userID, day string) (domain.DailyReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dailyReportColumns+` FROM daily_reports WHERE workspace_id=? AND user_id=? AND day=?`, workspaceID, userID, day)
	return scanDailyReport(row.Scan)
}

func (r Repo) GetDailyReportByDayTx(ctx context.Context, tx *sql.Tx, workspaceID, userID, day string) (domain.DailyReport, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+dailyReportColumns+` FROM daily_reports WHERE workspace_id=? AND user_id=? AND day=?`, workspaceID, userID, day)
	return scanDailyReport(row.Scan)
}

func (r Repo) GetDailyReport(ctx context.Context, workspaceID, id string) (domain.DailyReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dailyReportColumns+` FROM daily_reports WHERE workspace_id=? AND id=?`, workspaceID, id)
	return scanDailyReport(row.Scan)
}

type DailyReportFilters struct {
	UserID          string
	FromDay         string
	ToDay           string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListDailyReports returns reports newest first with (created_at,id) cursor paging.
func (r Repo) ListDailyReports(ctx context.Context, workspaceID string, f DailyReportFilters) ([]domain.DailyReport, error) {
	clauses := []string{"workspace_id=?"}
	args := []any{workspaceID}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.FromDay != "" {
		clauses = append(clauses, "day>=?")
		args = append(args, f.FromDay)
	}
	if f.ToDay != "" {
		clauses = append(clauses, "day<=?")
		args = append(args, f.ToDay)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + dailyReportColumns + ` FROM daily_reports WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DailyReport
	for rows.Next() {
		rep, err := scanDailyReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, nil
}

func (r Repo) InsertWeeklyReport(ctx context.Context, tx *sql.Tx, workspaceID string, rep domain.WeeklyReport) error {
	payload, err := marshalJSON(rep)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO weekly_reports(id,workspace_id,user_id,iso_week,payload_json,created_at) VALUES (?,?,?,?,?,?)`,
		rep.ID, workspaceID, rep.UserID, rep.ISOWeek, payload, rep.CreatedAt)
	return err
}

func scanWeeklyReport(scan func(dest ...any) error) (domain.WeeklyReport, error) {
	var rep domain.WeeklyReport
	var payload string
	err := scan(&payload)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// GetWeeklyReportByWeek returns the report a user filed for an ISO week.
func (r Repo) GetWeeklyReportByWeek(ctx context.Context, workspaceID, userID, isoWeek string) (domain.WeeklyReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT payload_json FROM weekly_reports WHERE workspace_id=? AND user_id=? AND iso_week=?`, workspaceID, userID, isoWeek)
	return scanWeeklyReport(row.Scan)
}

func (r Repo) ListWeeklyReports(ctx context.Context, workspaceID, userID string, limit int) ([]domain.WeeklyReport, error) {
	clauses := []string{"workspace_id=?"}
	args := []any{workspaceID}
	if userID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, userID)
	}
	query := `SELECT payload_json FROM weekly_reports WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WeeklyReport
	for rows.Next() {
		rep, err := scanWeeklyReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, nil
}
