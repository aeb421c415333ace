package engine

import (
	"context"
	"errors"
	"time"

	"questlog/internal/domain"
	"questlog/internal/eligibility"
	"questlog/internal/events"
	"questlog/internal/repo"
	"questlog/internal/report"
)

// todaysReport returns today's daily report for the user, nil when absent.
func (e Engine) todaysReport(ctx context.Context, workspaceID, userID string) (*domain.DailyReport, error) {
	rep, err := e.Repo.GetDailyReportByDay(ctx, workspaceID, userID, eligibility.DayKey(e.now()))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rep, nil
}

func (e Engine) thisWeeksReport(ctx context.Context, workspaceID, userID string) (*domain.WeeklyReport, error) {
	rep, err := e.Repo.GetWeeklyReportByWeek(ctx, workspaceID, userID, eligibility.WeekKey(e.now()))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rep, nil
}

// ResolveDaily reports whether the user may submit a daily report right now.
func (e Engine) ResolveDaily(ctx context.Context, workspaceID, userID string) (eligibility.Decision, error) {
	existing, err := e.todaysReport(ctx, workspaceID, userID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	return eligibility.Daily(e.now(), existing), nil
}

// ResolveEndOfDay reports whether the user may complete today's report.
func (e Engine) ResolveEndOfDay(ctx context.Context, workspaceID, userID string) (eligibility.Decision, error) {
	existing, err := e.todaysReport(ctx, workspaceID, userID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	return eligibility.EndOfDay(e.now(), existing), nil
}

// ResolveWeekly reports whether the user may submit a weekly report right now.
func (e Engine) ResolveWeekly(ctx context.Context, workspaceID, userID string) (eligibility.Decision, error) {
	existing, err := e.thisWeeksReport(ctx, workspaceID, userID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	return eligibility.Weekly(e.now(), existing, e.weeklyWindow()), nil
}

// SubmitDaily creates the morning report after the one-per-day gate.
func (e Engine) SubmitDaily(ctx context.Context, workspaceID string, in report.DailyInput) (domain.DailyReport, error) {
	now := e.now()
	existing, err := e.todaysReport(ctx, workspaceID, in.UserID)
	if err != nil {
		return domain.DailyReport{}, err
	}
	if d := eligibility.Daily(now, existing); !d.Allowed {
		return domain.DailyReport{}, &report.AlreadySubmittedError{Kind: "daily", Period: eligibility.DayKey(now)}
	}
	rep, err := report.NewDaily(in, e.rules(), now)
	if err != nil {
		return domain.DailyReport{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, rep.UserID, "", rep.CreatedAt); err != nil {
		return domain.DailyReport{}, err
	}
	if err := e.Repo.InsertDailyReport(ctx, tx, workspaceID, rep); err != nil {
		return domain.DailyReport{}, err
	}
	if err := e.Events.Append(ctx, tx, "report.daily.submitted", workspaceID, "daily_report", rep.ID, rep.UserID, events.EventPayload{
		"day":   rep.Day,
		"goals": len(rep.Goals),
	}); err != nil {
		return domain.DailyReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DailyReport{}, err
	}
	return rep, nil
}

// SubmitEndOfDay merges the evening update into today's report. The morning
// report must exist and must not already carry an evening half.
func (e Engine) SubmitEndOfDay(ctx context.Context, workspaceID, userID string, in report.EndOfDayInput) (domain.DailyReport, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer tx.Rollback()
	// The morning report is read inside the transaction so the gate and the
	// merge see the same row.
	var existing *domain.DailyReport
	rep, err := e.Repo.GetDailyReportByDayTx(ctx, tx, workspaceID, userID, eligibility.DayKey(now))
	if err == nil {
		existing = &rep
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.DailyReport{}, err
	}
	// ApplyEndOfDay re-checks both gates; resolving first keeps the decision
	// and the error taxonomy in one place.
	if d := eligibility.EndOfDay(now, existing); !d.Allowed {
		switch d.Reason {
		case eligibility.ReasonDailyReportRequired:
			return domain.DailyReport{}, &report.DependencyError{Missing: "daily report"}
		case eligibility.ReasonAlreadyCompleted:
			return domain.DailyReport{}, &report.AlreadyCompletedError{Day: existing.Day}
		}
	}
	merged, err := report.ApplyEndOfDay(existing, in, e.rules(), now)
	if err != nil {
		return domain.DailyReport{}, err
	}
	if err := e.Repo.UpdateDailyReport(ctx, tx, workspaceID, merged); err != nil {
		return domain.DailyReport{}, err
	}
	if err := e.Events.Append(ctx, tx, "report.daily.completed", workspaceID, "daily_report", merged.ID, userID, events.EventPayload{
		"day":             merged.Day,
		"completion_rate": report.CompletionRate(merged),
	}); err != nil {
		return domain.DailyReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DailyReport{}, err
	}
	return merged, nil
}

// SubmitWeekly creates the weekly reflection inside the eligibility window.
func (e Engine) SubmitWeekly(ctx context.Context, workspaceID string, in report.WeeklyInput) (domain.WeeklyReport, error) {
	now := e.now()
	existing, err := e.thisWeeksReport(ctx, workspaceID, in.UserID)
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	if d := eligibility.Weekly(now, existing, e.weeklyWindow()); !d.Allowed {
		if d.Reason == eligibility.ReasonAlreadySubmittedThisWeek {
			return domain.WeeklyReport{}, &report.AlreadySubmittedError{Kind: "weekly", Period: eligibility.WeekKey(now)}
		}
		next := now
		if d.NextEligible != nil {
			next = *d.NextEligible
		}
		return domain.WeeklyReport{}, &report.OutsideWindowError{NextEligible: next}
	}
	rep, err := report.NewWeekly(in, e.rules(), now)
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, rep.UserID, "", rep.CreatedAt); err != nil {
		return domain.WeeklyReport{}, err
	}
	if err := e.Repo.InsertWeeklyReport(ctx, tx, workspaceID, rep); err != nil {
		return domain.WeeklyReport{}, err
	}
	if err := e.Events.Append(ctx, tx, "report.weekly.submitted", workspaceID, "weekly_report", rep.ID, rep.UserID, events.EventPayload{
		"iso_week": rep.ISOWeek,
	}); err != nil {
		return domain.WeeklyReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WeeklyReport{}, err
	}
	return rep, nil
}

// ReportHistory lists a user's daily reports newest first.
func (e Engine) ReportHistory(ctx context.Context, workspaceID string, f repo.DailyReportFilters) ([]domain.DailyReport, error) {
	return e.Repo.ListDailyReports(ctx, workspaceID, f)
}

// recentReports loads the reports feeding the dashboard, bounded to the
// trailing days window.
func (e Engine) recentReports(ctx context.Context, workspaceID, userID string, days int, now time.Time) ([]domain.DailyReport, error) {
	from := now.AddDate(0, 0, -days)
	return e.Repo.ListDailyReports(ctx, workspaceID, repo.DailyReportFilters{
		UserID:  userID,
		FromDay: eligibility.DayKey(from),
	})
}
