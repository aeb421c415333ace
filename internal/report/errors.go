package report

import (
	"fmt"
	"time"
)

// ValidationError marks structurally invalid input. Recoverable: the caller
// re-prompts the user.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DependencyError marks a missing prerequisite record, e.g. an end-of-day
// update without the morning report.
type DependencyError struct {
	Missing string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s required first", e.Missing)
}

// AlreadyCompletedError is the idempotency guard for end-of-day updates.
type AlreadyCompletedError struct {
	Day string
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("end of day already recorded for %s", e.Day)
}

// AlreadySubmittedError is the idempotency guard for report creation.
// Period is the day or ISO-week key the duplicate falls into.
type AlreadySubmittedError struct {
	Kind   string
	Period string
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("%s report already submitted for %s", e.Kind, e.Period)
}

// OutsideWindowError marks a temporally ineligible weekly submission and
// carries the computed next eligible date.
type OutsideWindowError struct {
	NextEligible time.Time
}

func (e *OutsideWindowError) Error() string {
	return fmt.Sprintf("weekly report only accepted during the eligibility window; next eligible %s", e.NextEligible.Format("2006-01-02"))
}
