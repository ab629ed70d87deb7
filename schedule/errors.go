/*
errors.go - Centralized error types for the schedule engine

PURPOSE:
  All engine error types in one place. Callers branch on sentinels with
  errors.Is and unwrap structured errors for display amounts.

ERROR CATEGORIES:
  1. Configuration errors - terms that can never produce a valid schedule
  2. Calendar errors - holiday/working-day configurations that cannot
     reach a fixed point
  3. Generation errors - states the accumulation loop must refuse

USAGE:
  if errors.Is(err, schedule.ErrEMIBelowInterest) {
      var detail *schedule.EMIBelowInterestError
      errors.As(err, &detail)
      // render detail.Interest / detail.EMI to the user
  }
*/
package schedule

import (
	"errors"
	"fmt"

	"github.com/warp/loan-engine/money"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEMIBelowInterest is returned when a fixed EMI cannot cover the
	// interest computed for a period.
	ErrEMIBelowInterest = errors.New("EMI amount must exceed period interest")

	// ErrCalendarCycle is returned when holiday/non-working-day adjustment
	// fails to reach a fixed point within the iteration ceiling.
	ErrCalendarCycle = errors.New("cyclic holiday or working-day configuration")

	// ErrDueDateBeforePeriodStart indicates a malformed term-variation
	// sequence produced a due date earlier than its period start.
	ErrDueDateBeforePeriodStart = errors.New("due date before period start")

	// ErrOutstandingExceeded is returned when a disbursement tranche would
	// push the outstanding balance above the configured maximum.
	ErrOutstandingExceeded = errors.New("outstanding balance exceeds approved maximum")

	// ErrScheduleRunaway is returned when the accumulation loop exceeds the
	// period ceiling without settling the balance.
	ErrScheduleRunaway = errors.New("schedule generation exceeded period ceiling")
)

// =============================================================================
// STRUCTURED ERRORS - Carry amounts and dates for caller display
// =============================================================================

// EMIBelowInterestError carries the offending EMI and the computed interest.
type EMIBelowInterestError struct {
	EMI      money.Money
	Interest money.Money
	DueDate  Date
}

func (e *EMIBelowInterestError) Error() string {
	return fmt.Sprintf("EMI %s must exceed interest %s due %s", e.EMI, e.Interest, e.DueDate)
}

func (e *EMIBelowInterestError) Unwrap() error { return ErrEMIBelowInterest }

// OutstandingExceededError carries the balance a tranche would have created.
type OutstandingExceededError struct {
	Outstanding money.Money
	Maximum     money.Money
	OnDate      Date
}

func (e *OutstandingExceededError) Error() string {
	return fmt.Sprintf("outstanding %s on %s exceeds approved maximum %s", e.Outstanding, e.OnDate, e.Maximum)
}

func (e *OutstandingExceededError) Unwrap() error { return ErrOutstandingExceeded }

// CalendarCycleError reports the date at which adjustment stopped converging.
type CalendarCycleError struct {
	Candidate  Date
	Iterations int
}

func (e *CalendarCycleError) Error() string {
	return fmt.Sprintf("calendar adjustment did not converge after %d iterations at %s", e.Iterations, e.Candidate)
}

func (e *CalendarCycleError) Unwrap() error { return ErrCalendarCycle }

// ScheduleDateError reports a due date that fell before its period start.
type ScheduleDateError struct {
	DueDate     Date
	PeriodStart Date
}

func (e *ScheduleDateError) Error() string {
	return fmt.Sprintf("due date %s is before period start %s", e.DueDate, e.PeriodStart)
}

func (e *ScheduleDateError) Unwrap() error { return ErrDueDateBeforePeriodStart }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigurationError reports whether the error stems from caller-supplied
// terms rather than an engine defect. The API layer maps these to 4xx.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrEMIBelowInterest) ||
		errors.Is(err, ErrOutstandingExceeded) ||
		errors.Is(err, ErrDueDateBeforePeriodStart) ||
		errors.Is(err, ErrCalendarCycle)
}
