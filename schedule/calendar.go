/*
calendar.go - Holiday and working-day collaborator contracts

PURPOSE:
  The engine does not resolve calendars itself; the caller hands over the
  complete holiday list and working-days mask before generation starts.
  This file defines that hand-over contract and the per-date predicates
  the date generator uses.

KEY CONCEPTS:
  - Holiday: a date range with a reschedule policy (shift to a designated
    day, or push to the next repayment date)
  - WorkingDays: a weekday mask plus a policy for repayments landing on a
    non-working day
  - HolidayDetail: the bundle passed into every generation call

SEE ALSO:
  - dategen.go: consumes these predicates in the adjustment loop
*/
package schedule

import "time"

// =============================================================================
// HOLIDAYS
// =============================================================================

// HolidayReschedulePolicy states where a repayment landing on a holiday moves.
type HolidayReschedulePolicy string

const (
	// HolidayRescheduleToDesignatedDay moves the repayment to the holiday's
	// RescheduledTo date.
	HolidayRescheduleToDesignatedDay HolidayReschedulePolicy = "designated_day"

	// HolidayRescheduleToNextRepayment pushes the repayment forward by whole
	// repayment periods until it clears the holiday.
	HolidayRescheduleToNextRepayment HolidayReschedulePolicy = "next_repayment"
)

// Holiday is a closed date range during which repayments cannot fall due.
type Holiday struct {
	From          Date
	To            Date
	Policy        HolidayReschedulePolicy
	RescheduledTo Date // target when Policy is designated_day
	Name          string
}

func (h Holiday) Contains(d Date) bool {
	return d.OnOrAfter(h.From) && d.OnOrBefore(h.To)
}

// =============================================================================
// WORKING DAYS
// =============================================================================

// WorkingDayPolicy states where a repayment landing on a non-working day moves.
type WorkingDayPolicy string

const (
	WorkingDaySameDay              WorkingDayPolicy = "same_day"
	WorkingDayMoveToNextWorkingDay WorkingDayPolicy = "next_working_day"
	WorkingDayMoveToNextRepayment  WorkingDayPolicy = "next_repayment_day"
	WorkingDayMoveToPreviousDay    WorkingDayPolicy = "previous_working_day"
)

// WorkingDays is the weekly mask of days repayments may fall due on.
type WorkingDays struct {
	Working [7]bool // indexed by time.Weekday
	Policy  WorkingDayPolicy

	// ExtendTermForDailyRepayments: daily loans push the whole term forward
	// past non-working days instead of doubling up payments.
	ExtendTermForDailyRepayments bool
}

// AllWeekdays returns a Monday-Friday working mask.
func AllWeekdays(policy WorkingDayPolicy) WorkingDays {
	var w WorkingDays
	for d := time.Monday; d <= time.Friday; d++ {
		w.Working[d] = true
	}
	w.Policy = policy
	return w
}

// EveryDay returns a mask where every day is a working day.
func EveryDay() WorkingDays {
	var w WorkingDays
	for d := time.Sunday; d <= time.Saturday; d++ {
		w.Working[d] = true
	}
	w.Policy = WorkingDaySameDay
	return w
}

func (w WorkingDays) IsWorkingDay(d Date) bool {
	return w.Working[d.Weekday()]
}

// =============================================================================
// HOLIDAY DETAIL - the bundle handed to every generation call
// =============================================================================

// HolidayDetail carries all calendar data the engine may consult. It is
// passed by value before generation begins; the engine performs no lookups
// of its own.
type HolidayDetail struct {
	Holidays        []Holiday
	WorkingDays     WorkingDays
	HolidaysEnabled bool
}

// NoHolidays is the detail used when calendar adjustment is disabled.
func NoHolidays() HolidayDetail {
	return HolidayDetail{WorkingDays: EveryDay()}
}

// HolidayFor returns the holiday containing the date, if any.
func (hd HolidayDetail) HolidayFor(d Date) *Holiday {
	if !hd.HolidaysEnabled {
		return nil
	}
	for i := range hd.Holidays {
		if hd.Holidays[i].Contains(d) {
			return &hd.Holidays[i]
		}
	}
	return nil
}

func (hd HolidayDetail) IsWorkingDay(d Date) bool {
	return hd.WorkingDays.IsWorkingDay(d)
}
