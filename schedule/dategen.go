/*
dategen.go - Schedule date generation and calendar adjustment

PURPOSE:
  Produces each period's candidate due date from the loan's frequency or
  meeting calendar, then adjusts it against holidays and non-working days
  until the result is stable.

THE ADJUSTMENT FIXED POINT:
  A date moved off a non-working day can land on a holiday and vice versa,
  so the two phases repeat until a full pass changes nothing. The original
  implementation relied on configuration data happening to terminate; here
  a hard iteration ceiling turns a cyclic configuration into a typed error
  instead of an infinite loop.

SEE ALSO:
  - calendar.go: Holiday/WorkingDays contracts
  - engine.go: the caller of NextDueDate/AdjustDueDate per period
*/
package schedule

import "github.com/warp/loan-engine/money"

// maxAdjustIterations bounds the holiday/non-working-day fixed-point loop.
// Real configurations converge in one or two passes.
const maxAdjustIterations = 50

// AdjustedDateDetails is the result of calendar adjustment for one candidate.
type AdjustedDateDetails struct {
	// ChangedScheduleDate is the final due date after adjustment.
	ChangedScheduleDate Date

	// ChangedActualRepaymentDate is the unadjusted anchor the next period's
	// candidate is generated from, so periodic boundaries stay aligned.
	ChangedActualRepaymentDate Date

	// NextRepaymentPeriodDueDate is the candidate after the adjusted one,
	// used when a policy pushes past an entire period.
	NextRepaymentPeriodDueDate Date
}

// DateGenerator produces and adjusts schedule due dates.
type DateGenerator struct{}

// NextDueDate returns the candidate due date following lastDate.
//
// With a meeting calendar attached, the candidate advances along the
// calendar recurrence from its seed date. Otherwise interval x frequency is
// added to lastDate; the first period may be anchored by
// RepaymentsStartingFrom instead.
func (g DateGenerator) NextDueDate(lastDate Date, ts *termsState, isFirstPeriod bool) Date {
	if isFirstPeriod && !ts.RepaymentsStartingFrom.IsZero() {
		return ts.RepaymentsStartingFrom
	}
	if ts.Calendar != nil {
		return g.nextRecurrence(lastDate, ts.Calendar.SeedDate, ts.Calendar.Frequency, ts.Calendar.Interval)
	}
	next := advanceByFrequency(lastDate, ts.RepaymentFrequency, ts.RepaymentEvery)
	return snapToAnchorDay(next, repaymentAnchorDay(ts), ts.RepaymentFrequency)
}

// repaymentAnchorDay is the day-of-month the recurrence is pinned to: the
// first-repayment anchor when set, the disbursement day otherwise.
func repaymentAnchorDay(ts *termsState) int {
	if !ts.RepaymentsStartingFrom.IsZero() {
		return ts.RepaymentsStartingFrom.Day()
	}
	return ts.ExpectedDisbursementDate.Day()
}

// nextRecurrence walks the recurrence from its seed until it passes lastDate.
// Seeding from the calendar start (not lastDate) keeps boundaries aligned
// even after elapsed gaps.
func (g DateGenerator) nextRecurrence(lastDate, seed Date, frequency money.PeriodFrequency, interval int) Date {
	candidate := seed
	for !candidate.After(lastDate) {
		candidate = snapToAnchorDay(advanceByFrequency(candidate, frequency, interval), seed.Day(), frequency)
	}
	return candidate
}

// AdjustDueDate applies the non-working-day and holiday policies to a
// candidate until a fixed point is reached.
func (g DateGenerator) AdjustDueDate(candidate Date, ts *termsState, hd HolidayDetail) (AdjustedDateDetails, error) {
	details := AdjustedDateDetails{
		ChangedScheduleDate:        candidate,
		ChangedActualRepaymentDate: candidate,
	}

	for i := 0; i < maxAdjustIterations; i++ {
		before := details.ChangedScheduleDate
		g.applyWorkingDays(&details, ts, hd)
		g.applyHolidays(&details, ts, hd)
		if details.ChangedScheduleDate.Equal(before) {
			details.NextRepaymentPeriodDueDate = g.NextDueDate(details.ChangedActualRepaymentDate, ts, false)
			return details, nil
		}
	}
	return details, &CalendarCycleError{Candidate: candidate, Iterations: maxAdjustIterations}
}

// applyWorkingDays moves the schedule date off non-working days per policy.
func (g DateGenerator) applyWorkingDays(details *AdjustedDateDetails, ts *termsState, hd HolidayDetail) {
	for i := 0; i < maxAdjustIterations && !hd.IsWorkingDay(details.ChangedScheduleDate); i++ {
		switch hd.WorkingDays.Policy {
		case WorkingDaySameDay:
			return
		case WorkingDayMoveToNextRepayment:
			// Advance through whole repayment periods until one clears both
			// non-working days and holidays. The actual repayment anchor
			// moves with it so later candidates stay period-aligned.
			next := g.NextDueDate(details.ChangedActualRepaymentDate, ts, false)
			details.ChangedScheduleDate = next
			details.ChangedActualRepaymentDate = next
		case WorkingDayMoveToPreviousDay:
			details.ChangedScheduleDate = details.ChangedScheduleDate.AddDays(-1)
		default: // WorkingDayMoveToNextWorkingDay
			details.ChangedScheduleDate = details.ChangedScheduleDate.AddDays(1)
		}
	}
}

// applyHolidays moves the schedule date off holidays per each holiday's policy.
func (g DateGenerator) applyHolidays(details *AdjustedDateDetails, ts *termsState, hd HolidayDetail) {
	for i := 0; i < maxAdjustIterations; i++ {
		holiday := hd.HolidayFor(details.ChangedScheduleDate)
		if holiday == nil {
			return
		}
		switch holiday.Policy {
		case HolidayRescheduleToNextRepayment:
			// Push forward by repayment periods, not days, until past the
			// holiday window.
			next := g.NextDueDate(details.ChangedActualRepaymentDate, ts, false)
			details.ChangedScheduleDate = next
			details.ChangedActualRepaymentDate = next
		default: // HolidayRescheduleToDesignatedDay
			if holiday.RescheduledTo.IsZero() || holiday.Contains(holiday.RescheduledTo) {
				// Malformed target; step past the window and let the outer
				// fixed-point loop re-check.
				details.ChangedScheduleDate = holiday.To.AddDays(1)
			} else {
				details.ChangedScheduleDate = holiday.RescheduledTo
			}
		}
	}
}

// =============================================================================
// REST AND COMPOUNDING BOUNDARIES
// =============================================================================

// NextRestDate returns the first rest-frequency boundary strictly after the
// given date, seeded from the disbursement date.
func (g DateGenerator) NextRestDate(after Date, ts *termsState) Date {
	return g.nextBoundary(after, ts.ExpectedDisbursementDate, ts.RestFrequency, ts.RestEvery)
}

// NextCompoundingDate returns the first compounding boundary strictly after
// the given date.
func (g DateGenerator) NextCompoundingDate(after Date, ts *termsState) Date {
	return g.nextBoundary(after, ts.ExpectedDisbursementDate, ts.CompoundingFrequency, ts.CompoundingEvery)
}

func (g DateGenerator) nextBoundary(after, seed Date, frequency money.PeriodFrequency, interval int) Date {
	if interval <= 0 {
		interval = 1
	}
	boundary := seed
	for !boundary.After(after) {
		boundary = snapToAnchorDay(advanceByFrequency(boundary, frequency, interval), seed.Day(), frequency)
	}
	return boundary
}

// advanceByFrequency adds interval x frequency to a date.
func advanceByFrequency(d Date, frequency money.PeriodFrequency, interval int) Date {
	if interval <= 0 {
		interval = 1
	}
	switch frequency {
	case money.FrequencyDaily:
		return d.AddDays(interval)
	case money.FrequencyWeekly:
		return d.AddWeeks(interval)
	case money.FrequencyBiweekly:
		return d.AddWeeks(2 * interval)
	case money.FrequencyMonthly:
		return d.AddMonths(interval)
	case money.FrequencyQuarterly:
		return d.AddMonths(3 * interval)
	case money.FrequencySemiannual:
		return d.AddMonths(6 * interval)
	case money.FrequencyYearly:
		return d.AddYears(interval)
	default:
		return d.AddMonths(interval)
	}
}

// monthAnchored reports whether the frequency advances in calendar months,
// where a shorter month can clamp the recurrence's day away.
func monthAnchored(frequency money.PeriodFrequency) bool {
	switch frequency {
	case money.FrequencyDaily, money.FrequencyWeekly, money.FrequencyBiweekly:
		return false
	}
	return true
}

// snapToAnchorDay restores the recurrence's day-of-month after end-of-month
// clamping shortened it: February pulls a 31st-anchored schedule down to the
// 29th, and the snap puts March back on the 31st.
func snapToAnchorDay(d Date, anchorDay int, frequency money.PeriodFrequency) Date {
	if !monthAnchored(frequency) || anchorDay <= d.Day() {
		return d
	}
	if last := daysInMonth(d.Year(), d.Month()); anchorDay > last {
		anchorDay = last
	}
	return NewDate(d.Year(), d.Month(), anchorDay)
}
