/*
Package schedule generates and regenerates loan repayment schedules.

PURPOSE:
  This package is the computation core of the platform: given a loan's
  strongly-typed terms, its charges, and a calendar bundle, it walks the
  loan period by period and produces a financially exact, auditable
  installment schedule. After transactions have been applied against a
  live loan it can regenerate only the unsettled tail, leaving paid
  history untouched.

KEY CONCEPTS IN THIS FILE (terms.go):
  - LoanTerms: the immutable generation input built by the caller
  - termsState: the engine's private working copy of the terms, which
    absorbs variation-driven rate/EMI changes during a single pass
  - Interest/amortization enums and grace configuration

DESIGN PRINCIPLES:
  1. Purity: no I/O, no clocks beyond an explicit as-of date, no globals
  2. Single-use state: every Generate call clones its inputs; nothing
     leaks across invocations
  3. Exact money: decimal arithmetic end to end, one rounding point per
     schedule line

SEE ALSO:
  - engine.go: the accumulation loop
  - variations.go: mid-schedule term exceptions
  - recalculation.go: tail regeneration and prepayment
*/
package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/money"
)

// =============================================================================
// ENUMS
// =============================================================================

// InterestMethod selects how interest is computed across the term.
type InterestMethod string

const (
	InterestFlat             InterestMethod = "flat"
	InterestDecliningBalance InterestMethod = "declining_balance"
)

// AmortizationMethod selects how principal is spread across periods.
type AmortizationMethod string

const (
	AmortizationEqualInstallment AmortizationMethod = "equal_installment"
	AmortizationEqualPrincipal   AmortizationMethod = "equal_principal"
)

// ScheduleType selects the generator family.
type ScheduleType string

const (
	ScheduleCumulative  ScheduleType = "cumulative"
	ScheduleProgressive ScheduleType = "progressive"
)

// CompoundingMethod states what unpaid amounts fold into the balance at
// compounding boundaries when interest recalculation is enabled.
type CompoundingMethod string

const (
	CompoundNone           CompoundingMethod = "none"
	CompoundInterest       CompoundingMethod = "interest"
	CompoundFee            CompoundingMethod = "fee"
	CompoundInterestAndFee CompoundingMethod = "interest_and_fee"
)

// EarlyPaymentStrategy states how an overpayment reshapes the remaining tail.
type EarlyPaymentStrategy string

const (
	EarlyPaymentReduceEMI          EarlyPaymentStrategy = "reduce_emi"
	EarlyPaymentReduceInstallments EarlyPaymentStrategy = "reduce_installments"
	EarlyPaymentRescheduleNext     EarlyPaymentStrategy = "reschedule_next"
)

// =============================================================================
// DISBURSEMENTS AND MEETING CALENDAR
// =============================================================================

// Disbursement is one tranche of a multi-disbursement loan.
type Disbursement struct {
	Date   Date
	Amount money.Money
}

// MeetingCalendar attaches repayments to a recurring meeting. Due dates are
// generated from the calendar's seed date and recurrence instead of plain
// interval arithmetic.
type MeetingCalendar struct {
	SeedDate  Date
	Frequency money.PeriodFrequency
	Interval  int
}

// =============================================================================
// LOAN TERMS - generation input
// =============================================================================

// LoanTerms is the complete configuration for one generation call. The
// caller builds it from persisted loan + product data; the engine clones it
// and never mutates the caller's copy.
type LoanTerms struct {
	Currency          money.Currency
	Principal         money.Money
	AnnualNominalRate decimal.Decimal // percentage, e.g. 12 for 12%

	InterestMethod InterestMethod
	Amortization   AmortizationMethod
	ScheduleType   ScheduleType

	RepaymentFrequency money.PeriodFrequency
	RepaymentEvery     int
	NumberOfRepayments int

	ExpectedDisbursementDate Date
	// RepaymentsStartingFrom anchors the first due date; zero means one
	// full interval after disbursement.
	RepaymentsStartingFrom Date

	// Grace. PrincipalGrace periods carry no principal due;
	// InterestPaymentGrace periods accrue interest but defer its payment;
	// InterestCalculationGrace periods charge no interest at all.
	PrincipalGrace           int
	InterestPaymentGrace     int
	InterestCalculationGrace int

	// Fixed overrides. Zero value means "not fixed".
	FixedEMI       money.Money
	FixedPrincipal money.Money

	// Multi-disbursement.
	MultiDisbursement  bool
	Disbursements      []Disbursement
	MaxOutstanding     money.Money // zero disables the ceiling check
	DownPaymentEnabled bool
	DownPaymentPercent decimal.Decimal // percentage of each tranche

	// Interest recalculation.
	InterestRecalculation bool
	Compounding           CompoundingMethod
	RestFrequency         money.PeriodFrequency
	RestEvery             int
	CompoundingFrequency  money.PeriodFrequency
	CompoundingEvery      int
	EarlyPayment          EarlyPaymentStrategy

	// Term variations, in applicable-date order.
	Variations []TermVariation

	Calendar *MeetingCalendar

	// FirstRepaymentOnHolidayAllowed skips calendar adjustment re-checks
	// after due-date variations shift a date.
	FirstRepaymentOnHolidayAllowed bool
}

// PrincipalToBeScheduled is the amount the schedule must amortize: the sum
// of tranches for a multi-disbursement loan, the approved principal otherwise.
func (t LoanTerms) PrincipalToBeScheduled() money.Money {
	if t.MultiDisbursement && len(t.Disbursements) > 0 {
		total := money.Zero(t.Currency)
		for _, d := range t.Disbursements {
			total = total.Add(d.Amount)
		}
		return total
	}
	return t.Principal
}

// =============================================================================
// TERMS STATE - the engine's working copy
// =============================================================================

// termsState is the evolving snapshot of the terms inside one generation
// call. Variation application updates this copy only; the original has
// in-place mutation of a shared terms object, which leaked state across
// calls. Cloning at the door removes that failure mode.
type termsState struct {
	LoanTerms

	annualRate       decimal.Decimal // current effective rate
	fixedEMI         money.Money     // current effective EMI (zero = derive)
	periodEMI        money.Money     // single-installment EMI override
	periodPrincipal  money.Money     // single-installment principal override
	fixedPrincipal   money.Money     // current equal-principal amount
	principalGrace   int
	interestGrace    int
	actualRepayments int // repayment count after EXTEND variations

	// Flat interest bookkeeping.
	totalInterestDue money.Money

	// Periods already accounted for by an EXTEND_REPAYMENT_PERIOD variation;
	// EMI recalculation spreads over the remainder only.
	excludedPeriods int
}

// newTermsState deep-copies the caller's terms into a single-use snapshot.
func newTermsState(t LoanTerms) *termsState {
	clone := t
	clone.Disbursements = append([]Disbursement(nil), t.Disbursements...)
	clone.Variations = append([]TermVariation(nil), t.Variations...)
	if t.Calendar != nil {
		cal := *t.Calendar
		clone.Calendar = &cal
	}

	ts := &termsState{
		LoanTerms:        clone,
		annualRate:       t.AnnualNominalRate,
		fixedEMI:         t.FixedEMI,
		fixedPrincipal:   t.FixedPrincipal,
		principalGrace:   t.PrincipalGrace,
		interestGrace:    t.InterestPaymentGrace,
		actualRepayments: t.NumberOfRepayments,
		totalInterestDue: money.Zero(t.Currency),
	}
	ts.periodEMI = money.Zero(t.Currency)
	ts.periodPrincipal = money.Zero(t.Currency)
	return ts
}

// periodicRate returns the fractional interest rate for one repayment period
// at the current effective annual rate.
func (ts *termsState) periodicRate() decimal.Decimal {
	return money.PeriodicRate(ts.annualRate, ts.RepaymentFrequency, ts.RepaymentEvery)
}

func (ts *termsState) isPrincipalGracePeriod(periodNumber int) bool {
	return periodNumber <= ts.principalGrace
}

func (ts *termsState) isInterestPaymentGracePeriod(periodNumber int) bool {
	return periodNumber <= ts.interestGrace
}

func (ts *termsState) isInterestFreePeriod(periodNumber int) bool {
	return periodNumber <= ts.InterestCalculationGrace
}

func (ts *termsState) isLastPeriod(periodNumber int) bool {
	return periodNumber == ts.actualRepayments
}

// currentEMI returns the EMI in force for the period: the single-installment
// override if set, else the loan-wide fixed EMI.
func (ts *termsState) currentEMI() money.Money {
	if !ts.periodEMI.IsZero() {
		return ts.periodEMI
	}
	return ts.fixedEMI
}

// clearPeriodOverrides drops single-installment EMI/principal overrides once
// their period has been emitted.
func (ts *termsState) clearPeriodOverrides() {
	ts.periodEMI = money.Zero(ts.Currency)
	ts.periodPrincipal = money.Zero(ts.Currency)
}

// recalculateFixedEMI rederives the equal-installment EMI from the current
// outstanding balance over the remaining period count. Called at generation
// start and whenever principal, rate, or term changes mid-schedule.
func (ts *termsState) recalculateFixedEMI(outstanding money.Money, periodNumber int) {
	if ts.Amortization != AmortizationEqualInstallment || ts.InterestMethod != InterestDecliningBalance {
		return
	}
	if !ts.FixedEMI.IsZero() {
		// Caller pinned the EMI; never derive over it.
		return
	}
	remaining := ts.actualRepayments - ts.excludedPeriods - (periodNumber - 1) - ts.graceShift(periodNumber)
	if remaining <= 0 {
		remaining = 1
	}
	ts.fixedEMI = money.PaymentPerPeriod(ts.periodicRate(), outstanding, remaining).Round()
}

// graceShift excludes remaining principal-grace periods from the EMI spread:
// grace periods repay no principal, so the annuity runs over the rest.
func (ts *termsState) graceShift(periodNumber int) int {
	if periodNumber > ts.principalGrace {
		return 0
	}
	return ts.principalGrace - (periodNumber - 1)
}

// recalculateFixedPrincipal rederives the equal-principal amount.
func (ts *termsState) recalculateFixedPrincipal(outstanding money.Money, periodNumber int) {
	if ts.Amortization != AmortizationEqualPrincipal {
		return
	}
	if !ts.FixedPrincipal.IsZero() {
		return
	}
	remaining := ts.actualRepayments - ts.excludedPeriods - (periodNumber - 1) - ts.graceShift(periodNumber)
	if remaining <= 0 {
		remaining = 1
	}
	ts.fixedPrincipal = outstanding.DivInt(int64(remaining)).Round()
}

// updateAmortization refreshes whichever amount the amortization method
// derives. Invoked after variations flag a recalculation.
func (ts *termsState) updateAmortization(outstanding money.Money, periodNumber int) {
	ts.fixedEMI = ts.FixedEMI
	ts.fixedPrincipal = ts.FixedPrincipal
	ts.recalculateFixedEMI(outstanding, periodNumber)
	ts.recalculateFixedPrincipal(outstanding, periodNumber)
}

// totalFlatInterest computes the flat-method interest owed over the full
// term: principal x annual rate x term-in-years, less interest-free grace.
func (ts *termsState) totalFlatInterest(principal money.Money) money.Money {
	periodsPerYear := decimal.NewFromInt(money.PeriodsInYear(ts.RepaymentFrequency))
	chargeablePeriods := ts.actualRepayments - ts.InterestCalculationGrace
	if chargeablePeriods < 0 {
		chargeablePeriods = 0
	}
	termInYears := decimal.NewFromInt(int64(chargeablePeriods * ts.RepaymentEvery)).Div(periodsPerYear)
	rate := ts.annualRate.Div(decimal.NewFromInt(100))
	return principal.MulDecimal(rate).MulDecimal(termInYears).Round()
}
