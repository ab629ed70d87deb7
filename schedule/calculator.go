/*
calculator.go - Period interest/principal strategy selection

PURPOSE:
  One strategy per (schedule type, interest method) pair answers: given
  the accumulated state for a period, what principal/interest split falls
  due? The engine selects the strategy once per generation call from a
  registry; the original selected by subclassing a generator per
  combination.

STRATEGIES:
  (cumulative, declining_balance)  -> decliningBalanceCalculator
  (cumulative, flat)               -> flatCalculator
  (progressive, declining_balance) -> progressiveCalculator
  (progressive, flat)              -> flatCalculator

SEE ALSO:
  - declining.go, flat.go, progressive.go: the implementations
*/
package schedule

import "github.com/warp/loan-engine/money"

// =============================================================================
// STRATEGY CONTRACT
// =============================================================================

// principalInterest is a period's computed split. interestDueToGrace is the
// running interest deferred by interest-payment grace, threaded back into
// the accumulator.
type principalInterest struct {
	principal          money.Money
	interest           money.Money
	interestDueToGrace money.Money
}

// periodComputeInput carries everything a strategy may consult for one
// period. All amounts are in the schedule currency.
type periodComputeInput struct {
	ts           *termsState
	periodNumber int

	periodStart Date
	dueDate     Date

	// outstanding is the balance as per rest: what interest accrues on.
	outstanding money.Money

	totalCumulativePrincipal money.Money
	totalCumulativeInterest  money.Money
	totalInterestDue         money.Money // flat method only
	interestDueToGrace       money.Money

	// principalVariations: dated balance deltas inside the period window.
	// Positive entries reduce the balance (payments), negative entries
	// increase it (compounding injections, late-payment carry).
	principalVariations dateAmountMap

	// rateChanges: interest-rate variations taking effect mid-period,
	// applied at their effective date during the sub-interval walk.
	rateChanges []TermVariation
}

// periodCalculator computes one period's principal/interest split.
type periodCalculator interface {
	computeForPeriod(in periodComputeInput) principalInterest
}

// =============================================================================
// REGISTRY
// =============================================================================

type calculatorKey struct {
	schedule ScheduleType
	interest InterestMethod
}

type calculatorRegistry map[calculatorKey]periodCalculator

func defaultCalculatorRegistry() calculatorRegistry {
	return calculatorRegistry{
		{ScheduleCumulative, InterestDecliningBalance}:  decliningBalanceCalculator{},
		{ScheduleCumulative, InterestFlat}:              flatCalculator{},
		{ScheduleProgressive, InterestDecliningBalance}: progressiveCalculator{},
		{ScheduleProgressive, InterestFlat}:             flatCalculator{},
	}
}

// calculatorFor selects the strategy for the given terms; falls back to the
// cumulative generator for the interest method.
func (r calculatorRegistry) calculatorFor(ts *termsState) periodCalculator {
	if calc, ok := r[calculatorKey{ts.ScheduleType, ts.InterestMethod}]; ok {
		return calc
	}
	return r[calculatorKey{ScheduleCumulative, ts.InterestMethod}]
}
