/*
flat.go - Flat-interest period calculator

PURPOSE:
  Flat interest is priced once for the whole term (principal x annual rate
  x term in years, annualized by the repayment frequency) and spread
  evenly across the interest-bearing periods. The final period absorbs the
  rounding residue against the total-interest-due figure so the schedule
  sums exactly.
*/
package schedule

import "github.com/warp/loan-engine/money"

type flatCalculator struct{}

func (flatCalculator) computeForPeriod(in periodComputeInput) principalInterest {
	ts := in.ts
	result := principalInterest{
		principal:          money.Zero(ts.Currency),
		interest:           money.Zero(ts.Currency),
		interestDueToGrace: in.interestDueToGrace,
	}

	chargeable := ts.actualRepayments - ts.InterestCalculationGrace
	if chargeable > 0 && !ts.isInterestFreePeriod(in.periodNumber) {
		if ts.isLastPeriod(in.periodNumber) {
			// Absorb residue: whatever of the total has not yet been billed.
			result.interest = in.totalInterestDue.Sub(in.totalCumulativeInterest).ClampZero()
		} else {
			result.interest = in.totalInterestDue.DivInt(int64(chargeable)).Round()
		}
	}

	if ts.isInterestPaymentGracePeriod(in.periodNumber) {
		result.interestDueToGrace = result.interestDueToGrace.Add(result.interest)
		result.interest = money.Zero(ts.Currency)
	}

	if ts.isPrincipalGracePeriod(in.periodNumber) {
		return result
	}

	// Flat loans spread principal evenly regardless of amortization method;
	// a fixed-principal override still wins.
	principalPeriods := ts.actualRepayments - ts.principalGrace
	if principalPeriods <= 0 {
		principalPeriods = 1
	}
	switch {
	case !ts.periodPrincipal.IsZero():
		result.principal = ts.periodPrincipal
	case !ts.fixedPrincipal.IsZero():
		result.principal = ts.fixedPrincipal
	default:
		result.principal = ts.PrincipalToBeScheduled().DivInt(int64(principalPeriods)).Round()
	}
	return result
}
