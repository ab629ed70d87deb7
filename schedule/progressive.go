/*
progressive.go - Progressive (EMI-only) period calculator

PURPOSE:
  The progressive schedule type spreads principal as outstanding balance
  divided by the remaining period count, rounded to the currency's payment
  multiple, with the final period absorbing the remainder. The original
  left interest to a separate engine; here interest reuses the
  declining-balance sub-interval walk so progressive schedules still carry
  a meaningful interest column.
*/
package schedule

import "github.com/warp/loan-engine/money"

type progressiveCalculator struct{}

func (progressiveCalculator) computeForPeriod(in periodComputeInput) principalInterest {
	ts := in.ts
	interest := accrueDecliningInterest(in)

	result := principalInterest{
		principal:          money.Zero(ts.Currency),
		interest:           interest,
		interestDueToGrace: in.interestDueToGrace,
	}

	if ts.isInterestPaymentGracePeriod(in.periodNumber) {
		result.interestDueToGrace = result.interestDueToGrace.Add(interest)
		result.interest = money.Zero(ts.Currency)
	}
	if ts.isPrincipalGracePeriod(in.periodNumber) {
		return result
	}

	remaining := ts.actualRepayments - (in.periodNumber - 1)
	if remaining <= 0 {
		remaining = 1
	}
	if ts.isLastPeriod(in.periodNumber) {
		// Remainder absorber: the engine clamps the final principal to the
		// actual outstanding balance.
		result.principal = in.outstanding
	} else {
		result.principal = in.outstanding.DivInt(int64(remaining)).Round()
	}
	return result
}
