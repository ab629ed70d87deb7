/*
declining.go - Declining-balance period calculator

PURPOSE:
  Interest accrues on the balance in effect at each sub-interval of the
  period. Every dated principal movement (early payment, compounding
  injection, late-payment carry) inside the window splits the period; the
  walk accrues interest on the pre-movement balance for the elapsed
  fraction, applies the movement, and continues. Interest-rate variations
  effective mid-period swap the periodic rate at their date.

PRINCIPAL:
  equal_installment: EMI - period interest, EMI from the PMT closed form
  equal_principal:   the fixed principal amount in force
  Grace periods carry no principal; interest-payment grace defers the
  accrued interest into the running grace balance instead of the row.
*/
package schedule

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/money"
)

type decliningBalanceCalculator struct{}

func (decliningBalanceCalculator) computeForPeriod(in periodComputeInput) principalInterest {
	interest := accrueDecliningInterest(in)
	return splitPrincipalInterest(in, interest)
}

// accrueDecliningInterest walks the period's dated balance movements and
// accrues interest on the balance in effect across each sub-interval.
func accrueDecliningInterest(in periodComputeInput) money.Money {
	ts := in.ts
	if ts.isInterestFreePeriod(in.periodNumber) {
		return money.Zero(ts.Currency)
	}

	fullDays := DaysBetween(in.periodStart, in.dueDate)
	if fullDays <= 0 {
		return money.Zero(ts.Currency)
	}

	// Movement dates strictly inside the window, ascending. Rate changes
	// split the walk the same way a balance movement does.
	var movementDates []Date
	seen := make(map[Date]bool)
	for d := range in.principalVariations {
		if d.After(in.periodStart) && d.Before(in.dueDate) {
			movementDates = append(movementDates, d)
			seen[d] = true
		}
	}
	for _, rc := range in.rateChanges {
		d := rc.ApplicableFrom
		if d.After(in.periodStart) && d.Before(in.dueDate) && !seen[d] {
			movementDates = append(movementDates, d)
			seen[d] = true
		}
	}
	sort.Slice(movementDates, func(i, j int) bool { return movementDates[i].Before(movementDates[j]) })

	rate := ts.periodicRate()
	balance := in.outstanding
	interest := money.Zero(ts.Currency)
	cursor := in.periodStart

	for _, at := range movementDates {
		rate = effectiveRate(ts, in.rateChanges, cursor, rate)
		fraction := dayFraction(cursor, at, fullDays)
		interest = interest.Add(money.InterestForFraction(balance, rate, fraction))
		// Positive movements repay principal; negative ones (compounding,
		// late-payment carry) grow the balance interest accrues on. A
		// rate-change date carries no balance delta.
		if delta, ok := in.principalVariations[at]; ok {
			balance = balance.Sub(delta).ClampZero()
		}
		cursor = at
	}

	rate = effectiveRate(ts, in.rateChanges, cursor, rate)
	fraction := dayFraction(cursor, in.dueDate, fullDays)
	interest = interest.Add(money.InterestForFraction(balance, rate, fraction))
	return interest.Round()
}

// effectiveRate applies any rate change that took effect on or before the
// cursor, updating the terms snapshot so later periods start from the new
// rate.
func effectiveRate(ts *termsState, rateChanges []TermVariation, cursor Date, current decimal.Decimal) decimal.Decimal {
	rate := current
	for _, rc := range rateChanges {
		if rc.ApplicableFrom.OnOrBefore(cursor) {
			ts.annualRate = rc.DecimalValue
			rate = ts.periodicRate()
		}
	}
	return rate
}

func dayFraction(from, to Date, fullDays int) decimal.Decimal {
	return decimal.NewFromInt(int64(DaysBetween(from, to))).Div(decimal.NewFromInt(int64(fullDays)))
}

// splitPrincipalInterest derives the period's principal from the accrued
// interest per the amortization rule and threads grace bookkeeping.
func splitPrincipalInterest(in periodComputeInput, interest money.Money) principalInterest {
	ts := in.ts
	result := principalInterest{
		principal:          money.Zero(ts.Currency),
		interest:           interest,
		interestDueToGrace: in.interestDueToGrace,
	}

	if ts.isInterestPaymentGracePeriod(in.periodNumber) {
		// Interest accrues but its payment is deferred; the final period
		// collects the residue.
		result.interestDueToGrace = result.interestDueToGrace.Add(interest)
		result.interest = money.Zero(ts.Currency)
	}

	if ts.isPrincipalGracePeriod(in.periodNumber) {
		return result
	}

	switch ts.Amortization {
	case AmortizationEqualPrincipal:
		principal := ts.fixedPrincipal
		if !ts.periodPrincipal.IsZero() {
			principal = ts.periodPrincipal
		}
		result.principal = principal
	default: // AmortizationEqualInstallment
		emi := ts.currentEMI()
		result.principal = emi.Sub(result.interest).ClampZero()
	}

	return result
}
