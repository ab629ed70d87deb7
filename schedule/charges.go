/*
charges.go - Fee and penalty application

PURPOSE:
  Charges attach fees/penalties to schedule rows. A charge is either flat
  or a percentage of principal, interest, or both; it applies once on its
  due date or to every installment in its window. Charges whose base is
  the total loan interest cannot be priced until the loop has finished, so
  they are applied in a second pass over the emitted rows.
*/
package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/money"
)

// =============================================================================
// CHARGE
// =============================================================================

// ChargeCalculation is the charge pricing rule.
type ChargeCalculation string

const (
	ChargeFlat                       ChargeCalculation = "flat"
	ChargePercentOfPrincipal         ChargeCalculation = "percent_of_principal"
	ChargePercentOfInterest          ChargeCalculation = "percent_of_interest"
	ChargePercentOfPrincipalInterest ChargeCalculation = "percent_of_principal_and_interest"
)

// ChargeTime states when a charge falls due.
type ChargeTime string

const (
	ChargeAtDisbursement  ChargeTime = "disbursement"
	ChargeOnSpecifiedDate ChargeTime = "specified_date"
	ChargePerInstallment  ChargeTime = "installment"
)

// Charge is one fee or penalty attached to the loan.
type Charge struct {
	Name        string
	Penalty     bool
	Calculation ChargeCalculation
	Time        ChargeTime

	// Amount for flat charges; percentage for the percent calculations.
	Amount  money.Money
	Percent decimal.Decimal

	// DueDate for specified-date charges.
	DueDate Date
}

// dueInWindow reports whether a specified-date charge falls in (start, end].
func (c Charge) dueInWindow(start, end Date) bool {
	return c.DueDate.After(start) && c.DueDate.OnOrBefore(end)
}

// dependsOnTotalInterest reports whether the charge base needs the finished
// loop totals.
func (c Charge) dependsOnTotalInterest() bool {
	return c.Calculation == ChargePercentOfInterest ||
		c.Calculation == ChargePercentOfPrincipalInterest
}

// amountFor prices the charge against a period's principal and interest.
func (c Charge) amountFor(principal, interest money.Money, currency money.Currency) money.Money {
	hundred := decimal.NewFromInt(100)
	switch c.Calculation {
	case ChargeFlat:
		return c.Amount
	case ChargePercentOfPrincipal:
		return principal.MulDecimal(c.Percent.Div(hundred)).Round()
	case ChargePercentOfInterest:
		return interest.MulDecimal(c.Percent.Div(hundred)).Round()
	case ChargePercentOfPrincipalInterest:
		return principal.Add(interest).MulDecimal(c.Percent.Div(hundred)).Round()
	default:
		return money.Zero(currency)
	}
}

// =============================================================================
// PER-PERIOD APPLICATION
// =============================================================================

// chargesDueAtDisbursement sums disbursement-time charges; they ride on the
// disbursement row rather than any repayment period.
func chargesDueAtDisbursement(charges []Charge, currency money.Currency) money.Money {
	total := money.Zero(currency)
	for _, c := range charges {
		if c.Time == ChargeAtDisbursement {
			total = total.Add(c.Amount)
		}
	}
	return total
}

// splitInterestDependentCharges separates charges that need final totals.
// The loop applies the rest per period; the dependent set is applied by
// applyFinalCharges once totals exist.
func splitInterestDependentCharges(charges []Charge) (perPeriod, deferred []Charge) {
	for _, c := range charges {
		if c.dependsOnTotalInterest() && c.Time == ChargeOnSpecifiedDate {
			deferred = append(deferred, c)
		} else {
			perPeriod = append(perPeriod, c)
		}
	}
	return perPeriod, deferred
}

// feeChargesForPeriod prices the fee charges due within the period window.
func feeChargesForPeriod(charges []Charge, start, end Date, principal, interest money.Money, currency money.Currency) money.Money {
	return chargesForPeriod(charges, false, start, end, principal, interest, currency)
}

// penaltyChargesForPeriod prices the penalty charges due within the window.
func penaltyChargesForPeriod(charges []Charge, start, end Date, principal, interest money.Money, currency money.Currency) money.Money {
	return chargesForPeriod(charges, true, start, end, principal, interest, currency)
}

func chargesForPeriod(charges []Charge, penalty bool, start, end Date, principal, interest money.Money, currency money.Currency) money.Money {
	total := money.Zero(currency)
	for _, c := range charges {
		if c.Penalty != penalty {
			continue
		}
		switch c.Time {
		case ChargePerInstallment:
			total = total.Add(c.amountFor(principal, interest, currency))
		case ChargeOnSpecifiedDate:
			if c.dueInWindow(start, end) {
				total = total.Add(c.amountFor(principal, interest, currency))
			}
		case ChargeAtDisbursement:
			// Handled on the disbursement row.
		}
	}
	return total
}

// applyFinalCharges prices interest-dependent charges against the finished
// totals and attaches them to the row containing their due date.
func applyFinalCharges(deferred []Charge, params *scheduleParams) {
	if len(deferred) == 0 {
		return
	}
	for _, c := range deferred {
		amount := c.amountFor(params.totalCumulativePrincipal, params.totalCumulativeInterest, params.currency)
		row := rowForDate(params.periods, c.DueDate)
		if row == nil {
			continue
		}
		if c.Penalty {
			row.PenaltyCharges = row.PenaltyCharges.Add(amount)
			params.totalPenaltyCharges = params.totalPenaltyCharges.Add(amount)
		} else {
			row.FeeCharges = row.FeeCharges.Add(amount)
			params.totalFeeCharges = params.totalFeeCharges.Add(amount)
		}
		row.TotalDue = row.TotalDue.Add(amount)
		params.totalRepaymentExpected = params.totalRepaymentExpected.Add(amount)
	}
}

// rowForDate finds the repayment row whose window contains the date; falls
// back to the last repayment row.
func rowForDate(periods []*SchedulePeriod, d Date) *SchedulePeriod {
	var last *SchedulePeriod
	for _, p := range periods {
		if p.Kind != PeriodRepayment {
			continue
		}
		last = p
		if d.After(p.FromDate) && d.OnOrBefore(p.DueDate) {
			return p
		}
	}
	return last
}
