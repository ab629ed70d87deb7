/*
pmt.go - Payment-formula evaluator and period annualization

PURPOSE:
  Answers the two questions every amortization method asks:
  1. How many repayment periods fit in a year for a given frequency?
  2. What fixed payment amortizes a balance over N periods at rate r?

THE PMT FORMULA:
  payment = balance * r / (1 - (1+r)^-n)

  where r is the periodic interest rate (annual rate annualized by the
  repayment frequency and interval) and n the remaining period count.
  For r == 0 the formula degenerates to balance / n.

PRECISION:
  (1+r)^n is computed by iterated decimal multiplication, never float64.
  The result keeps full precision; callers round when the EMI lands on a
  schedule line.

SEE ALSO:
  - money.go: Money and rounding
  - schedule/declining.go: the equal-installment consumer
*/
package money

import "github.com/shopspring/decimal"

// =============================================================================
// PERIOD FREQUENCY - annualization
// =============================================================================

// PeriodFrequency is the unit of the repayment interval.
type PeriodFrequency string

const (
	FrequencyDaily      PeriodFrequency = "daily"
	FrequencyWeekly     PeriodFrequency = "weekly"
	FrequencyBiweekly   PeriodFrequency = "biweekly"
	FrequencyMonthly    PeriodFrequency = "monthly"
	FrequencyQuarterly  PeriodFrequency = "quarterly"
	FrequencySemiannual PeriodFrequency = "semiannual"
	FrequencyYearly     PeriodFrequency = "yearly"
)

// PeriodsInYear returns how many periods of the given frequency make a year.
func PeriodsInYear(frequency PeriodFrequency) int64 {
	switch frequency {
	case FrequencyDaily:
		return 365
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencySemiannual:
		return 2
	case FrequencyYearly:
		return 1
	default:
		return 12
	}
}

// PeriodicRate converts a nominal annual percentage rate into the fractional
// rate for one repayment period (frequency x interval).
//
// Example: 12% annual, monthly, interval 1 -> 0.01.
func PeriodicRate(annualPercentageRate decimal.Decimal, frequency PeriodFrequency, interval int) decimal.Decimal {
	periodsPerYear := decimal.NewFromInt(PeriodsInYear(frequency))
	return annualPercentageRate.
		Div(decimal.NewFromInt(100)).
		Div(periodsPerYear).
		Mul(decimal.NewFromInt(int64(interval)))
}

// =============================================================================
// PMT
// =============================================================================

// PaymentPerPeriod computes the fixed payment that amortizes outstanding
// over numberOfPeriods at the given periodic rate (the PMT closed form).
func PaymentPerPeriod(periodicRate decimal.Decimal, outstanding Money, numberOfPeriods int) Money {
	if numberOfPeriods <= 0 {
		return outstanding
	}
	if periodicRate.IsZero() {
		return outstanding.DivInt(int64(numberOfPeriods))
	}

	// (1+r)^n by iterated multiplication; n is small (loan term periods).
	compound := decimal.NewFromInt(1)
	onePlusRate := decimal.NewFromInt(1).Add(periodicRate)
	for i := 0; i < numberOfPeriods; i++ {
		compound = compound.Mul(onePlusRate)
	}

	// balance * r / (1 - (1+r)^-n)  ==  balance * r * c / (c - 1)
	numerator := outstanding.Amount().Mul(periodicRate).Mul(compound)
	denominator := compound.Sub(decimal.NewFromInt(1))
	return New(outstanding.Currency(), numerator.Div(denominator))
}

// InterestForFraction computes interest on a balance for a fraction of a
// period: balance * periodicRate * fraction. Used by the declining-balance
// calculator when a balance change splits a period into sub-intervals.
func InterestForFraction(balance Money, periodicRate decimal.Decimal, fraction decimal.Decimal) Money {
	return balance.MulDecimal(periodicRate).MulDecimal(fraction)
}
