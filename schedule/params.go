/*
params.go - The per-call accumulator threaded through the generation loop

PURPOSE:
  scheduleParams is the single mutable context of one generation call. It
  exists from the moment Generate is entered until the model is returned,
  and never beyond: retaining it across calls is a defect.

THE TWO BALANCES:
  outstandingBalance is the real balance after every disbursement and
  principal movement. outstandingBalanceAsPerRest is the balance interest
  is computed on; it lags the real balance until the next rest-frequency
  boundary is crossed, at which point pending principal movements are
  folded in. For rest == repayment period the two agree at every due date.

DATE-KEYED MAPS:
  principalPortions  principal movements effective at a date (early
                     payments, scheduled repayment principal)
  disbursements      tranches not yet applied to the balance
  latePayments       overdue balances awaiting compounding
  compounding        unpaid interest/fee amounts folding into the balance
  compoundingHistory snapshots per period start, for pre-closure replay
*/
package schedule

import (
	"sort"

	"github.com/warp/loan-engine/money"
)

// =============================================================================
// DATE-AMOUNT MAP
// =============================================================================

// dateAmountMap accumulates money by effective date.
type dateAmountMap map[Date]money.Money

// add merges an amount into the entry at the given date.
func (m dateAmountMap) add(at Date, amount money.Money) {
	if existing, ok := m[at]; ok {
		m[at] = existing.Add(amount)
	} else {
		m[at] = amount
	}
}

// sortedDates returns the keys in ascending order.
func (m dateAmountMap) sortedDates() []Date {
	dates := make([]Date, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// totalOnOrBefore sums entries with an effective date on or before the cut.
func (m dateAmountMap) totalOnOrBefore(cut Date, currency money.Currency) money.Money {
	total := money.Zero(currency)
	for d, amt := range m {
		if d.OnOrBefore(cut) {
			total = total.Add(amt)
		}
	}
	return total
}

func (m dateAmountMap) clone() dateAmountMap {
	out := make(dateAmountMap, len(m))
	for d, amt := range m {
		out[d] = amt
	}
	return out
}

// =============================================================================
// SCHEDULE PARAMS
// =============================================================================

// scheduleParams is the accumulator for one generation call.
type scheduleParams struct {
	currency money.Currency

	periodNumber      int // 1-based, counts every walked period
	installmentNumber int // 1-based, counts emitted repayment rows

	periodStartDate     Date
	actualRepaymentDate Date

	outstandingBalance          money.Money
	outstandingBalanceAsPerRest money.Money
	principalToBeScheduled      money.Money

	// restBalanceBase anchors the as-per-rest recomputation: the balance at
	// loop entry, from which dated principal portions are netted.
	restBalanceBase money.Money

	totalCumulativePrincipal money.Money
	totalCumulativeInterest  money.Money
	totalFeeCharges          money.Money
	totalPenaltyCharges      money.Money
	totalRepaymentExpected   money.Money

	// Interest accrued during interest-payment grace, awaiting a period
	// that may collect it.
	interestDueToGrace money.Money

	// Principal already covered by early payments, to be netted against
	// upcoming periods under the reschedule-next strategy.
	reducePrincipal money.Money

	loanTermInDays int

	principalPortions  dateAmountMap
	disbursements      dateAmountMap
	latePayments       dateAmountMap
	compounding        dateAmountMap
	compoundingHistory map[Date]dateAmountMap

	uncompounded money.Money

	// Pending transactions for interest recalculation; popped as consumed.
	recalcQueue []RecalculationDetail

	allocator PaymentAllocator

	installments []*Installment
	periods      []*SchedulePeriod

	// Pre-closure horizon: generation stops at this date when set.
	scheduleTillDate *Date

	// Partial regeneration: params were reconstructed from retained history.
	partial bool

	applyInterestRecalculation bool
}

func newScheduleParams(ts *termsState) *scheduleParams {
	currency := ts.Currency
	principal := ts.PrincipalToBeScheduled()
	return &scheduleParams{
		currency:                    currency,
		periodNumber:                1,
		installmentNumber:           1,
		periodStartDate:             ts.ExpectedDisbursementDate,
		actualRepaymentDate:         ts.ExpectedDisbursementDate,
		outstandingBalance:          principal,
		outstandingBalanceAsPerRest: principal,
		principalToBeScheduled:      principal,
		totalCumulativePrincipal:    money.Zero(currency),
		totalCumulativeInterest:     money.Zero(currency),
		totalFeeCharges:             money.Zero(currency),
		totalPenaltyCharges:         money.Zero(currency),
		totalRepaymentExpected:      money.Zero(currency),
		interestDueToGrace:          money.Zero(currency),
		reducePrincipal:             money.Zero(currency),
		uncompounded:                money.Zero(currency),
		principalPortions:           make(dateAmountMap),
		disbursements:               make(dateAmountMap),
		latePayments:                make(dateAmountMap),
		compounding:                 make(dateAmountMap),
		compoundingHistory:          make(map[Date]dateAmountMap),
		applyInterestRecalculation:  ts.InterestRecalculation,
	}
}

// zero is shorthand for a zero amount in the schedule currency.
func (p *scheduleParams) zero() money.Money { return money.Zero(p.currency) }

// reduceOutstanding applies a principal movement to the real balance.
func (p *scheduleParams) reduceOutstanding(amount money.Money) {
	p.outstandingBalance = p.outstandingBalance.Sub(amount)
}

// updateBalanceAsPerRest folds principal movements whose rest-effective
// date has been reached into the interest-calculation balance. Only entries
// on or before the period start count: a movement landing exactly on the
// upcoming due date takes effect for the following period, which is what
// makes the as-per-rest balance lag the real one. Disbursement tranches
// appear as negative entries and grow the balance.
func (p *scheduleParams) updateBalanceAsPerRest(periodStart Date) {
	applied := p.principalPortions.totalOnOrBefore(periodStart, p.currency)
	p.outstandingBalanceAsPerRest = p.restBalanceBase.Sub(applied).ClampZero()
}

// mergedPrincipalVariations combines principal portions, compounding entries
// and late-payment carries into one dated view for the declining-balance
// walk. Principal portions reduce the balance; compounding increases it.
func (p *scheduleParams) mergedPrincipalVariations() dateAmountMap {
	merged := make(dateAmountMap, len(p.principalPortions)+len(p.compounding)+len(p.latePayments))
	for d, amt := range p.principalPortions {
		merged.add(d, amt)
	}
	for d, amt := range p.compounding {
		merged.add(d, amt.Neg())
	}
	for d, amt := range p.latePayments {
		merged.add(d, amt.Neg())
	}
	return merged
}

// snapshotCompounding records the compounding map as of a period start so a
// later pre-closure recomputation can restore it.
func (p *scheduleParams) snapshotCompounding(periodStart Date) {
	p.compoundingHistory[periodStart] = p.compounding.clone()
}

// restoreCompounding rewinds the compounding map to a recorded snapshot.
func (p *scheduleParams) restoreCompounding(periodStart Date) {
	if snap, ok := p.compoundingHistory[periodStart]; ok {
		p.compounding = snap.clone()
	}
}

// popApplicableTransactions removes and returns queued transactions dated on
// or before the due date. Consumption is destructive: a detail is applied
// exactly once per generation call.
func (p *scheduleParams) popApplicableTransactions(dueDate Date) []RecalculationDetail {
	if !p.applyInterestRecalculation {
		return nil
	}
	var applicable []RecalculationDetail
	var remaining []RecalculationDetail
	for _, detail := range p.recalcQueue {
		if detail.Transaction.Date.OnOrBefore(dueDate) {
			applicable = append(applicable, detail)
		} else {
			remaining = append(remaining, detail)
		}
	}
	p.recalcQueue = remaining
	return applicable
}

// addLoanTermDays accumulates calendar days between period boundaries.
func (p *scheduleParams) addLoanTermDays(from, to Date) {
	p.loanTermInDays += DaysBetween(from, to)
}
