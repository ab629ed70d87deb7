/*
variations.go - Loan term variation resolver

PURPOSE:
  Term variations are caller-supplied exceptions to the contractual
  schedule: insert or delete an installment, pin the EMI or principal,
  extend the term, add grace, change the interest rate. Each applies at
  one point of the generation loop, in applicable-date order, exactly once.

EXACTLY-ONCE BY CONSTRUCTION:
  The original tracked application with mutable `processed` booleans on
  shared variation objects, which could leak across generation calls. Here
  the engine builds a private queue per call and pops entries as it
  consumes them; a variation cannot be applied twice because it is no
  longer in the queue.

DISPATCH ORDER per period boundary:
  1. Due-date variations (may move the scheduled due date itself)
  2. Installment-specific interest-rate overrides
  3. The general queue, while the head's applicable date is on or before
     the current due date

SEE ALSO:
  - engine.go: invokes the resolver at every period boundary
  - recalculation.go: drives the same dispatch from an explicit exception list
*/
package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/money"
)

// =============================================================================
// TERM VARIATION
// =============================================================================

// VariationKind discriminates term variations.
type VariationKind string

const (
	VariationInsertInstallment           VariationKind = "insert_installment"
	VariationDeleteInstallment           VariationKind = "delete_installment"
	VariationEMIAmount                   VariationKind = "emi_amount"
	VariationPrincipalAmount             VariationKind = "principal_amount"
	VariationExtendRepaymentPeriod       VariationKind = "extend_repayment_period"
	VariationGraceOnPrincipal            VariationKind = "grace_on_principal"
	VariationGraceOnInterest             VariationKind = "grace_on_interest"
	VariationInterestRate                VariationKind = "interest_rate"
	VariationInterestRateFromInstallment VariationKind = "interest_rate_from_installment"
	VariationDueDate                     VariationKind = "due_date"
)

// TermVariation is one schedule exception. DecimalValue carries amounts,
// rates, counts; DateValue carries replacement dates where the kind needs one.
type TermVariation struct {
	Kind           VariationKind
	ApplicableFrom Date
	DecimalValue   decimal.Decimal
	DateValue      Date

	// SpecificToInstallment limits an EMI/principal variation to the single
	// installment due at ApplicableFrom instead of the whole remaining tail.
	SpecificToInstallment bool
}

// =============================================================================
// VARIATION QUEUE - single-use, pop-as-you-consume
// =============================================================================

// variationQueue is the engine's private, ordered work queue of variations.
// Built once per generation call; consuming an entry removes it.
type variationQueue struct {
	pending []TermVariation
}

func newVariationQueue(variations []TermVariation, kinds ...VariationKind) *variationQueue {
	q := &variationQueue{}
	for _, v := range variations {
		if len(kinds) == 0 || containsKind(kinds, v.Kind) {
			q.pending = append(q.pending, v)
		}
	}
	return q
}

func containsKind(kinds []VariationKind, k VariationKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// hasVariationOn reports whether the head of the queue applies on or before
// the given due date.
func (q *variationQueue) hasVariationOn(dueDate Date) bool {
	return len(q.pending) > 0 && q.pending[0].ApplicableFrom.OnOrBefore(dueDate)
}

func (q *variationQueue) pop() TermVariation {
	v := q.pending[0]
	q.pending = q.pending[1:]
	return v
}

func (q *variationQueue) isEmpty() bool { return len(q.pending) == 0 }

// dueDateVariationFor finds and consumes a DUE_DATE variation applying to
// the exact due date, if present anywhere in the queue.
func (q *variationQueue) dueDateVariationFor(dueDate Date) (TermVariation, bool) {
	for i, v := range q.pending {
		if v.Kind == VariationDueDate && v.ApplicableFrom.Equal(dueDate) {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			return v, true
		}
	}
	return TermVariation{}, false
}

// lastDueDateValue returns the latest DUE_DATE replacement in the source
// list matching the given date, without consuming anything. Used to project
// the loan end date before the loop starts.
func lastDueDateValue(variations []TermVariation, loanEndDate Date) (Date, bool) {
	for i := len(variations) - 1; i >= 0; i-- {
		v := variations[i]
		if v.Kind == VariationDueDate && v.ApplicableFrom.Equal(loanEndDate) {
			return v.DateValue, true
		}
	}
	return Date{}, false
}

// =============================================================================
// RESOLVER
// =============================================================================

// variationResult is what one boundary's resolution tells the engine.
type variationResult struct {
	skipPeriod         bool // DELETE_INSTALLMENT hit: emit no row
	recalculateAmounts bool // EMI/principal/term changed: rederive amortization
	dueDate            Date // possibly shifted

	// rateChanges are INTEREST_RATE variations effective strictly inside
	// the period: the old rate accrues up to the change date, the new rate
	// from it. Changes effective at the period start mutate the terms
	// directly instead.
	rateChanges []TermVariation
}

// applyTermVariations resolves all variations applicable at the current due
// date against the terms snapshot and accumulator. Returns the possibly
// shifted due date and whether the period is skipped entirely.
func applyTermVariations(
	ts *termsState,
	params *scheduleParams,
	queue *variationQueue,
	rateQueue *variationQueue,
	previousDueDate Date,
	dueDate Date,
) variationResult {
	result := variationResult{dueDate: dueDate}

	// (a) due-date-shifting variations first
	if v, ok := queue.dueDateVariationFor(dueDate); ok {
		result.dueDate = v.DateValue
		params.actualRepaymentDate = v.DateValue
	}

	// (b) installment-specific interest-rate overrides
	for rateQueue.hasVariationOn(result.dueDate) {
		v := rateQueue.pop()
		ts.annualRate = v.DecimalValue
		result.recalculateAmounts = true
	}

	// (c) the general queue
	for queue.hasVariationOn(result.dueDate) {
		v := queue.pop()
		switch v.Kind {
		case VariationInsertInstallment:
			// Rewind the anchor to the previous period and make the
			// variation's date the new due date: an extra row appears
			// between the contractual ones.
			params.actualRepaymentDate = previousDueDate
			result.dueDate = v.ApplicableFrom
			if !v.DecimalValue.IsZero() {
				if ts.Amortization == AmortizationEqualPrincipal {
					ts.periodPrincipal = money.New(ts.Currency, v.DecimalValue)
				} else {
					ts.periodEMI = money.New(ts.Currency, v.DecimalValue)
				}
			}

		case VariationDeleteInstallment:
			if v.ApplicableFrom.Equal(result.dueDate) {
				result.skipPeriod = true
			}

		case VariationEMIAmount:
			if v.SpecificToInstallment {
				ts.periodEMI = money.New(ts.Currency, v.DecimalValue)
			} else {
				ts.FixedEMI = money.New(ts.Currency, v.DecimalValue)
				ts.fixedEMI = ts.FixedEMI
				result.recalculateAmounts = true
			}

		case VariationPrincipalAmount:
			if v.SpecificToInstallment {
				ts.periodPrincipal = money.New(ts.Currency, v.DecimalValue)
			} else {
				ts.FixedPrincipal = money.New(ts.Currency, v.DecimalValue)
				ts.fixedPrincipal = ts.FixedPrincipal
				result.recalculateAmounts = true
			}

		case VariationExtendRepaymentPeriod:
			extra := int(v.DecimalValue.IntPart())
			ts.actualRepayments += extra
			// Totals up to here are settled; EMI recalculation spreads the
			// remainder over the extended tail only.
			ts.excludedPeriods = params.periodNumber - 1
			result.recalculateAmounts = true

		case VariationGraceOnPrincipal:
			ts.principalGrace = params.periodNumber - 1 + int(v.DecimalValue.IntPart())
			result.recalculateAmounts = true

		case VariationGraceOnInterest:
			ts.interestGrace = params.periodNumber - 1 + int(v.DecimalValue.IntPart())

		case VariationInterestRate:
			if v.ApplicableFrom.After(params.periodStartDate) {
				result.rateChanges = append(result.rateChanges, v)
			} else {
				ts.annualRate = v.DecimalValue
			}
			result.recalculateAmounts = true
		}
	}

	return result
}
