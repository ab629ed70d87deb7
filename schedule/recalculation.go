/*
recalculation.go - Partial regeneration and prepayment

PURPOSE:
  After transactions have been applied to a live loan, the schedule tail
  must be regenerated without disturbing settled history. This file
  rebuilds the accumulator exactly as the forward engine would have left
  it at the cut point, then re-enters the shared generate loop for the
  remaining periods only.

THE CUT POINT:
  Installments due strictly before rescheduleFrom are retained. If the
  last retained installment was itself injected by recalculation, or
  carries no genuine interest, the cut moves back until a known-good
  interest baseline is found: continuation from a synthetic period would
  compound an approximation.

SEE ALSO:
  - engine.go: the shared loop this re-enters
  - allocation.go: the replay collaborator
*/
package schedule

import "github.com/warp/loan-engine/money"

// RescheduleTail regenerates the schedule from rescheduleFrom onward,
// retaining installments already settled before that date. transactions is
// the loan's applied payment history, in date order. A non-nil scheduleTill
// truncates generation at that date (pre-closure horizon).
func (g *Generator) RescheduleTail(
	terms LoanTerms,
	installments []*Installment,
	transactions []Transaction,
	charges []Charge,
	holidays HolidayDetail,
	rescheduleFrom Date,
	scheduleTill *Date,
) (*ScheduleUpdate, error) {
	ts := newTermsState(terms)
	params := newScheduleParams(ts)
	params.partial = true
	params.allocator = OrderedAllocator{}
	params.scheduleTillDate = scheduleTill

	retained := g.retainInstallments(ts, cloneInstallments(installments), rescheduleFrom)
	params.installments = retained

	// Replay pre-cut transactions against retained history so the maps and
	// balances match what the forward engine produced. Later transactions
	// queue for consumption inside the loop.
	var replay, pending []Transaction
	for _, tx := range transactions {
		if tx.Date.Before(rescheduleFrom) {
			replay = append(replay, tx)
		} else {
			pending = append(pending, tx)
		}
	}

	g.reconstructParams(ts, params, retained)
	g.applyVariationsBeforeCut(ts, rescheduleFrom)

	for _, tx := range replay {
		g.applyTransaction(ts, params, tx)
	}
	g.carryLatePayments(ts, params, retained)

	for _, tx := range pending {
		params.recalcQueue = append(params.recalcQueue, RecalculationDetail{Transaction: tx})
	}

	model, err := g.generate(ts, charges, holidays, params)
	if err != nil {
		return nil, err
	}

	combined := append([]*Installment(nil), retained...)
	combined = append(combined, model.Installments()...)

	return &ScheduleUpdate{
		Model:                model,
		RetainedInstallments: retained,
		Installments:         combined,
	}, nil
}

// CalculatePrepaymentAmount computes the full payoff figure as of onDate:
// the rest-boundary-adjusted horizon is generated and every not-fully-paid
// installment's outstanding components are summed into a synthetic payoff
// installment.
func (g *Generator) CalculatePrepaymentAmount(
	terms LoanTerms,
	installments []*Installment,
	transactions []Transaction,
	charges []Charge,
	holidays HolidayDetail,
	onDate Date,
) (*Installment, error) {
	ts := newTermsState(terms)
	till := onDate
	if ts.InterestRecalculation && ts.RestFrequency != "" {
		till = g.restEffectiveDate(ts, onDate)
	}

	update, err := g.RescheduleTail(terms, installments, transactions, charges, holidays, onDate, &till)
	if err != nil {
		return nil, err
	}

	payoff := &Installment{
		DueDate:        onDate,
		Principal:      money.Zero(terms.Currency),
		Interest:       money.Zero(terms.Currency),
		Fees:           money.Zero(terms.Currency),
		Penalties:      money.Zero(terms.Currency),
		PrincipalPaid:  money.Zero(terms.Currency),
		InterestPaid:   money.Zero(terms.Currency),
		FeesPaid:       money.Zero(terms.Currency),
		PenaltiesPaid:  money.Zero(terms.Currency),
		InterestWaived: money.Zero(terms.Currency),
	}
	for _, inst := range update.Installments {
		if inst.IsFullyPaid() {
			continue
		}
		payoff.Principal = payoff.Principal.Add(inst.PrincipalOutstanding())
		payoff.Interest = payoff.Interest.Add(inst.InterestOutstanding())
		payoff.Fees = payoff.Fees.Add(inst.FeesOutstanding())
		payoff.Penalties = payoff.Penalties.Add(inst.PenaltiesOutstanding())
	}
	return payoff, nil
}

// =============================================================================
// RETAINED HISTORY
// =============================================================================

// retainInstallments partitions off the settled history and trims it back
// to a genuine interest baseline.
func (g *Generator) retainInstallments(ts *termsState, installments []*Installment, rescheduleFrom Date) []*Installment {
	var retained []*Installment
	for _, inst := range installments {
		if inst.DueDate.Before(rescheduleFrom) {
			retained = append(retained, inst)
		}
	}

	// Trim recalculation-injected rows and rows with no genuine interest:
	// continuation needs a known-good interest baseline. Down-payment rows
	// never carry interest and are a valid baseline as they stand.
	for len(retained) > 0 {
		last := retained[len(retained)-1]
		syntheticInterest := last.RecalculatedInterest ||
			(!last.DownPayment && last.Interest.IsZero() &&
				last.Number > ts.InterestCalculationGrace && !ts.isInterestPaymentGracePeriod(last.Number))
		if !syntheticInterest {
			break
		}
		retained = retained[:len(retained)-1]
	}
	return retained
}

// reconstructParams seeds the accumulator from retained history: totals,
// counters, balances, and the dated principal portions the as-per-rest
// balance is computed from.
func (g *Generator) reconstructParams(ts *termsState, params *scheduleParams, retained []*Installment) {
	params.restBalanceBase = params.principalToBeScheduled

	settled := params.zero()
	for _, inst := range retained {
		settled = settled.Add(inst.Principal)
		params.totalCumulativePrincipal = params.totalCumulativePrincipal.Add(inst.Principal)
		params.totalCumulativeInterest = params.totalCumulativeInterest.Add(inst.Interest)
		params.totalFeeCharges = params.totalFeeCharges.Add(inst.Fees)
		params.totalPenaltyCharges = params.totalPenaltyCharges.Add(inst.Penalties)
		params.totalRepaymentExpected = params.totalRepaymentExpected.
			Add(inst.Principal).Add(inst.Interest).Add(inst.Fees).Add(inst.Penalties)

		if params.applyInterestRecalculation {
			params.principalPortions.add(g.restEffectiveDate(ts, inst.DueDate), inst.Principal)
		}
		params.addLoanTermDays(inst.FromDate, inst.DueDate)
	}
	params.outstandingBalance = params.principalToBeScheduled.Sub(settled)

	if n := len(retained); n > 0 {
		last := retained[n-1]
		params.periodStartDate = last.DueDate
		params.actualRepaymentDate = last.DueDate
		params.installmentNumber = last.Number + 1
		// Down-payment rows consume installment numbers but no repayment
		// period; only genuine repayment rows advance the period cursor.
		repayments := 0
		for _, inst := range retained {
			if !inst.DownPayment {
				repayments++
			}
		}
		params.periodNumber = repayments + 1
	}
}

// applyVariationsBeforeCut consumes variations whose applicable date falls
// before the cut: their effect on the terms is already part of retained
// history, so only the terms state changes and the tail queue keeps the
// rest. Follows the same dispatch as the in-loop resolver.
func (g *Generator) applyVariationsBeforeCut(ts *termsState, cut Date) {
	var tail []TermVariation
	for _, v := range ts.Variations {
		if v.ApplicableFrom.OnOrAfter(cut) {
			tail = append(tail, v)
			continue
		}
		switch v.Kind {
		case VariationInterestRate, VariationInterestRateFromInstallment:
			ts.annualRate = v.DecimalValue
		case VariationEMIAmount:
			if !v.SpecificToInstallment {
				ts.FixedEMI = money.New(ts.Currency, v.DecimalValue)
			}
		case VariationPrincipalAmount:
			if !v.SpecificToInstallment {
				ts.FixedPrincipal = money.New(ts.Currency, v.DecimalValue)
			}
		case VariationExtendRepaymentPeriod:
			ts.actualRepayments += int(v.DecimalValue.IntPart())
		case VariationGraceOnPrincipal:
			ts.principalGrace = int(v.DecimalValue.IntPart())
		case VariationGraceOnInterest:
			ts.interestGrace = int(v.DecimalValue.IntPart())
		default:
			// Insert/delete/due-date variations shaped rows that are already
			// retained; nothing to replay.
		}
	}
	ts.Variations = tail
}

// carryLatePayments records overdue unpaid amounts so the tail accrues
// interest on them: unpaid principal joins the late-payment map at its rest
// boundary, and unpaid interest/fees queue for compounding per the loan's
// compounding method.
func (g *Generator) carryLatePayments(ts *termsState, params *scheduleParams, retained []*Installment) {
	if !params.applyInterestRecalculation {
		return
	}
	asOf := g.businessDate()
	for _, inst := range retained {
		if inst.DueDate.After(asOf) || inst.IsFullyPaid() {
			continue
		}
		if overdue := inst.PrincipalOutstanding(); overdue.IsGreaterThanZero() {
			params.latePayments.add(g.restEffectiveDate(ts, inst.DueDate), overdue)
		}
		switch ts.Compounding {
		case CompoundInterest:
			params.uncompounded = params.uncompounded.Add(inst.InterestOutstanding())
		case CompoundFee:
			params.uncompounded = params.uncompounded.Add(inst.FeesOutstanding()).Add(inst.PenaltiesOutstanding())
		case CompoundInterestAndFee:
			params.uncompounded = params.uncompounded.
				Add(inst.InterestOutstanding()).Add(inst.FeesOutstanding()).Add(inst.PenaltiesOutstanding())
		case CompoundNone:
		}
	}
}

func cloneInstallments(installments []*Installment) []*Installment {
	out := make([]*Installment, 0, len(installments))
	for _, inst := range installments {
		clone := *inst
		out = append(out, &clone)
	}
	return out
}
