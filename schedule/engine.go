/*
engine.go - The schedule accumulation engine

PURPOSE:
  Walks the loan forward period by period, orchestrating the date
  generator, the variation resolver, and the period calculator into an
  ordered list of schedule rows plus running totals. Each period passes
  through the same stations:

    candidate due date -> calendar adjustment -> term variations ->
    compounding/transaction bookkeeping -> principal/interest split ->
    charges -> transaction reconciliation -> emit

TERMINATION:
  The loop runs while the outstanding balance is nonzero or disbursement
  tranches remain pending, bounded by a hard period ceiling so a
  pathological configuration fails loudly instead of spinning.

SEE ALSO:
  - params.go: the per-call accumulator
  - recalculation.go: re-enters generate() with reconstructed state
*/
package schedule

import "github.com/warp/loan-engine/money"

// maxGenerationPeriods bounds the outer loop. Daily repayments over thirty
// years stay well inside it.
const maxGenerationPeriods = 12000

// Generator produces loan schedules. It is stateless and safe to share;
// all per-call state lives in the cloned terms and the accumulator.
type Generator struct {
	dates    DateGenerator
	registry calculatorRegistry

	// asOf is the business date used for late-payment handling. Zero means
	// today.
	asOf Date
}

func NewGenerator() *Generator {
	return &Generator{registry: defaultCalculatorRegistry()}
}

// NewGeneratorAsOf pins the business date, which keeps regeneration and
// prepayment calculations reproducible in tests and batch reruns.
func NewGeneratorAsOf(asOf Date) *Generator {
	return &Generator{registry: defaultCalculatorRegistry(), asOf: asOf}
}

func (g *Generator) businessDate() Date {
	if g.asOf.IsZero() {
		return Today()
	}
	return g.asOf
}

// Generate produces the full schedule for the given terms. The caller's
// terms are cloned; nothing leaks across calls.
func (g *Generator) Generate(terms LoanTerms, charges []Charge, holidays HolidayDetail) (*ScheduleModel, error) {
	ts := newTermsState(terms)
	params := newScheduleParams(ts)
	params.allocator = OrderedAllocator{}
	return g.generate(ts, charges, holidays, params)
}

// generate is the shared loop entered by Generate and by the partial
// regeneration path with reconstructed params.
func (g *Generator) generate(ts *termsState, charges []Charge, holidays HolidayDetail, params *scheduleParams) (*ScheduleModel, error) {
	disbursementCharges := chargesDueAtDisbursement(charges, ts.Currency)
	perPeriodCharges, deferredCharges := splitInterestDependentCharges(charges)

	if !params.partial {
		g.seedDisbursements(ts, params, disbursementCharges)
		params.restBalanceBase = params.outstandingBalance
	}

	if ts.InterestMethod == InterestFlat && ts.totalInterestDue.IsZero() {
		ts.totalInterestDue = ts.totalFlatInterest(ts.PrincipalToBeScheduled())
	}

	if params.partial {
		if ts.fixedEMI.IsZero() && ts.fixedPrincipal.IsZero() {
			// Derive the EMI from the full-term annuity, exactly as the
			// original full run did, so an undisturbed tail regenerates
			// identically. Down payments never entered the amortized balance.
			// Replayed early payments under reduce-emi have already rederived
			// the amounts; leave those in force.
			base := params.principalToBeScheduled
			for _, inst := range params.installments {
				if inst.DownPayment {
					base = base.Sub(inst.Principal)
				}
			}
			ts.updateAmortization(base, 1)
		}
	} else {
		ts.updateAmortization(params.outstandingBalance, params.periodNumber)
	}

	queue := newVariationQueue(ts.Variations,
		VariationInsertInstallment, VariationDeleteInstallment, VariationEMIAmount,
		VariationPrincipalAmount, VariationExtendRepaymentPeriod, VariationGraceOnPrincipal,
		VariationGraceOnInterest, VariationInterestRate, VariationDueDate)
	rateQueue := newVariationQueue(ts.Variations, VariationInterestRateFromInstallment)

	isFirstRepayment := !params.partial
	nextRepaymentAvailable := true

	for !params.outstandingBalance.IsZero() || len(params.disbursements) > 0 {
		if params.periodNumber > maxGenerationPeriods {
			return nil, ErrScheduleRunaway
		}

		previousRepaymentDate := params.actualRepaymentDate
		candidate := g.dates.NextDueDate(params.actualRepaymentDate, ts, isFirstRepayment)
		adjusted, err := g.dates.AdjustDueDate(candidate, ts, holidays)
		if err != nil {
			return nil, err
		}
		params.actualRepaymentDate = adjusted.ChangedActualRepaymentDate
		isFirstRepayment = false
		dueDate := adjusted.ChangedScheduleDate

		varResult := applyTermVariations(ts, params, queue, rateQueue, previousRepaymentDate, dueDate)
		if !varResult.dueDate.Equal(dueDate) && !ts.FirstRepaymentOnHolidayAllowed {
			// Variations may land the date back on a holiday; re-check.
			readjusted, err := g.dates.AdjustDueDate(varResult.dueDate, ts, holidays)
			if err != nil {
				return nil, err
			}
			varResult.dueDate = readjusted.ChangedScheduleDate
		}
		dueDate = varResult.dueDate

		if varResult.skipPeriod {
			// Deleted installment: no row, the interval simply extends.
			continue
		}

		params.addLoanTermDays(params.periodStartDate, dueDate)

		if params.periodStartDate.After(dueDate) {
			return nil, &ScheduleDateError{DueDate: dueDate, PeriodStart: params.periodStartDate}
		}

		isCompletePeriod := true
		if params.scheduleTillDate != nil && dueDate.OnOrAfter(*params.scheduleTillDate) {
			if !dueDate.Equal(*params.scheduleTillDate) {
				isCompletePeriod = false
			}
			dueDate = *params.scheduleTillDate
			nextRepaymentAvailable = false
		}

		if params.applyInterestRecalculation {
			g.populateCompoundingDates(ts, params, params.periodStartDate, dueDate)
		}

		applicable := params.popApplicableTransactions(dueDate)

		if ts.MultiDisbursement {
			if err := g.applyDisbursements(ts, params, dueDate, disbursementCharges); err != nil {
				return nil, err
			}
		}

		// Transactions strictly before the due date: early payments reduce
		// principal ahead of schedule at the rest-dictated effective date.
		var onDueDate []RecalculationDetail
		for _, detail := range applicable {
			if detail.Transaction.Date.Before(dueDate) {
				g.applyTransaction(ts, params, detail.Transaction)
			} else {
				onDueDate = append(onDueDate, detail)
			}
		}

		if params.applyInterestRecalculation {
			params.updateBalanceAsPerRest(params.periodStartDate)
		} else {
			params.outstandingBalanceAsPerRest = params.outstandingBalance
		}

		calc := g.registry.calculatorFor(ts)
		split := calc.computeForPeriod(periodComputeInput{
			ts:                       ts,
			periodNumber:             params.periodNumber,
			periodStart:              params.periodStartDate,
			dueDate:                  dueDate,
			outstanding:              params.outstandingBalanceAsPerRest,
			totalCumulativePrincipal: params.totalCumulativePrincipal,
			totalCumulativeInterest:  params.totalCumulativeInterest,
			totalInterestDue:         ts.totalInterestDue,
			interestDueToGrace:       params.interestDueToGrace,
			principalVariations:      params.mergedPrincipalVariations(),
			rateChanges:              varResult.rateChanges,
		})

		// The walk accrued the split rates; lock the final rate into the
		// terms so every following period starts from it.
		for _, rc := range varResult.rateChanges {
			ts.annualRate = rc.DecimalValue
		}

		// Only a caller-pinned EMI can be too small; a derived EMI always
		// covers its own interest.
		if emiPinned := !ts.FixedEMI.IsZero() || !ts.periodEMI.IsZero(); emiPinned {
			if emi := ts.currentEMI(); emi.IsLessThan(split.interest) {
				return nil, &EMIBelowInterestError{EMI: emi, Interest: split.interest, DueDate: dueDate}
			}
		}

		principal := split.principal.Round()
		interest := split.interest
		params.interestDueToGrace = split.interestDueToGrace

		// Net previously early-paid principal against this period under the
		// reschedule-next strategy.
		if params.reducePrincipal.IsGreaterThanZero() {
			netted := params.reducePrincipal.Min(principal)
			principal = principal.Sub(netted)
			params.reducePrincipal = params.reducePrincipal.Sub(netted)
		}

		lastPeriodReached := ts.isLastPeriod(params.periodNumber) && len(params.disbursements) == 0

		params.reduceOutstanding(principal)
		if params.outstandingBalance.IsNegative() || lastPeriodReached || !nextRepaymentAvailable {
			// Fold rounding residue or the early-payment excess into this
			// period's principal so the balance lands exactly at zero.
			principal = principal.Add(params.outstandingBalance)
			params.outstandingBalance = params.zero()
		}
		if !nextRepaymentAvailable {
			params.disbursements = make(dateAmountMap)
		}

		fees := feeChargesForPeriod(perPeriodCharges, params.periodStartDate, dueDate, principal, interest, ts.Currency)
		penalties := penaltyChargesForPeriod(perPeriodCharges, params.periodStartDate, dueDate, principal, interest, ts.Currency)
		totalDue := money.Sum(ts.Currency, principal, interest, fees, penalties)

		// A trailing period whose principal an early payment already covered
		// merges into the previous installment instead of emitting a
		// degenerate zero-principal row.
		if principal.IsZero() && params.outstandingBalance.IsZero() && len(params.disbursements) == 0 {
			if last := lastRepaymentRow(params.periods); last != nil {
				last.addInterest(interest)
				params.totalCumulativeInterest = params.totalCumulativeInterest.Add(interest)
				params.totalRepaymentExpected = params.totalRepaymentExpected.Add(interest)
				params.periodStartDate = dueDate
				continue
			}
		}

		row := &SchedulePeriod{
			Kind:               PeriodRepayment,
			Number:             params.installmentNumber,
			FromDate:           params.periodStartDate,
			DueDate:            dueDate,
			Principal:          principal,
			Interest:           interest,
			FeeCharges:         fees,
			PenaltyCharges:     penalties,
			TotalDue:           totalDue,
			OutstandingBalance: params.outstandingBalance,
			Complete:           isCompletePeriod,
			EMIFixedForPeriod:  !ts.periodEMI.IsZero(),
			CompoundingDetails: compoundingDetailsInWindow(params, params.periodStartDate, dueDate),
		}
		params.periods = append(params.periods, row)
		params.installments = append(params.installments, installmentFromPeriod(row, ts.Currency))

		// Transactions on the due date reconcile against the freshly
		// finalized installment; any remainder is an early payment for the
		// following periods.
		for _, detail := range onDueDate {
			g.applyTransaction(ts, params, detail.Transaction)
		}

		// Scheduled principal leaves the interest-calculation balance at the
		// rest boundary, not necessarily at the due date.
		if params.applyInterestRecalculation {
			params.principalPortions.add(g.restEffectiveDate(ts, dueDate), principal)
		}

		params.totalCumulativePrincipal = params.totalCumulativePrincipal.Add(principal)
		params.totalCumulativeInterest = params.totalCumulativeInterest.Add(interest)
		params.totalFeeCharges = params.totalFeeCharges.Add(fees)
		params.totalPenaltyCharges = params.totalPenaltyCharges.Add(penalties)
		params.totalRepaymentExpected = params.totalRepaymentExpected.Add(totalDue)

		params.periodStartDate = dueDate
		params.installmentNumber++
		params.periodNumber++
		ts.clearPeriodOverrides()

		if varResult.recalculateAmounts {
			ts.updateAmortization(params.outstandingBalance, params.periodNumber)
		}
		if !nextRepaymentAvailable {
			break
		}
	}

	// Residual interest deferred by grace folds into the final period.
	if params.interestDueToGrace.IsGreaterThanZero() {
		if last := lastRepaymentRow(params.periods); last != nil {
			last.addInterest(params.interestDueToGrace)
			params.totalCumulativeInterest = params.totalCumulativeInterest.Add(params.interestDueToGrace)
			params.totalRepaymentExpected = params.totalRepaymentExpected.Add(params.interestDueToGrace)
			params.interestDueToGrace = params.zero()
		}
	}

	applyFinalCharges(deferredCharges, params)

	return &ScheduleModel{
		Currency:               ts.Currency,
		Periods:                params.periods,
		LoanTermInDays:         params.loanTermInDays,
		PrincipalToBeScheduled: params.principalToBeScheduled,
		TotalPrincipal:         params.totalCumulativePrincipal,
		TotalInterest:          params.totalCumulativeInterest,
		TotalFeeCharges:        params.totalFeeCharges,
		TotalPenaltyCharges:    params.totalPenaltyCharges,
		TotalRepaymentExpected: params.totalRepaymentExpected,
	}, nil
}

// =============================================================================
// DISBURSEMENTS
// =============================================================================

// seedDisbursements emits the initial disbursement rows and queues future
// tranches. For a multi-disbursement loan only the tranches due on the
// disbursement date enter the balance now; the rest apply inside the loop
// when their date is reached.
func (g *Generator) seedDisbursements(ts *termsState, params *scheduleParams, disbursementCharges money.Money) {
	if !ts.MultiDisbursement {
		params.periods = append(params.periods,
			disbursementPeriod(ts.ExpectedDisbursementDate, params.principalToBeScheduled, disbursementCharges))
		params.totalFeeCharges = params.totalFeeCharges.Add(disbursementCharges)
		g.emitDownPayment(ts, params, params.principalToBeScheduled)
		return
	}

	initial := params.zero()
	for _, tranche := range ts.Disbursements {
		if tranche.Date.OnOrBefore(ts.ExpectedDisbursementDate) {
			params.periods = append(params.periods, disbursementPeriod(tranche.Date, tranche.Amount, disbursementCharges))
			params.totalFeeCharges = params.totalFeeCharges.Add(disbursementCharges)
			disbursementCharges = params.zero()
			initial = initial.Add(tranche.Amount)
		} else {
			params.disbursements.add(tranche.Date, tranche.Amount)
		}
	}
	params.principalToBeScheduled = initial
	params.outstandingBalance = initial
	params.outstandingBalanceAsPerRest = initial
	g.emitDownPayment(ts, params, initial)
}

// applyDisbursements folds tranches whose date falls inside the current
// period into the balance, emitting their rows in place.
func (g *Generator) applyDisbursements(ts *termsState, params *scheduleParams, dueDate Date, disbursementCharges money.Money) error {
	for _, at := range params.disbursements.sortedDates() {
		if at.After(dueDate) {
			continue
		}
		amount := params.disbursements[at]
		newOutstanding := params.outstandingBalance.Add(amount)
		if !ts.MaxOutstanding.IsZero() && newOutstanding.IsGreaterThan(ts.MaxOutstanding) {
			return &OutstandingExceededError{Outstanding: newOutstanding, Maximum: ts.MaxOutstanding, OnDate: at}
		}

		params.periods = append(params.periods, disbursementPeriod(at, amount, params.zero()))
		params.outstandingBalance = newOutstanding
		params.principalToBeScheduled = params.principalToBeScheduled.Add(amount)
		delete(params.disbursements, at)

		if params.applyInterestRecalculation {
			// The tranche grows the interest-calculation balance at the next
			// rest boundary; recorded as a negative principal portion.
			params.principalPortions.add(g.restEffectiveDate(ts, at), amount.Neg())
		}

		g.emitDownPayment(ts, params, amount)
		ts.updateAmortization(params.outstandingBalance, params.periodNumber)
	}
	return nil
}

// emitDownPayment emits a down-payment row collecting the configured
// percentage of a tranche on its disbursement date.
func (g *Generator) emitDownPayment(ts *termsState, params *scheduleParams, trancheAmount money.Money) {
	if !ts.DownPaymentEnabled || ts.DownPaymentPercent.IsZero() {
		return
	}
	amount := trancheAmount.MulDecimal(ts.DownPaymentPercent.Div(money.MustDecimal("100"))).Round()
	if amount.IsZero() {
		return
	}
	params.reduceOutstanding(amount)
	row := downPaymentPeriod(params.installmentNumber, params.periodStartDate, amount, params.outstandingBalance)
	params.periods = append(params.periods, row)
	params.installments = append(params.installments, installmentFromPeriod(row, ts.Currency))
	params.installmentNumber++
	params.totalCumulativePrincipal = params.totalCumulativePrincipal.Add(amount)
	params.totalRepaymentExpected = params.totalRepaymentExpected.Add(amount)
}

// =============================================================================
// TRANSACTIONS AND EARLY PAYMENT
// =============================================================================

// applyTransaction runs a replayed transaction through the allocation
// strategy; the unprocessed remainder is an early payment that reduces the
// outstanding balance immediately and enters the interest-calculation
// balance at the rest boundary.
func (g *Generator) applyTransaction(ts *termsState, params *scheduleParams, tx Transaction) {
	unprocessed := params.allocator.Allocate(tx, params.installments)
	if !unprocessed.IsGreaterThanZero() {
		return
	}

	params.reduceOutstanding(unprocessed)
	if params.outstandingBalance.IsNegative() {
		// Overpayment beyond the whole balance: clamp and shrink the early
		// amount to what the loan could absorb.
		unprocessed = unprocessed.Add(params.outstandingBalance)
		params.outstandingBalance = params.zero()
	}
	if !unprocessed.IsGreaterThanZero() {
		return
	}

	params.principalPortions.add(g.restEffectiveDate(ts, tx.Date), unprocessed)

	switch ts.EarlyPayment {
	case EarlyPaymentReduceEMI:
		ts.updateAmortization(params.outstandingBalance, params.periodNumber)
	case EarlyPaymentRescheduleNext:
		params.reducePrincipal = params.reducePrincipal.Add(unprocessed)
	case EarlyPaymentReduceInstallments:
		// Keep the EMI; the balance simply runs out sooner.
	}
}

// restEffectiveDate maps a movement date onto the rest boundary where it
// starts affecting interest: the first boundary on or after the date, or
// the date itself when recalculation is off or rest matches the movement.
func (g *Generator) restEffectiveDate(ts *termsState, at Date) Date {
	if !ts.InterestRecalculation || ts.RestFrequency == "" {
		return at
	}
	return g.dates.NextRestDate(at.AddDays(-1), ts)
}

// =============================================================================
// COMPOUNDING
// =============================================================================

// populateCompoundingDates snapshots the compounding map at the period
// start (for pre-closure rewind) and folds uncompounded carry into the
// balance at each compounding boundary inside the window.
func (g *Generator) populateCompoundingDates(ts *termsState, params *scheduleParams, periodStart, dueDate Date) {
	params.snapshotCompounding(periodStart)
	if ts.Compounding == CompoundNone || params.uncompounded.IsZero() {
		return
	}
	boundary := g.dates.NextCompoundingDate(periodStart, ts)
	for boundary.OnOrBefore(dueDate) {
		params.compounding.add(boundary, params.uncompounded)
		params.uncompounded = params.zero()
		boundary = g.dates.NextCompoundingDate(boundary, ts)
	}
}

// compoundingDetailsInWindow snapshots the audit entries for one row.
func compoundingDetailsInWindow(params *scheduleParams, start, end Date) []CompoundingDetail {
	var details []CompoundingDetail
	for _, d := range params.compounding.sortedDates() {
		if d.After(start) && d.OnOrBefore(end) {
			details = append(details, CompoundingDetail{EffectiveDate: d, Amount: params.compounding[d]})
		}
	}
	return details
}

// lastRepaymentRow returns the most recently emitted repayment row.
func lastRepaymentRow(periods []*SchedulePeriod) *SchedulePeriod {
	for i := len(periods) - 1; i >= 0; i-- {
		if periods[i].Kind == PeriodRepayment {
			return periods[i]
		}
	}
	return nil
}
