package schedule_test

import (
	"testing"
	"time"

	"github.com/warp/loan-engine/money"
	"github.com/warp/loan-engine/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// recalcTerms enables interest recalculation on the standard loan with a
// monthly rest and the reduce-emi early-payment strategy.
func recalcTerms() schedule.LoanTerms {
	terms := standardTerms()
	terms.InterestRecalculation = true
	terms.Compounding = schedule.CompoundNone
	terms.RestFrequency = money.FrequencyMonthly
	terms.RestEvery = 1
	terms.EarlyPayment = schedule.EarlyPaymentReduceEMI
	return terms
}

// payOnTime builds the exact on-time payment stream for the first n rows.
func payOnTime(model *schedule.ScheduleModel, n int) []schedule.Transaction {
	var txs []schedule.Transaction
	for _, p := range model.RepaymentPeriods()[:n] {
		txs = append(txs, schedule.Transaction{
			Date:   p.DueDate,
			Amount: p.TotalDue,
			Kind:   schedule.TransactionRepayment,
		})
	}
	return txs
}

// =============================================================================
// TAIL REGENERATION
// =============================================================================

func TestRescheduleTail_UndisturbedTailRegeneratesIdentically(t *testing.T) {
	// GIVEN: five installments paid exactly on time
	// WHEN: regenerating from the sixth due date
	// THEN: the regenerated tail matches the original schedule row for row

	terms := standardTerms()
	full := generate(t, terms, nil)
	installments := full.Installments()
	transactions := payOnTime(full, 5)

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.July, 1))
	update, err := g.RescheduleTail(terms, installments, transactions, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.July, 1), nil)
	if err != nil {
		t.Fatalf("RescheduleTail failed: %v", err)
	}

	if len(update.RetainedInstallments) != 5 {
		t.Fatalf("expected 5 retained installments, got %d", len(update.RetainedInstallments))
	}
	if len(update.Installments) != 12 {
		t.Fatalf("expected 12 installments overall, got %d", len(update.Installments))
	}
	for _, retained := range update.RetainedInstallments {
		if !retained.IsFullyPaid() {
			t.Errorf("installment %d should be settled after replay", retained.Number)
		}
	}

	original := full.RepaymentPeriods()
	tail := update.Model.RepaymentPeriods()
	if len(tail) != 7 {
		t.Fatalf("expected 7 regenerated rows, got %d", len(tail))
	}
	for i, row := range tail {
		want := original[5+i]
		if !row.DueDate.Equal(want.DueDate) {
			t.Errorf("tail row %d due %s, want %s", i, row.DueDate, want.DueDate)
		}
		if !row.Principal.Equal(want.Principal) || !row.Interest.Equal(want.Interest) {
			t.Errorf("tail row %d = %s/%s, want %s/%s",
				i, row.Principal, row.Interest, want.Principal, want.Interest)
		}
	}
}

func TestRescheduleTail_DoesNotMutateCallerInstallments(t *testing.T) {
	terms := standardTerms()
	full := generate(t, terms, nil)
	installments := full.Installments()
	transactions := payOnTime(full, 3)

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.May, 1))
	_, err := g.RescheduleTail(terms, installments, transactions, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.May, 1), nil)
	if err != nil {
		t.Fatalf("RescheduleTail failed: %v", err)
	}

	for _, inst := range installments {
		if !inst.PrincipalPaid.IsZero() || !inst.InterestPaid.IsZero() {
			t.Errorf("installment %d was mutated by replay", inst.Number)
		}
	}
}

func TestRescheduleTail_TrimsSyntheticInterestRows(t *testing.T) {
	// An installment injected by a previous recalculation is not a valid
	// continuation baseline; the cut moves back past it.
	terms := standardTerms()
	full := generate(t, terms, nil)
	installments := full.Installments()
	installments[4].RecalculatedInterest = true

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.July, 1))
	update, err := g.RescheduleTail(terms, installments, nil, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.July, 1), nil)
	if err != nil {
		t.Fatalf("RescheduleTail failed: %v", err)
	}

	if len(update.RetainedInstallments) != 4 {
		t.Fatalf("expected the synthetic row trimmed, got %d retained", len(update.RetainedInstallments))
	}
	last := update.RetainedInstallments[3]
	if last.Number != 4 {
		t.Errorf("baseline installment = %d, want 4", last.Number)
	}
}

func TestRescheduleTail_DownPaymentLoanKeepsPeriodAlignment(t *testing.T) {
	// GIVEN: a down-payment loan rescheduled after two repayment rows
	// WHEN: regenerating the tail
	// THEN: the down-payment row consumes an installment number but not a
	//       repayment period, so the tail lines up with the original run

	terms := standardTerms()
	terms.DownPaymentEnabled = true
	terms.DownPaymentPercent = money.MustDecimal("25")
	full := generate(t, terms, nil)
	installments := full.Installments()

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.April, 1))
	update, err := g.RescheduleTail(terms, installments, nil, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.April, 1), nil)
	if err != nil {
		t.Fatalf("RescheduleTail failed: %v", err)
	}

	if len(update.Installments) != 13 {
		t.Fatalf("expected 13 installments overall, got %d", len(update.Installments))
	}

	original := full.RepaymentPeriods()
	tail := update.Model.RepaymentPeriods()
	if len(tail) != 10 {
		t.Fatalf("expected 10 regenerated rows, got %d", len(tail))
	}
	if tail[0].Number != 4 {
		t.Errorf("first tail installment = %d, want 4", tail[0].Number)
	}
	for i, row := range tail {
		want := original[2+i]
		if !row.DueDate.Equal(want.DueDate) {
			t.Errorf("tail row %d due %s, want %s", i, row.DueDate, want.DueDate)
		}
		if !row.Principal.Equal(want.Principal) || !row.Interest.Equal(want.Interest) {
			t.Errorf("tail row %d = %s/%s, want %s/%s",
				i, row.Principal, row.Interest, want.Principal, want.Interest)
		}
	}
	last := tail[len(tail)-1]
	if !last.DueDate.Equal(schedule.NewDate(2025, time.January, 1)) {
		t.Errorf("final due date = %s, want 2025-01-01", last.DueDate)
	}
	if !last.OutstandingBalance.IsZero() {
		t.Error("balance should land at zero")
	}
}

func TestRescheduleTail_AllSyntheticHistoryRegeneratesFromScratch(t *testing.T) {
	// GIVEN: a history whose only row was injected by a prior recalculation
	// WHEN: regenerating the tail
	// THEN: the trim leaves no baseline and the schedule rebuilds in full

	terms := standardTerms()
	full := generate(t, terms, nil)
	installments := full.Installments()
	installments[0].RecalculatedInterest = true

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.March, 1))
	update, err := g.RescheduleTail(terms, installments, nil, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.March, 1), nil)
	if err != nil {
		t.Fatalf("RescheduleTail failed: %v", err)
	}

	if len(update.RetainedInstallments) != 0 {
		t.Fatalf("expected no retained installments, got %d", len(update.RetainedInstallments))
	}
	rows := update.Model.RepaymentPeriods()
	if len(rows) != 12 {
		t.Fatalf("expected 12 regenerated rows, got %d", len(rows))
	}
	if !rows[0].DueDate.Equal(schedule.NewDate(2024, time.February, 1)) {
		t.Errorf("first due date = %s, want 2024-02-01", rows[0].DueDate)
	}
	assertMoney(t, "first principal", rows[0].Principal, "788.49")
	assertMoney(t, "first interest", rows[0].Interest, "100.00")
}

// =============================================================================
// EARLY PAYMENT WITH RECALCULATION
// =============================================================================

func TestRescheduleTail_EarlyPaymentReducesEMI(t *testing.T) {
	// GIVEN: the first installment paid with 2,000 extra under reduce-emi
	// WHEN: regenerating from the second due date
	// THEN: the tail re-amortizes at a lower EMI and still lands at zero

	terms := recalcTerms()
	full := generate(t, terms, nil)
	installments := full.Installments()

	transactions := []schedule.Transaction{{
		Date:   schedule.NewDate(2024, time.February, 1),
		Amount: full.RepaymentPeriods()[0].TotalDue.Add(money.NewFromString(usd(), "2000")),
		Kind:   schedule.TransactionRepayment,
	}}

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.March, 1))
	update, err := g.RescheduleTail(terms, installments, transactions, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.March, 1), nil)
	if err != nil {
		t.Fatalf("RescheduleTail failed: %v", err)
	}

	tail := update.Model.RepaymentPeriods()
	if len(tail) == 0 {
		t.Fatal("expected regenerated rows")
	}

	originalEMI := money.NewFromString(usd(), "888.49")
	if !tail[0].TotalDue.IsLessThan(originalEMI) {
		t.Errorf("reduced EMI = %s, want below %s", tail[0].TotalDue, originalEMI)
	}
	// The re-amortized annuity holds the new EMI steady until the final row.
	for i := 1; i < len(tail)-1; i++ {
		if !tail[i].TotalDue.Equal(tail[0].TotalDue) {
			t.Errorf("tail row %d EMI = %s, want %s", i, tail[i].TotalDue, tail[0].TotalDue)
		}
	}
	if !tail[len(tail)-1].OutstandingBalance.IsZero() {
		t.Error("balance should land at zero after the early payment")
	}

	// Scheduled tail principal plus the settled and early-paid amounts
	// reconstruct the disbursed principal.
	tailPrincipal := money.Zero(usd())
	for _, row := range tail {
		tailPrincipal = tailPrincipal.Add(row.Principal)
	}
	settled := update.RetainedInstallments[0].Principal
	early := money.NewFromString(usd(), "2000")
	assertMoney(t, "reconstructed principal", tailPrincipal.Add(settled).Add(early), "10000.00")
}

func TestRescheduleTail_LatePaymentCarriesIntoTailInterest(t *testing.T) {
	// GIVEN: the first installment left unpaid past its due date
	// WHEN: regenerating from the second due date
	// THEN: the overdue principal keeps accruing interest in the tail

	terms := recalcTerms()
	terms.RestFrequency = money.FrequencyWeekly
	full := generate(t, terms, nil)
	installments := full.Installments()

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.March, 1))
	update, err := g.RescheduleTail(terms, installments, nil, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.March, 1), nil)
	if err != nil {
		t.Fatalf("RescheduleTail failed: %v", err)
	}

	onTime := generate(t, terms, nil).RepaymentPeriods()
	tail := update.Model.RepaymentPeriods()
	if !tail[0].Interest.IsGreaterThan(onTime[1].Interest) {
		t.Errorf("tail interest %s should exceed the on-time figure %s",
			tail[0].Interest, onTime[1].Interest)
	}
}

func TestRescheduleTail_MidPeriodPaymentTakesEffectAtRestBoundary(t *testing.T) {
	// GIVEN: a weekly-rest loan with an on-time first installment plus a
	//        2,000 overpayment on February 10
	// WHEN: regenerating from the first due date
	// THEN: each payment reduces the accruing balance only from the next
	//       weekly rest boundary, not from its value date

	terms := recalcTerms()
	terms.RestFrequency = money.FrequencyWeekly
	full := generate(t, terms, nil)
	installments := full.Installments()

	transactions := []schedule.Transaction{
		{
			Date:   schedule.NewDate(2024, time.February, 1),
			Amount: full.RepaymentPeriods()[0].TotalDue,
			Kind:   schedule.TransactionRepayment,
		},
		{
			Date:   schedule.NewDate(2024, time.February, 10),
			Amount: money.NewFromString(usd(), "2000"),
			Kind:   schedule.TransactionRepayment,
		},
	}

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.March, 1))
	update, err := g.RescheduleTail(terms, installments, transactions, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.February, 1), nil)
	if err != nil {
		t.Fatalf("RescheduleTail failed: %v", err)
	}

	if !update.Installments[0].IsFullyPaid() {
		t.Error("first installment should be settled by the on-time payment")
	}

	// Weekly rests seeded from the January 1 disbursement fall on Mondays:
	// the February 1 payment lands at the February 5 boundary and the
	// February 10 overpayment at February 12. The second period prorates
	// full-month interest of 100.00 over 4 of its 29 days, 92.12 over the
	// next 7 and 72.12 over the remaining 18. Same-day effect would show
	// roughly 75.84 instead.
	rows := update.Model.RepaymentPeriods()
	assertMoney(t, "second period interest", rows[1].Interest, "80.79")
	if !rows[len(rows)-1].OutstandingBalance.IsZero() {
		t.Error("balance should land at zero")
	}
}

// =============================================================================
// PREPAYMENT
// =============================================================================

func TestCalculatePrepaymentAmount_UnpaidLoan(t *testing.T) {
	// GIVEN: an untouched loan quoted mid-way through the second period
	// WHEN: computing the payoff
	// THEN: the full principal plus interest accrued to the quote date

	terms := standardTerms()
	full := generate(t, terms, nil)

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.February, 15))
	payoff, err := g.CalculatePrepaymentAmount(terms, full.Installments(), nil, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.February, 15))
	if err != nil {
		t.Fatalf("CalculatePrepaymentAmount failed: %v", err)
	}

	assertMoney(t, "payoff principal", payoff.Principal, "10000.00")
	assertMoney(t, "payoff interest", payoff.Interest, "192.12")
	if !payoff.Fees.IsZero() || !payoff.Penalties.IsZero() {
		t.Error("unexpected fee or penalty component on an uncharged loan")
	}
}

func TestCalculatePrepaymentAmount_PaidInstallmentsExcluded(t *testing.T) {
	terms := standardTerms()
	full := generate(t, terms, nil)
	transactions := payOnTime(full, 2)

	g := schedule.NewGeneratorAsOf(schedule.NewDate(2024, time.March, 15))
	payoff, err := g.CalculatePrepaymentAmount(terms, full.Installments(), transactions, nil,
		schedule.NoHolidays(), schedule.NewDate(2024, time.March, 15))
	if err != nil {
		t.Fatalf("CalculatePrepaymentAmount failed: %v", err)
	}

	// Two scheduled principal portions are settled; the payoff covers the rest.
	assertMoney(t, "payoff principal", payoff.Principal, "8415.14")
	if !payoff.Principal.IsLessThan(money.NewFromString(usd(), "10000")) {
		t.Error("settled principal must not be quoted again")
	}
}
