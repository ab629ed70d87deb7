package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/money"
	"github.com/warp/loan-engine/schedule"
	"github.com/warp/loan-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTerms() factory.TermsJSON {
	return factory.TermsJSON{
		Currency:   factory.CurrencyJSON{Code: "USD", Digits: 2},
		Principal:  "10000",
		AnnualRate: "12",
		Repayment: factory.RepaymentJSON{
			Frequency: "monthly",
			Every:     1,
			Count:     12,
		},
		ExpectedDisbursementDate: "2024-01-01",
	}
}

// generateModel produces a real schedule so persistence tests exercise the
// same shapes the API stores.
func generateModel(t *testing.T) *schedule.ScheduleModel {
	t.Helper()
	terms, charges, err := factory.NewTermsFactory().FromJSON(sampleTerms())
	require.NoError(t, err)
	model, err := schedule.NewGenerator().Generate(terms, charges, schedule.NoHolidays())
	require.NoError(t, err)
	return model
}

// =============================================================================
// LOANS
// =============================================================================

func TestCreateAndGetLoan(t *testing.T) {
	// GIVEN: a persisted loan
	// WHEN: loading it by id
	// THEN: terms and charges survive the JSON round trip

	store := newStore(t)
	ctx := context.Background()

	charges := []factory.ChargeJSON{{Name: "processing", Calculation: "flat", Time: "disbursement", Amount: "50"}}
	created, err := store.CreateLoan(ctx, "personal loan", sampleTerms(), charges)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	loaded, err := store.GetLoan(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "personal loan", loaded.Name)
	assert.Equal(t, "USD", loaded.Terms.Currency.Code)
	assert.Equal(t, "10000", loaded.Terms.Principal)
	require.Len(t, loaded.Charges, 1)
	assert.Equal(t, "processing", loaded.Charges[0].Name)
}

func TestGetLoan_NotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.GetLoan(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestListLoans(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.CreateLoan(ctx, "first", sampleTerms(), nil)
	require.NoError(t, err)
	_, err = store.CreateLoan(ctx, "second", sampleTerms(), nil)
	require.NoError(t, err)

	loans, err := store.ListLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, loans, 2)
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestSaveAndGetSchedule(t *testing.T) {
	// GIVEN: a generated schedule persisted against a loan
	// WHEN: loading it back
	// THEN: totals and period rows round-trip exactly, in order

	store := newStore(t)
	ctx := context.Background()

	loan, err := store.CreateLoan(ctx, "loan", sampleTerms(), nil)
	require.NoError(t, err)

	model := generateModel(t)
	scheduleID, err := store.SaveSchedule(ctx, loan.ID, model, model.Installments())
	require.NoError(t, err)
	require.NotEmpty(t, scheduleID)

	stored, err := store.GetSchedule(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduleID, stored.ID)
	assert.Equal(t, model.TotalPrincipal.String(), stored.Model.TotalPrincipal.String())
	assert.Equal(t, model.TotalInterest.String(), stored.Model.TotalInterest.String())
	assert.Equal(t, model.LoanTermInDays, stored.Model.LoanTermInDays)

	require.Len(t, stored.Model.Periods, len(model.Periods))
	for i, p := range stored.Model.Periods {
		want := model.Periods[i]
		assert.Equal(t, want.Kind, p.Kind)
		assert.True(t, p.DueDate.Equal(want.DueDate), "period %d due date", i)
		assert.Equal(t, want.Principal.String(), p.Principal.String(), "period %d principal", i)
		assert.Equal(t, want.Interest.String(), p.Interest.String(), "period %d interest", i)
		assert.Equal(t, want.TotalDue.String(), p.TotalDue.String(), "period %d total due", i)
	}
}

func TestSaveSchedule_ReplacesWholesale(t *testing.T) {
	// Saving twice leaves exactly one schedule and one set of rows; nothing
	// is updated in place.
	store := newStore(t)
	ctx := context.Background()

	loan, err := store.CreateLoan(ctx, "loan", sampleTerms(), nil)
	require.NoError(t, err)

	model := generateModel(t)
	firstID, err := store.SaveSchedule(ctx, loan.ID, model, model.Installments())
	require.NoError(t, err)

	secondID, err := store.SaveSchedule(ctx, loan.ID, model, model.Installments())
	require.NoError(t, err)
	assert.NotEqual(t, firstID, secondID)

	stored, err := store.GetSchedule(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, secondID, stored.ID)
	assert.Len(t, stored.Model.Periods, len(model.Periods))

	installments, err := store.GetInstallments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, installments, len(model.Installments()))
}

func TestGetSchedule_NotFound(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	loan, err := store.CreateLoan(ctx, "loan", sampleTerms(), nil)
	require.NoError(t, err)

	_, err = store.GetSchedule(ctx, loan.ID)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func TestGetInstallments_RoundTripsPaidComponents(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	loan, err := store.CreateLoan(ctx, "loan", sampleTerms(), nil)
	require.NoError(t, err)

	model := generateModel(t)
	installments := model.Installments()
	usd := money.Currency{Code: "USD", Digits: 2}
	installments[0].PrincipalPaid = money.NewFromString(usd, "788.49")
	installments[0].InterestPaid = money.NewFromString(usd, "100.00")

	_, err = store.SaveSchedule(ctx, loan.ID, model, installments)
	require.NoError(t, err)

	loaded, err := store.GetInstallments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, loaded, len(installments))

	assert.Equal(t, "788.49", loaded[0].PrincipalPaid.String())
	assert.Equal(t, "100.00", loaded[0].InterestPaid.String())
	assert.True(t, loaded[0].IsFullyPaid())
	assert.False(t, loaded[1].IsFullyPaid())

	// Due-date ordering is the regeneration contract.
	for i := 1; i < len(loaded); i++ {
		assert.True(t, loaded[i-1].DueDate.Before(loaded[i].DueDate) ||
			loaded[i-1].DueDate.Equal(loaded[i].DueDate))
	}
}

func TestGetInstallments_RoundTripsDownPaymentFlag(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	terms := sampleTerms()
	terms.DownPaymentPercent = "25"
	loan, err := store.CreateLoan(ctx, "loan", terms, nil)
	require.NoError(t, err)

	parsed, charges, err := factory.NewTermsFactory().FromJSON(terms)
	require.NoError(t, err)
	model, err := schedule.NewGenerator().Generate(parsed, charges, schedule.NoHolidays())
	require.NoError(t, err)

	_, err = store.SaveSchedule(ctx, loan.ID, model, model.Installments())
	require.NoError(t, err)

	loaded, err := store.GetInstallments(ctx, loan.ID)
	require.NoError(t, err)
	require.NotEmpty(t, loaded)
	assert.True(t, loaded[0].DownPayment)
	assert.False(t, loaded[1].DownPayment)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestAppendAndListTransactions(t *testing.T) {
	// GIVEN: payments appended out of date order
	// WHEN: listing
	// THEN: the history comes back sorted by transaction date

	store := newStore(t)
	ctx := context.Background()

	loan, err := store.CreateLoan(ctx, "loan", sampleTerms(), nil)
	require.NoError(t, err)

	usd := money.Currency{Code: "USD", Digits: 2}
	later := schedule.Transaction{
		Date:   schedule.NewDate(2024, time.March, 1),
		Amount: money.NewFromString(usd, "888.49"),
		Kind:   schedule.TransactionRepayment,
	}
	earlier := schedule.Transaction{
		Date:   schedule.NewDate(2024, time.February, 1),
		Amount: money.NewFromString(usd, "888.49"),
		Kind:   schedule.TransactionRepayment,
	}
	require.NoError(t, store.AppendTransaction(ctx, loan.ID, later))
	require.NoError(t, store.AppendTransaction(ctx, loan.ID, earlier))

	txs, err := store.ListTransactions(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Date.Equal(schedule.NewDate(2024, time.February, 1)))
	assert.True(t, txs[1].Date.Equal(schedule.NewDate(2024, time.March, 1)))
	assert.Equal(t, "888.49", txs[0].Amount.String())
	assert.Equal(t, schedule.TransactionRepayment, txs[0].Kind)
}

func TestListTransactions_UnknownLoan(t *testing.T) {
	store := newStore(t)

	_, err := store.ListTransactions(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}
